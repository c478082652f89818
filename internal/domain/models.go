package domain

import "time"

// Order types. An empty string means no order type was recorded, which is
// the only valid value while the order-type feature flag is disabled.
const (
	OrderTypeDineIn  = "dine_in"
	OrderTypeTakeout = "takeout"
	OrderTypeNone    = ""
)

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StockQty   int    `json:"stock_qty"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	StockQty   int    `json:"stock_qty"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
}

// SaleLine is the durable unit of a sale. Product name, cost and price are
// snapshots taken at checkout: later edits to the Product never change a
// written line. CapturedAt is system-assigned and immutable; ReportedAt
// defaults to CapturedAt and is the timestamp used for earnings bucketing.
type SaleLine struct {
	ID                 string     `json:"id"`
	TransactionID      string     `json:"transaction_id"`
	TransactionNumber  string     `json:"transaction_number"`
	ProductID          string     `json:"product_id,omitempty"`
	ProductName        string     `json:"product_name"`
	UnitCostCents      int64      `json:"unit_cost_cents"`
	UnitPriceCents     int64      `json:"unit_price_cents"`
	Qty                int        `json:"qty"`
	LineTotalCents     int64      `json:"line_total_cents"`
	PaymentMethod      string     `json:"payment_method"`
	CustomerType       string     `json:"customer_type"`
	OrderType          string     `json:"order_type,omitempty"`
	CapturedAt         time.Time  `json:"captured_at"`
	ReportedAt         time.Time  `json:"reported_at"`
	PaymentAmountCents int64      `json:"payment_amount_cents"`
	Cancelled          bool       `json:"cancelled"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// SaleLineUpdate carries the only fields that may change after checkout.
// Edits are applied per transaction, never per line, so sibling lines can
// not drift apart.
type SaleLineUpdate struct {
	PaymentMethod *string    `json:"payment_method,omitempty"`
	CustomerType  *string    `json:"customer_type,omitempty"`
	OrderType     *string    `json:"order_type,omitempty"`
	ReportedAt    *time.Time `json:"reported_at,omitempty"`
}

func (u SaleLineUpdate) Empty() bool {
	return u.PaymentMethod == nil && u.CustomerType == nil && u.OrderType == nil && u.ReportedAt == nil
}

// Transaction is derived, never stored: the sale lines sharing one
// transaction id, with the by-convention shared fields lifted out.
type Transaction struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	Lines         []SaleLine `json:"lines"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	CustomerType  string     `json:"customer_type"`
	OrderType     string     `json:"order_type,omitempty"`
	CapturedAt    time.Time  `json:"captured_at"`
	ReportedAt    time.Time  `json:"reported_at"`
}

type OpexItem struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	MonthlyCostCents int64  `json:"monthly_cost_cents"`
}

type OpexItemCreateRequest struct {
	Name             string `json:"name"`
	MonthlyCostCents int64  `json:"monthly_cost_cents"`
}

type OpexSettings struct {
	TargetMonthlyCents int64 `json:"target_monthly_cents"`
}

type PaymentMethod struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type CustomerType struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CheckoutRequest struct {
	PaymentMethod      string         `json:"payment_method"`
	CustomerType       string         `json:"customer_type"`
	OrderType          string         `json:"order_type,omitempty"`
	PaymentAmountCents int64          `json:"payment_amount_cents"`
	Items              []CheckoutItem `json:"items"`
}

type CheckoutResponse struct {
	TransactionID      string     `json:"transaction_id"`
	TransactionNumber  string     `json:"transaction_number"`
	TotalCents         int64      `json:"total_cents"`
	PaymentAmountCents int64      `json:"payment_amount_cents"`
	ChangeCents        int64      `json:"change_cents"`
	Lines              []SaleLine `json:"lines"`
	CreatedAt          string     `json:"created_at"`
}

type VoidRecentSaleResponse struct {
	TransactionID  string `json:"transaction_id"`
	CancelledLines int    `json:"cancelled_lines"`
	VoidedAt       string `json:"voided_at"`
}

type EarningsSummary struct {
	RevenueCents     int64          `json:"revenue_cents"`
	ItemCostCents    int64          `json:"item_cost_cents"`
	GrossMarginCents int64          `json:"gross_margin_cents"`
	LineCount        int            `json:"line_count"`
	ByCustomerType   map[string]int `json:"by_customer_type"`
	ByPaymentMethod  map[string]int `json:"by_payment_method"`
	ByOrderType      map[string]int `json:"by_order_type"`
}

type BreakEvenPoint struct {
	At                    time.Time `json:"at"`
	CumulativeMarginCents int64     `json:"cumulative_margin_cents"`
	RemainingOpexCents    int64     `json:"remaining_opex_cents"`
	NetProfitCents        int64     `json:"net_profit_cents"`
}

type BreakEvenReport struct {
	TargetCents        int64            `json:"target_cents"`
	GrossMarginCents   int64            `json:"gross_margin_cents"`
	RemainingOpexCents int64            `json:"remaining_opex_cents"`
	NetProfitCents     int64            `json:"net_profit_cents"`
	BreakEvenAt        *time.Time       `json:"break_even_at,omitempty"`
	Points             []BreakEvenPoint `json:"points"`
}

// ArchiveResult reports both halves of the archive operation. The export is
// built before any deletion, so CSV is always populated when the call
// returns a deletion error: the export is the recovery artifact.
type ArchiveResult struct {
	CSV                  []byte `json:"-"`
	ExportedTransactions int    `json:"exported_transactions"`
	DeletedLines         int    `json:"deleted_lines"`
}

type ArchiveRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
