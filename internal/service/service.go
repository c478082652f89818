package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rvmonterde003/kashpos/internal/cache"
	"github.com/rvmonterde003/kashpos/internal/cart"
	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/earnings"
	"github.com/rvmonterde003/kashpos/internal/store"
	"github.com/rvmonterde003/kashpos/internal/txnumber"
	"github.com/rvmonterde003/kashpos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrVoidWindowClosed is returned when a recent sale is voided after its
// grace window has elapsed. Older sales must be cancelled through the
// transaction report instead.
var ErrVoidWindowClosed = errors.New("void window closed")

// Checkout phases. Each error from StartCheckout names the phase it
// failed in, so callers can tell a rejected cart from a persistence
// failure.
const (
	phaseValidating     = "validating"
	phaseAllocating     = "allocating"
	phasePersisting     = "persisting"
	phaseAdjustingStock = "adjusting_stock"
)

type recentSale struct {
	lines []domain.SaleLine
	at    time.Time
}

type Service struct {
	repo       store.Repository
	alloc      *txnumber.Allocator
	earnCache  cache.EarningsCache
	cacheTTL   time.Duration
	voidWindow time.Duration
	now        func() time.Time

	mu     sync.Mutex
	recent map[string]recentSale
}

func New(repo store.Repository, alloc *txnumber.Allocator, earnCache cache.EarningsCache, cacheTTL time.Duration, voidWindow time.Duration) *Service {
	if earnCache == nil {
		earnCache = cache.NoopEarningsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if voidWindow <= 0 {
		voidWindow = 60 * time.Second
	}

	return &Service{
		repo:       repo,
		alloc:      alloc,
		earnCache:  earnCache,
		cacheTTL:   cacheTTL,
		voidWindow: voidWindow,
		now:        time.Now,
		recent:     make(map[string]recentSale),
	}
}

// WithClock overrides the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrInvalidCheckout)
	}
	if req.PriceCents < 1 || req.CostCents < 0 || req.StockQty < 0 {
		return domain.Product{}, fmt.Errorf("%w: price, cost and stock must be non-negative", store.ErrInvalidCheckout)
	}

	product := domain.Product{
		ID:         xid.New("prod"),
		Name:       req.Name,
		StockQty:   req.StockQty,
		CostCents:  req.CostCents,
		PriceCents: req.PriceCents,
		Active:     true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

// BuildCart resolves checkout items against the current catalog and loads
// them into a cart, enforcing per-product availability as it goes.
func (s *Service) BuildCart(ctx context.Context, items []domain.CheckoutItem) (*cart.Cart, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidCheckout)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	c := cart.New()
	for _, item := range items {
		product, exists := products[item.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: unknown product %q", store.ErrInvalidCheckout, item.ProductID)
		}
		if err := c.Add(product, item.Qty); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// StartCheckout runs the checkout state machine over an assembled cart:
// validate, allocate a transaction number, persist the sale lines, then
// adjust stock. Persisted lines are the source of truth; a stock
// decrement failure after persistence is logged and left for a manual
// recount rather than unwinding the sale.
func (s *Service) StartCheckout(ctx context.Context, c *cart.Cart, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	orderType, totalCents, err := s.validateCheckout(ctx, c, req)
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("checkout %s: %w", phaseValidating, err)
	}

	transactionID := xid.New("tx")
	number, err := s.alloc.Next(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("checkout %s: %w", phaseAllocating, err)
	}

	now := s.now().UTC()
	lines := make([]domain.SaleLine, 0, len(c.Lines()))
	for _, cartLine := range c.Lines() {
		lines = append(lines, domain.SaleLine{
			ID:                 xid.New("sale"),
			TransactionID:      transactionID,
			TransactionNumber:  number,
			ProductID:          cartLine.Product.ID,
			ProductName:        cartLine.Product.Name,
			UnitCostCents:      cartLine.Product.CostCents,
			UnitPriceCents:     cartLine.Product.PriceCents,
			Qty:                cartLine.Qty,
			LineTotalCents:     int64(cartLine.Qty) * cartLine.Product.PriceCents,
			PaymentMethod:      req.PaymentMethod,
			CustomerType:       req.CustomerType,
			OrderType:          orderType,
			CapturedAt:         now,
			ReportedAt:         now,
			PaymentAmountCents: req.PaymentAmountCents,
		})
	}

	if _, err := s.repo.InsertSaleLines(ctx, lines); err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("checkout %s: %w", phasePersisting, err)
	}

	for _, line := range lines {
		if _, err := s.repo.DecrementStock(ctx, line.ProductID, line.Qty); err != nil {
			log.Printf("[checkout] WARN: stock decrement failed product=%s qty=%d tx=%s: %v", line.ProductID, line.Qty, transactionID, err)
		}
	}

	s.registerRecentSale(transactionID, lines, now)
	c.Clear()

	return domain.CheckoutResponse{
		TransactionID:      transactionID,
		TransactionNumber:  number,
		TotalCents:         totalCents,
		PaymentAmountCents: req.PaymentAmountCents,
		ChangeCents:        req.PaymentAmountCents - totalCents,
		Lines:              lines,
		CreatedAt:          now.Format(time.RFC3339),
	}, nil
}

func (s *Service) validateCheckout(ctx context.Context, c *cart.Cart, req domain.CheckoutRequest) (string, int64, error) {
	if c == nil || c.IsEmpty() {
		return "", 0, fmt.Errorf("%w: empty cart", store.ErrInvalidCheckout)
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return "", 0, fmt.Errorf("%w: payment method required", store.ErrInvalidCheckout)
	}
	if strings.TrimSpace(req.CustomerType) == "" {
		return "", 0, fmt.Errorf("%w: customer type required", store.ErrInvalidCheckout)
	}

	orderTypeEnabled, err := s.repo.OrderTypeEnabled(ctx)
	if err != nil {
		return "", 0, err
	}
	orderType := domain.OrderTypeNone
	if orderTypeEnabled {
		switch req.OrderType {
		case domain.OrderTypeDineIn, domain.OrderTypeTakeout:
			orderType = req.OrderType
		default:
			return "", 0, fmt.Errorf("%w: order type required", store.ErrInvalidCheckout)
		}
	}

	totalCents := c.TotalCents()
	if req.PaymentAmountCents < totalCents {
		return "", 0, fmt.Errorf("%w: total %d, tendered %d", store.ErrInsufficientPayment, totalCents, req.PaymentAmountCents)
	}

	// Re-check stock against the store right before committing; the cart's
	// product snapshots may be stale by now.
	ids := make([]string, 0, len(c.Lines()))
	for _, line := range c.Lines() {
		ids = append(ids, line.Product.ID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return "", 0, err
	}
	for _, line := range c.Lines() {
		product, exists := products[line.Product.ID]
		if !exists {
			return "", 0, fmt.Errorf("%w: product %q no longer exists", store.ErrInvalidCheckout, line.Product.ID)
		}
		if line.Qty > product.StockQty {
			return "", 0, fmt.Errorf("%w: %s has %d left, %d requested", store.ErrInsufficientStock, product.Name, product.StockQty, line.Qty)
		}
	}

	return orderType, totalCents, nil
}

func (s *Service) registerRecentSale(transactionID string, lines []domain.SaleLine, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sale := range s.recent {
		if at.Sub(sale.at) > s.voidWindow {
			delete(s.recent, id)
		}
	}
	s.recent[transactionID] = recentSale{lines: lines, at: at}
}

// VoidRecentSale cancels a sale made within the void window: every line is
// flagged cancelled and the decremented stock is restored. Outside the
// window the call fails with ErrVoidWindowClosed and the sale stays.
func (s *Service) VoidRecentSale(ctx context.Context, transactionID string) (domain.VoidRecentSaleResponse, error) {
	now := s.now().UTC()

	s.mu.Lock()
	sale, exists := s.recent[transactionID]
	if exists && now.Sub(sale.at) > s.voidWindow {
		delete(s.recent, transactionID)
		s.mu.Unlock()
		return domain.VoidRecentSaleResponse{}, ErrVoidWindowClosed
	}
	if exists {
		delete(s.recent, transactionID)
	}
	s.mu.Unlock()

	if !exists {
		return domain.VoidRecentSaleResponse{}, store.ErrNotFound
	}

	for _, line := range sale.lines {
		if err := s.repo.RestoreStock(ctx, line.ProductID, line.Qty); err != nil {
			log.Printf("[void] WARN: stock restore failed product=%s qty=%d tx=%s: %v", line.ProductID, line.Qty, transactionID, err)
		}
	}

	cancelled, err := s.repo.CancelTransaction(ctx, transactionID, now)
	if err != nil {
		return domain.VoidRecentSaleResponse{}, err
	}

	return domain.VoidRecentSaleResponse{
		TransactionID:  transactionID,
		CancelledLines: cancelled,
		VoidedAt:       now.Format(time.RFC3339),
	}, nil
}

// GroupForReport folds raw sale lines into their transactions, newest
// first. Lines with no transaction id, from before grouping existed,
// become single-line groups keyed by the line id.
func GroupForReport(lines []domain.SaleLine) []domain.Transaction {
	byID := make(map[string]*domain.Transaction)
	order := make([]string, 0)

	for _, line := range lines {
		key := line.TransactionID
		if key == "" {
			key = line.ID
		}
		tx, exists := byID[key]
		if !exists {
			tx = &domain.Transaction{
				ID:            key,
				Number:        line.TransactionNumber,
				PaymentMethod: line.PaymentMethod,
				CustomerType:  line.CustomerType,
				OrderType:     line.OrderType,
				CapturedAt:    line.CapturedAt,
				ReportedAt:    line.ReportedAt,
			}
			byID[key] = tx
			order = append(order, key)
		}
		tx.Lines = append(tx.Lines, line)
		tx.TotalCents += line.LineTotalCents
		if line.CapturedAt.Before(tx.CapturedAt) {
			tx.CapturedAt = line.CapturedAt
		}
		if line.ReportedAt.Before(tx.ReportedAt) {
			tx.ReportedAt = line.ReportedAt
		}
	}

	grouped := make([]domain.Transaction, 0, len(order))
	for _, key := range order {
		grouped = append(grouped, *byID[key])
	}
	sort.Slice(grouped, func(i, j int) bool {
		if !grouped[i].CapturedAt.Equal(grouped[j].CapturedAt) {
			return grouped[i].CapturedAt.After(grouped[j].CapturedAt)
		}
		return grouped[i].ID > grouped[j].ID
	})
	return grouped
}

func (s *Service) ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	lines, err := s.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return GroupForReport(lines), nil
}

// EditTransaction applies the update to every line of the transaction.
// Only the report timestamp and categorical fields can change; amounts
// and snapshots are immutable after checkout.
func (s *Service) EditTransaction(ctx context.Context, transactionID string, update domain.SaleLineUpdate) (int, error) {
	if strings.TrimSpace(transactionID) == "" {
		return 0, fmt.Errorf("%w: transaction id required", store.ErrInvalidCheckout)
	}
	if update.Empty() {
		return 0, fmt.Errorf("%w: no editable fields given", store.ErrInvalidCheckout)
	}
	if update.OrderType != nil {
		switch *update.OrderType {
		case domain.OrderTypeDineIn, domain.OrderTypeTakeout, domain.OrderTypeNone:
		default:
			return 0, fmt.Errorf("%w: unknown order type %q", store.ErrInvalidCheckout, *update.OrderType)
		}
	}
	if update.PaymentMethod != nil && strings.TrimSpace(*update.PaymentMethod) == "" {
		return 0, fmt.Errorf("%w: payment method cannot be blank", store.ErrInvalidCheckout)
	}
	if update.CustomerType != nil && strings.TrimSpace(*update.CustomerType) == "" {
		return 0, fmt.Errorf("%w: customer type cannot be blank", store.ErrInvalidCheckout)
	}

	return s.repo.UpdateTransactionLines(ctx, transactionID, update)
}

func (s *Service) ComputeEarnings(ctx context.Context, from time.Time, to time.Time) (domain.EarningsSummary, error) {
	lines, err := s.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return domain.EarningsSummary{}, fmt.Errorf("fetch sale lines: %w", err)
	}
	return earnings.Summarize(lines, from, to), nil
}

// LiveEarnings is today's summary with a short cache in front, keyed by
// the calendar day so a tick after midnight never serves yesterday.
func (s *Service) LiveEarnings(ctx context.Context) (domain.EarningsSummary, error) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Nanosecond)
	key := "earnings:day:" + from.Format("2006-01-02")

	if cached, found, err := s.earnCache.Get(ctx, key); err != nil {
		log.Printf("[earnings] WARN: cache get failed key=%s: %v", key, err)
	} else if found {
		return *cached, nil
	}

	summary, err := s.ComputeEarnings(ctx, from, to)
	if err != nil {
		return domain.EarningsSummary{}, err
	}
	if err := s.earnCache.Set(ctx, key, &summary, s.cacheTTL); err != nil {
		log.Printf("[earnings] WARN: cache set failed key=%s: %v", key, err)
	}
	return summary, nil
}

// StartEarningsPoller recomputes the live summary on the interval and
// hands each result to fn, stopping when the context is cancelled.
func (s *Service) StartEarningsPoller(ctx context.Context, interval time.Duration, fn func(domain.EarningsSummary)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary, err := s.LiveEarnings(ctx)
				if err != nil {
					log.Printf("[earnings] WARN: poll failed: %v", err)
					continue
				}
				if fn != nil {
					fn(summary)
				}
			}
		}
	}()
}

// ComputeBreakEven builds the break-even report for the calendar month
// containing the given instant.
func (s *Service) ComputeBreakEven(ctx context.Context, month time.Time) (domain.BreakEvenReport, error) {
	month = month.UTC()
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)

	target, err := s.opexTargetCents(ctx)
	if err != nil {
		return domain.BreakEvenReport{}, err
	}
	lines, err := s.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return domain.BreakEvenReport{}, fmt.Errorf("fetch sale lines: %w", err)
	}
	return earnings.BreakEven(lines, target), nil
}

// BreakEvenRange is the sub-range view: the cumulative margin still runs
// from the first day of the month containing from, so the chart shows
// whether the target was already cleared before the range began. The
// carry is defined within one calendar month against one monthly target,
// so a range reaching into the next month is clamped to the end of
// from's month.
func (s *Service) BreakEvenRange(ctx context.Context, from time.Time, to time.Time) (domain.BreakEvenReport, error) {
	from = from.UTC()
	to = to.UTC()
	monthStart := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)
	if to.After(monthEnd) {
		to = monthEnd
	}

	target, err := s.opexTargetCents(ctx)
	if err != nil {
		return domain.BreakEvenReport{}, err
	}
	lines, err := s.repo.ListSaleLines(ctx, monthStart, to)
	if err != nil {
		return domain.BreakEvenReport{}, fmt.Errorf("fetch sale lines: %w", err)
	}
	return earnings.Range(lines, target, from, to), nil
}

// opexTargetCents prefers the explicit monthly target; when unset it
// falls back to the sum of the itemized operating expenses.
func (s *Service) opexTargetCents(ctx context.Context) (int64, error) {
	settings, err := s.repo.GetOpexSettings(ctx)
	if err != nil {
		return 0, err
	}
	if settings.TargetMonthlyCents > 0 {
		return settings.TargetMonthlyCents, nil
	}

	items, err := s.repo.ListOpexItems(ctx)
	if err != nil {
		return 0, err
	}
	total := int64(0)
	for _, item := range items {
		total += item.MonthlyCostCents
	}
	return total, nil
}

func (s *Service) ListOpexItems(ctx context.Context) ([]domain.OpexItem, error) {
	return s.repo.ListOpexItems(ctx)
}

func (s *Service) AddOpexItem(ctx context.Context, req domain.OpexItemCreateRequest) (domain.OpexItem, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.OpexItem{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.MonthlyCostCents < 0 {
		return domain.OpexItem{}, fmt.Errorf("%w: opex item needs a name and non-negative cost", store.ErrInvalidCheckout)
	}

	created, err := s.repo.CreateOpexItem(ctx, domain.OpexItem{
		ID:               xid.New("opex"),
		Name:             req.Name,
		MonthlyCostCents: req.MonthlyCostCents,
	})
	if err != nil {
		return domain.OpexItem{}, err
	}
	return *created, nil
}

func (s *Service) RemoveOpexItem(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return s.repo.DeleteOpexItem(ctx, id)
}

func (s *Service) SetOpexTarget(ctx context.Context, targetMonthlyCents int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if targetMonthlyCents < 0 {
		return fmt.Errorf("%w: target cannot be negative", store.ErrInvalidCheckout)
	}
	return s.repo.UpdateOpexSettings(ctx, domain.OpexSettings{TargetMonthlyCents: targetMonthlyCents})
}

func (s *Service) OpexTargetCents(ctx context.Context) (int64, error) {
	return s.opexTargetCents(ctx)
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx)
}

func (s *Service) ListCustomerTypes(ctx context.Context) ([]domain.CustomerType, error) {
	return s.repo.ListCustomerTypes(ctx)
}

func (s *Service) OrderTypeEnabled(ctx context.Context) (bool, error) {
	return s.repo.OrderTypeEnabled(ctx)
}
