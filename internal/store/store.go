package store

import (
	"context"
	"errors"
	"time"

	"github.com/rvmonterde003/kashpos/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidCheckout     = errors.New("invalid checkout")
)

// Repository is the narrow surface the engine needs from the record store.
// Each method is atomic on its own; only InsertSaleLines groups multiple
// rows into one unit, because the lines of a checkout must land together.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// DecrementStock subtracts qty from the product's stock, floored at
	// zero, and returns the new quantity. RestoreStock is its compensation.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
	RestoreStock(ctx context.Context, productID string, qty int) error

	InsertSaleLines(ctx context.Context, lines []domain.SaleLine) ([]string, error)
	ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error)
	ListSaleLinesByTransaction(ctx context.Context, transactionID string) ([]domain.SaleLine, error)
	// UpdateTransactionLines applies the update to every line sharing the
	// transaction id, so the group can never drift apart field by field.
	UpdateTransactionLines(ctx context.Context, transactionID string, update domain.SaleLineUpdate) (int, error)
	CancelTransaction(ctx context.Context, transactionID string, at time.Time) (int, error)
	DeleteSaleLines(ctx context.Context, ids []string) (int, error)

	LatestTransactionNumber(ctx context.Context, prefix string) (string, error)
	// NextTransactionSequence returns the next sequence for the YY-MM
	// prefix from an atomic counter. The counter self-seeds from the
	// largest legacy number under the prefix the first time it is hit.
	NextTransactionSequence(ctx context.Context, prefix string) (int, error)

	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	ListCustomerTypes(ctx context.Context) ([]domain.CustomerType, error)
	OrderTypeEnabled(ctx context.Context) (bool, error)

	ListOpexItems(ctx context.Context) ([]domain.OpexItem, error)
	CreateOpexItem(ctx context.Context, item domain.OpexItem) (*domain.OpexItem, error)
	DeleteOpexItem(ctx context.Context, id string) error
	GetOpexSettings(ctx context.Context) (domain.OpexSettings, error)
	UpdateOpexSettings(ctx context.Context, settings domain.OpexSettings) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
