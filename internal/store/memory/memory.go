package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
	"github.com/rvmonterde003/kashpos/internal/txnumber"
	"github.com/rvmonterde003/kashpos/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	saleLines        map[string]domain.SaleLine
	sequenceByPrefix map[string]int
	paymentMethods   []domain.PaymentMethod
	customerTypes    []domain.CustomerType
	orderTypeEnabled bool
	opexItems        map[string]domain.OpexItem
	opexSettings     domain.OpexSettings
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. Production
// deployments use PostgreSQL (DATABASE_URL set) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-americano", Name: "Americano", StockQty: 120, CostCents: 3500, PriceCents: 9500, Active: true},
		{ID: "prod-latte", Name: "Cafe Latte", StockQty: 120, CostCents: 4800, PriceCents: 12000, Active: true},
		{ID: "prod-mocha", Name: "Mocha", StockQty: 100, CostCents: 5200, PriceCents: 13000, Active: true},
		{ID: "prod-choco", Name: "Hot Choco", StockQty: 80, CostCents: 4000, PriceCents: 11000, Active: true},
		{ID: "prod-ensaymada", Name: "Ensaymada", StockQty: 40, CostCents: 2500, PriceCents: 6500, Active: true},
		{ID: "prod-cheesecake", Name: "Cheesecake Slice", StockQty: 24, CostCents: 7000, PriceCents: 16000, Active: true},
		{ID: "prod-siopao", Name: "Siopao", StockQty: 50, CostCents: 3000, PriceCents: 7500, Active: true},
		{ID: "prod-bottled-water", Name: "Bottled Water", StockQty: 200, CostCents: 900, PriceCents: 2500, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:         productMap,
		saleLines:        make(map[string]domain.SaleLine),
		sequenceByPrefix: make(map[string]int),
		paymentMethods: []domain.PaymentMethod{
			{Name: "Cash", Color: "#4caf50"},
			{Name: "GCash", Color: "#2196f3"},
			{Name: "Maya", Color: "#00bfa5"},
			{Name: "Card", Color: "#9c27b0"},
		},
		customerTypes: []domain.CustomerType{
			{Name: "Walk-in", Color: "#ff9800"},
			{Name: "Regular", Color: "#3f51b5"},
			{Name: "Student", Color: "#009688"},
		},
		orderTypeEnabled: true,
		opexItems:        make(map[string]domain.OpexItem),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 1 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidCheckout
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidCheckout
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return 0, store.ErrNotFound
	}
	product.StockQty -= qty
	if product.StockQty < 0 {
		product.StockQty = 0
	}
	s.products[productID] = product
	return product.StockQty, nil
}

func (s *Store) RestoreStock(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.StockQty += qty
	s.products[productID] = product
	return nil
}

func (s *Store) InsertSaleLines(_ context.Context, lines []domain.SaleLine) ([]string, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate all lines before writing any, so the batch lands as a unit.
	for _, line := range lines {
		if line.ID == "" || line.TransactionID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidCheckout
		}
		if _, exists := s.saleLines[line.ID]; exists {
			return nil, store.ErrInvalidCheckout
		}
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		s.saleLines[line.ID] = line
		ids = append(ids, line.ID)
	}
	return ids, nil
}

func (s *Store) ListSaleLines(_ context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleLine, 0, len(s.saleLines))
	for _, line := range s.saleLines {
		if line.ReportedAt.Before(from) || line.ReportedAt.After(to) {
			continue
		}
		result = append(result, line)
	}
	slices.SortFunc(result, compareLinesByReportedAt)
	return result, nil
}

func (s *Store) ListSaleLinesByTransaction(_ context.Context, transactionID string) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleLine, 0, 4)
	for _, line := range s.saleLines {
		if line.TransactionID == transactionID {
			result = append(result, line)
		}
	}
	if len(result) == 0 {
		return nil, store.ErrNotFound
	}
	slices.SortFunc(result, compareLinesByReportedAt)
	return result, nil
}

func (s *Store) UpdateTransactionLines(_ context.Context, transactionID string, update domain.SaleLineUpdate) (int, error) {
	if update.Empty() {
		return 0, store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for id, line := range s.saleLines {
		if line.TransactionID != transactionID {
			continue
		}
		if update.PaymentMethod != nil {
			line.PaymentMethod = *update.PaymentMethod
		}
		if update.CustomerType != nil {
			line.CustomerType = *update.CustomerType
		}
		if update.OrderType != nil {
			line.OrderType = *update.OrderType
		}
		if update.ReportedAt != nil {
			line.ReportedAt = update.ReportedAt.UTC()
		}
		s.saleLines[id] = line
		updated++
	}
	if updated == 0 {
		return 0, store.ErrNotFound
	}
	return updated, nil
}

func (s *Store) CancelTransaction(_ context.Context, transactionID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for id, line := range s.saleLines {
		if line.TransactionID != transactionID || line.Cancelled {
			continue
		}
		when := at.UTC()
		line.Cancelled = true
		line.CancelledAt = &when
		s.saleLines[id] = line
		cancelled++
	}
	if cancelled == 0 {
		return 0, store.ErrNotFound
	}
	return cancelled, nil
}

func (s *Store) DeleteSaleLines(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, exists := s.saleLines[id]; exists {
			delete(s.saleLines, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) LatestTransactionNumber(_ context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest, ok := s.latestNumberLocked(prefix)
	if !ok {
		return "", store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) NextTransactionSequence(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequenceByPrefix[prefix]
	if !ok {
		// First allocation under this prefix: seed from the largest
		// legacy number so historical rows keep numbering continuous.
		if latest, found := s.latestNumberLocked(prefix); found {
			seq = txnumber.ParseSequence(latest)
		}
	}
	seq++
	s.sequenceByPrefix[prefix] = seq
	return seq, nil
}

func (s *Store) latestNumberLocked(prefix string) (string, bool) {
	best := ""
	bestSeq := -1
	for _, line := range s.saleLines {
		if !strings.HasPrefix(line.TransactionNumber, prefix+"-") {
			continue
		}
		if seq := txnumber.ParseSequence(line.TransactionNumber); seq > bestSeq {
			bestSeq = seq
			best = line.TransactionNumber
		}
	}
	return best, bestSeq >= 0
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PaymentMethod, len(s.paymentMethods))
	copy(result, s.paymentMethods)
	return result, nil
}

func (s *Store) ListCustomerTypes(_ context.Context) ([]domain.CustomerType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomerType, len(s.customerTypes))
	copy(result, s.customerTypes)
	return result, nil
}

func (s *Store) OrderTypeEnabled(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderTypeEnabled, nil
}

// SetOrderTypeEnabled flips the feature flag. Only used in tests and dev
// seeding; the flag is read-only through the Repository interface.
func (s *Store) SetOrderTypeEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderTypeEnabled = enabled
}

func (s *Store) ListOpexItems(_ context.Context) ([]domain.OpexItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.OpexItem, 0, len(s.opexItems))
	for _, item := range s.opexItems {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.OpexItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) CreateOpexItem(_ context.Context, item domain.OpexItem) (*domain.OpexItem, error) {
	if item.Name == "" || item.MonthlyCostCents < 1 {
		return nil, store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("opex")
	}
	s.opexItems[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) DeleteOpexItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.opexItems[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.opexItems, id)
	return nil
}

func (s *Store) GetOpexSettings(_ context.Context) (domain.OpexSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opexSettings, nil
}

func (s *Store) UpdateOpexSettings(_ context.Context, settings domain.OpexSettings) error {
	if settings.TargetMonthlyCents < 0 {
		return store.ErrInvalidCheckout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opexSettings = settings
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalidCheckout
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidCheckout
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareLinesByReportedAt(a domain.SaleLine, b domain.SaleLine) int {
	if !a.ReportedAt.Equal(b.ReportedAt) {
		if a.ReportedAt.Before(b.ReportedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
