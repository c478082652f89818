package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
	"github.com/rvmonterde003/kashpos/internal/txnumber"
	"github.com/rvmonterde003/kashpos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock_qty, cost_cents, price_cents, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.StockQty, &p.CostCents, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stock_qty, cost_cents, price_cents, active
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.StockQty, &product.CostCents, &product.PriceCents, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock_qty, cost_cents, price_cents, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.StockQty, &p.CostCents, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidCheckout
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, stock_qty, cost_cents, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.Name, product.StockQty, product.CostCents, product.PriceCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidCheckout
		}
		return nil, err
	}

	created := product
	return &created, nil
}

// DecrementStock floors at zero inside the database so an over-sell race
// can never drive stock negative.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidCheckout
	}

	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = GREATEST(stock_qty - $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING stock_qty
	`, productID, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return remaining, nil
}

func (s *Store) RestoreStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidCheckout
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertSaleLines(ctx context.Context, lines []domain.SaleLine) ([]string, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidCheckout
	}
	for _, line := range lines {
		if line.ID == "" || line.TransactionID == "" || line.TransactionNumber == "" || line.Qty < 1 {
			return nil, store.ErrInvalidCheckout
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (
				id, transaction_id, transaction_number, product_id, product_name,
				unit_cost_cents, unit_price_cents, qty, line_total_cents,
				payment_method, customer_type, order_type,
				captured_at, reported_at, payment_amount_cents, cancelled, cancelled_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, line.ID, line.TransactionID, line.TransactionNumber, nullIfEmpty(line.ProductID), line.ProductName,
			line.UnitCostCents, line.UnitPriceCents, line.Qty, line.LineTotalCents,
			line.PaymentMethod, line.CustomerType, line.OrderType,
			line.CapturedAt, line.ReportedAt, line.PaymentAmountCents, line.Cancelled, nullTime(line.CancelledAt))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidCheckout
			}
			return nil, err
		}
		ids = append(ids, line.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

const saleLineColumns = `
	id, transaction_id, transaction_number, product_id, product_name,
	unit_cost_cents, unit_price_cents, qty, line_total_cents,
	payment_method, customer_type, order_type,
	captured_at, reported_at, payment_amount_cents, cancelled, cancelled_at
`

func scanSaleLine(rows *sql.Rows) (domain.SaleLine, error) {
	var line domain.SaleLine
	var productID sql.NullString
	var cancelledAt sql.NullTime
	err := rows.Scan(&line.ID, &line.TransactionID, &line.TransactionNumber, &productID, &line.ProductName,
		&line.UnitCostCents, &line.UnitPriceCents, &line.Qty, &line.LineTotalCents,
		&line.PaymentMethod, &line.CustomerType, &line.OrderType,
		&line.CapturedAt, &line.ReportedAt, &line.PaymentAmountCents, &line.Cancelled, &cancelledAt)
	if err != nil {
		return domain.SaleLine{}, err
	}
	if productID.Valid {
		line.ProductID = productID.String
	}
	line.CapturedAt = line.CapturedAt.UTC()
	line.ReportedAt = line.ReportedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		line.CancelledAt = &at
	}
	return line, nil
}

func (s *Store) ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleLineColumns+`
		FROM sale_lines
		WHERE reported_at >= $1 AND reported_at <= $2
		ORDER BY reported_at ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 256)
	for rows.Next() {
		line, err := scanSaleLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListSaleLinesByTransaction(ctx context.Context, transactionID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleLineColumns+`
		FROM sale_lines
		WHERE transaction_id = $1
		ORDER BY id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		line, err := scanSaleLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, store.ErrNotFound
	}
	return lines, nil
}

// UpdateTransactionLines touches every line under the transaction in one
// statement so the group stays in lockstep.
func (s *Store) UpdateTransactionLines(ctx context.Context, transactionID string, update domain.SaleLineUpdate) (int, error) {
	if update.Empty() {
		return 0, store.ErrInvalidCheckout
	}

	setParts := make([]string, 0, 5)
	args := make([]any, 0, 5)
	args = append(args, transactionID)

	if update.PaymentMethod != nil {
		args = append(args, *update.PaymentMethod)
		setParts = append(setParts, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	if update.CustomerType != nil {
		args = append(args, *update.CustomerType)
		setParts = append(setParts, fmt.Sprintf("customer_type = $%d", len(args)))
	}
	if update.OrderType != nil {
		args = append(args, *update.OrderType)
		setParts = append(setParts, fmt.Sprintf("order_type = $%d", len(args)))
	}
	if update.ReportedAt != nil {
		args = append(args, update.ReportedAt.UTC())
		setParts = append(setParts, fmt.Sprintf("reported_at = $%d", len(args)))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_lines
		SET `+strings.Join(setParts, ", ")+`
		WHERE transaction_id = $1
	`, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, store.ErrNotFound
	}
	return int(affected), nil
}

func (s *Store) CancelTransaction(ctx context.Context, transactionID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_lines
		SET cancelled = true, cancelled_at = COALESCE(cancelled_at, $2)
		WHERE transaction_id = $1
	`, transactionID, at.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, store.ErrNotFound
	}
	return int(affected), nil
}

func (s *Store) DeleteSaleLines(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sale_lines
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) LatestTransactionNumber(ctx context.Context, prefix string) (string, error) {
	return latestNumber(ctx, s.db, prefix)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// latestNumber returns the highest transaction number under the prefix,
// or ErrNotFound when none exists. Sequences are zero-padded but widen
// past five digits, so ranking orders by length before byte order; plain
// MAX would rank "26-09-123456" below "26-09-99999".
func latestNumber(ctx context.Context, q rowQuerier, prefix string) (string, error) {
	var number string
	err := q.QueryRowContext(ctx, `
		SELECT transaction_number
		FROM sale_lines
		WHERE transaction_number LIKE $1 || '-%'
		ORDER BY length(transaction_number) DESC, transaction_number DESC
		LIMIT 1
	`, prefix).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return number, nil
}

// NextTransactionSequence increments the per-prefix counter under a row
// lock. A fresh counter seeds itself from the largest existing number
// under the prefix, so the sequence continues across the migration from
// the old read-then-increment scheme.
func (s *Store) NextTransactionSequence(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, store.ErrInvalidCheckout
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transaction_counters (prefix, last_seq, updated_at)
		VALUES ($1, 0, now())
		ON CONFLICT (prefix) DO NOTHING
	`, prefix)
	if err != nil {
		return 0, err
	}

	var lastSeq int
	err = tx.QueryRowContext(ctx, `
		SELECT last_seq
		FROM transaction_counters
		WHERE prefix = $1
		FOR UPDATE
	`, prefix).Scan(&lastSeq)
	if err != nil {
		return 0, err
	}

	if lastSeq == 0 {
		latest, err := latestNumber(ctx, tx, prefix)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		if err == nil {
			lastSeq = txnumber.ParseSequence(latest)
		}
	}

	next := lastSeq + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE transaction_counters
		SET last_seq = $2, updated_at = now()
		WHERE prefix = $1
	`, prefix, next)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, color
		FROM payment_methods
		ORDER BY position ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.Name, &m.Color); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (s *Store) ListCustomerTypes(ctx context.Context) ([]domain.CustomerType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, color
		FROM customer_types
		ORDER BY position ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.CustomerType, 0, 8)
	for rows.Next() {
		var t domain.CustomerType
		if err := rows.Scan(&t.Name, &t.Color); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) OrderTypeEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled
		FROM feature_flags
		WHERE name = 'order_type'
	`).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return enabled, nil
}

func (s *Store) ListOpexItems(ctx context.Context) ([]domain.OpexItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, monthly_cost_cents
		FROM opex_items
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OpexItem, 0, 16)
	for rows.Next() {
		var item domain.OpexItem
		if err := rows.Scan(&item.ID, &item.Name, &item.MonthlyCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateOpexItem(ctx context.Context, item domain.OpexItem) (*domain.OpexItem, error) {
	if item.Name == "" || item.MonthlyCostCents < 0 {
		return nil, store.ErrInvalidCheckout
	}
	if item.ID == "" {
		item.ID = xid.New("opex")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opex_items (id, name, monthly_cost_cents, created_at)
		VALUES ($1,$2,$3,now())
	`, item.ID, item.Name, item.MonthlyCostCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidCheckout
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) DeleteOpexItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM opex_items
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetOpexSettings(ctx context.Context) (domain.OpexSettings, error) {
	var settings domain.OpexSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT target_monthly_cents
		FROM opex_settings
		WHERE id = 1
	`).Scan(&settings.TargetMonthlyCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OpexSettings{}, nil
		}
		return domain.OpexSettings{}, err
	}
	return settings, nil
}

func (s *Store) UpdateOpexSettings(ctx context.Context, settings domain.OpexSettings) error {
	if settings.TargetMonthlyCents < 0 {
		return store.ErrInvalidCheckout
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opex_settings (id, target_monthly_cents, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id)
		DO UPDATE SET target_monthly_cents = EXCLUDED.target_monthly_cents, updated_at = now()
	`, settings.TargetMonthlyCents)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidCheckout
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidCheckout
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidCheckout
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
