package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
)

func seedLine(id string, txID string, number string, at time.Time) domain.SaleLine {
	return domain.SaleLine{
		ID:                id,
		TransactionID:     txID,
		TransactionNumber: number,
		ProductName:       "Americano",
		Qty:               1,
		UnitPriceCents:    9500,
		UnitCostCents:     3500,
		LineTotalCents:    9500,
		PaymentMethod:     "Cash",
		CustomerType:      "Walk-in",
		CapturedAt:        at,
		ReportedAt:        at,
	}
}

func TestDecrementStockFloorsAtZero(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	remaining, err := s.DecrementStock(ctx, "prod-cheesecake", 20)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("expected 4 remaining, got %d", remaining)
	}

	remaining, err = s.DecrementStock(ctx, "prod-cheesecake", 10)
	if err != nil {
		t.Fatalf("decrement past zero: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected stock floored at 0, got %d", remaining)
	}

	if _, err := s.DecrementStock(ctx, "prod-missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestRestoreStockAddsBack(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.DecrementStock(ctx, "prod-siopao", 5); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := s.RestoreStock(ctx, "prod-siopao", 5); err != nil {
		t.Fatalf("restore: %v", err)
	}

	p, err := s.GetProduct(ctx, "prod-siopao")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQty != 50 {
		t.Fatalf("expected stock back at 50, got %d", p.StockQty)
	}
}

func TestInsertSaleLinesIsAllOrNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Now().UTC()

	good := seedLine("sl-1", "tx-1", "26-09-00001", at)
	bad := seedLine("", "tx-1", "26-09-00001", at)

	if _, err := s.InsertSaleLines(ctx, []domain.SaleLine{good, bad}); !errors.Is(err, store.ErrInvalidCheckout) {
		t.Fatalf("expected batch rejected, got %v", err)
	}
	if _, err := s.ListSaleLinesByTransaction(ctx, "tx-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no lines written from a rejected batch, got %v", err)
	}
}

func TestUpdateTransactionLinesFansOut(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Now().UTC()

	lines := []domain.SaleLine{
		seedLine("sl-1", "tx-1", "26-09-00001", at),
		seedLine("sl-2", "tx-1", "26-09-00001", at),
		seedLine("sl-3", "tx-2", "26-09-00002", at),
	}
	if _, err := s.InsertSaleLines(ctx, lines); err != nil {
		t.Fatalf("insert: %v", err)
	}

	method := "Maya"
	updated, err := s.UpdateTransactionLines(ctx, "tx-1", domain.SaleLineUpdate{PaymentMethod: &method})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 sibling lines updated, got %d", updated)
	}

	txLines, err := s.ListSaleLinesByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("list by transaction: %v", err)
	}
	for _, line := range txLines {
		if line.PaymentMethod != "Maya" {
			t.Fatalf("expected every sibling updated, line %s has %s", line.ID, line.PaymentMethod)
		}
	}

	other, err := s.ListSaleLinesByTransaction(ctx, "tx-2")
	if err != nil {
		t.Fatalf("list tx-2: %v", err)
	}
	if other[0].PaymentMethod != "Cash" {
		t.Fatalf("expected unrelated transaction untouched")
	}

	if _, err := s.UpdateTransactionLines(ctx, "tx-1", domain.SaleLineUpdate{}); !errors.Is(err, store.ErrInvalidCheckout) {
		t.Fatalf("expected empty update rejected, got %v", err)
	}
	if _, err := s.UpdateTransactionLines(ctx, "tx-missing", domain.SaleLineUpdate{PaymentMethod: &method}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown transaction, got %v", err)
	}
}

func TestCancelTransactionMarksAllLines(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Now().UTC()

	lines := []domain.SaleLine{
		seedLine("sl-1", "tx-1", "26-09-00001", at),
		seedLine("sl-2", "tx-1", "26-09-00001", at),
	}
	if _, err := s.InsertSaleLines(ctx, lines); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cancelled, err := s.CancelTransaction(ctx, "tx-1", at.Add(time.Minute))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 lines cancelled, got %d", cancelled)
	}

	txLines, err := s.ListSaleLinesByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, line := range txLines {
		if !line.Cancelled || line.CancelledAt == nil {
			t.Fatalf("expected line %s cancelled with timestamp", line.ID)
		}
	}

	// A second cancel finds no active lines left.
	if _, err := s.CancelTransaction(ctx, "tx-1", at.Add(2*time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on repeat cancel, got %v", err)
	}
}

func TestListSaleLinesFiltersOnReportTimestamp(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	day := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)

	inRange := seedLine("sl-1", "tx-1", "26-09-00001", day.Add(10*time.Hour))
	outOfRange := seedLine("sl-2", "tx-2", "26-09-00002", day.Add(30*time.Hour))
	if _, err := s.InsertSaleLines(ctx, []domain.SaleLine{inRange, outOfRange}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.ListSaleLines(ctx, day, day.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "sl-1" {
		t.Fatalf("expected only the in-range line, got %+v", got)
	}
}

func TestNextTransactionSequenceSeedsFromLegacyNumbers(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Date(2026, time.September, 5, 12, 0, 0, 0, time.UTC)

	legacy := seedLine("sl-legacy", "tx-legacy", "26-09-00041", at)
	if _, err := s.InsertSaleLines(ctx, []domain.SaleLine{legacy}); err != nil {
		t.Fatalf("insert legacy line: %v", err)
	}

	seq, err := s.NextTransactionSequence(ctx, "26-09")
	if err != nil {
		t.Fatalf("next sequence: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected sequence to continue after legacy max, got %d", seq)
	}

	seq, err = s.NextTransactionSequence(ctx, "26-09")
	if err != nil {
		t.Fatalf("next sequence again: %v", err)
	}
	if seq != 43 {
		t.Fatalf("expected 43, got %d", seq)
	}

	// A different prefix starts from scratch.
	seq, err = s.NextTransactionSequence(ctx, "26-10")
	if err != nil {
		t.Fatalf("next sequence for new prefix: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected fresh prefix to start at 1, got %d", seq)
	}
}

func TestLatestTransactionNumberContract(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Now().UTC()

	if _, err := s.LatestTransactionNumber(ctx, "26-09"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when no numbers exist under the prefix, got %v", err)
	}

	// A widened six-digit sequence outranks the five-digit maximum even
	// though it sorts lower as bytes.
	lines := []domain.SaleLine{
		seedLine("sl-1", "tx-1", "26-09-99999", at),
		seedLine("sl-2", "tx-2", "26-09-123456", at),
	}
	if _, err := s.InsertSaleLines(ctx, lines); err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := s.LatestTransactionNumber(ctx, "26-09")
	if err != nil {
		t.Fatalf("latest number: %v", err)
	}
	if latest != "26-09-123456" {
		t.Fatalf("expected widened sequence to rank highest, got %s", latest)
	}
}

func TestDeleteSaleLinesCountsOnlyExisting(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	at := time.Now().UTC()

	if _, err := s.InsertSaleLines(ctx, []domain.SaleLine{seedLine("sl-1", "tx-1", "26-09-00001", at)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	deleted, err := s.DeleteSaleLines(ctx, []string{"sl-1", "sl-missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}

func TestOpexSettingsRejectNegativeTarget(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.UpdateOpexSettings(ctx, domain.OpexSettings{TargetMonthlyCents: -1}); !errors.Is(err, store.ErrInvalidCheckout) {
		t.Fatalf("expected negative target rejected, got %v", err)
	}
	if err := s.UpdateOpexSettings(ctx, domain.OpexSettings{TargetMonthlyCents: 250000}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	settings, err := s.GetOpexSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.TargetMonthlyCents != 250000 {
		t.Fatalf("expected target 250000, got %d", settings.TargetMonthlyCents)
	}
}
