package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
	"github.com/rvmonterde003/kashpos/internal/store/memory"
	"github.com/rvmonterde003/kashpos/internal/txnumber"
)

func TestArchiveAndExportRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ArchiveAndExport(context.Background(), []string{"tx-1"})
	if err == nil {
		t.Fatalf("expected anonymous archive rejected")
	}

	cashierCtx := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
	if _, err := svc.ArchiveAndExport(cashierCtx, []string{"tx-1"}); err == nil {
		t.Fatalf("expected cashier archive rejected")
	}
}

func TestArchiveAndExportWritesCSVThenDeletes(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminContext()

	resp := checkoutOnce(t, svc, []domain.CheckoutItem{
		{ProductID: "prod-latte", Qty: 2},
		{ProductID: "prod-mocha", Qty: 1},
	}, domain.CheckoutRequest{
		PaymentMethod:      "GCash",
		CustomerType:       "Regular",
		PaymentAmountCents: 40000,
	})

	// Duplicate and unknown ids must not affect the export.
	result, err := svc.ArchiveAndExport(ctx, []string{resp.TransactionID, resp.TransactionID, "tx-missing"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if result.ExportedTransactions != 1 {
		t.Fatalf("expected 1 exported transaction, got %d", result.ExportedTransactions)
	}
	if result.DeletedLines != 2 {
		t.Fatalf("expected 2 deleted lines, got %d", result.DeletedLines)
	}

	records, err := csv.NewReader(bytes.NewReader(result.CSV)).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d records", len(records))
	}
	if records[0][0] != "transaction_number" {
		t.Fatalf("unexpected header %v", records[0])
	}

	row := records[1]
	if row[0] != resp.TransactionNumber {
		t.Fatalf("expected number %s, got %s", resp.TransactionNumber, row[0])
	}
	if row[1] != "2x Cafe Latte; 1x Mocha" {
		t.Fatalf("unexpected item list %q", row[1])
	}
	if row[2] != "GCash" || row[3] != "Regular" {
		t.Fatalf("unexpected categorical fields %v", row)
	}
	if row[7] != strconv.FormatInt(resp.TotalCents, 10) {
		t.Fatalf("expected total %d, got %s", resp.TotalCents, row[7])
	}

	// The archived lines are gone from the store.
	if _, err := repo.ListSaleLinesByTransaction(context.Background(), resp.TransactionID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected archived lines deleted, got %v", err)
	}
}

func TestArchiveAndExportSkipsUnknownIDsOnly(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.ArchiveAndExport(adminContext(), []string{"tx-missing", "  "})
	if err != nil {
		t.Fatalf("archive with nothing to do: %v", err)
	}
	if result.ExportedTransactions != 0 || result.DeletedLines != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if len(result.CSV) == 0 {
		t.Fatalf("expected header-only csv, got empty export")
	}
}

func TestArchiveAndExportReportsDeletionFailureWithCSV(t *testing.T) {
	base := memory.NewSeeded()
	base.SetOrderTypeEnabled(false)
	repo := &flakyRepo{Store: base, deleteErr: fmt.Errorf("disk full")}
	svc := New(repo, txnumber.NewAllocator(base), nil, 0, 0)

	resp := checkoutOnce(t, svc, []domain.CheckoutItem{{ProductID: "prod-choco", Qty: 1}}, domain.CheckoutRequest{
		PaymentMethod:      "Cash",
		CustomerType:       "Walk-in",
		PaymentAmountCents: 11000,
	})

	result, err := svc.ArchiveAndExport(adminContext(), []string{resp.TransactionID})
	if !errors.Is(err, ErrArchiveDeletion) {
		t.Fatalf("expected archive deletion error, got %v", err)
	}
	if len(result.CSV) == 0 {
		t.Fatalf("expected CSV preserved on deletion failure")
	}
	if result.ExportedTransactions != 1 {
		t.Fatalf("expected export still counted, got %d", result.ExportedTransactions)
	}

	// Nothing was deleted, so the sale must still be readable.
	lines, listErr := base.ListSaleLinesByTransaction(context.Background(), resp.TransactionID)
	if listErr != nil {
		t.Fatalf("list lines: %v", listErr)
	}
	if len(lines) != 1 {
		t.Fatalf("expected sale intact after failed deletion, got %d lines", len(lines))
	}
}
