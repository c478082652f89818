package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
)

// ErrArchiveDeletion is returned when the export succeeded but removing
// the archived lines failed. The CSV in the result is still complete, so
// the caller can retry the deletion without losing data.
var ErrArchiveDeletion = errors.New("archive deletion failed after export")

var archiveHeader = []string{
	"transaction_number",
	"items",
	"payment_method",
	"customer_type",
	"order_type",
	"captured_at",
	"reported_at",
	"total_cents",
}

// ArchiveAndExport exports the selected transactions to CSV and then
// deletes their sale lines. The export is written in full before any
// deletion runs; if deletion fails the result carries the CSV alongside
// ErrArchiveDeletion. Unknown transaction ids are skipped silently.
func (s *Service) ArchiveAndExport(ctx context.Context, transactionIDs []string) (domain.ArchiveResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ArchiveResult{}, fmt.Errorf("admin role required")
	}

	seen := make(map[string]struct{}, len(transactionIDs))
	lines := make([]domain.SaleLine, 0)
	for _, id := range transactionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		txLines, err := s.repo.ListSaleLinesByTransaction(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return domain.ArchiveResult{}, fmt.Errorf("fetch transaction %s: %w", id, err)
		}
		lines = append(lines, txLines...)
	}

	transactions := GroupForReport(lines)
	exported, err := buildArchiveCSV(transactions)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("build export: %w", err)
	}

	result := domain.ArchiveResult{
		CSV:                  exported,
		ExportedTransactions: len(transactions),
	}
	if len(lines) == 0 {
		return result, nil
	}

	lineIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		lineIDs = append(lineIDs, line.ID)
	}
	deleted, err := s.repo.DeleteSaleLines(ctx, lineIDs)
	result.DeletedLines = deleted
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrArchiveDeletion, err)
	}
	return result, nil
}

func buildArchiveCSV(transactions []domain.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(archiveHeader); err != nil {
		return nil, err
	}
	for _, tx := range transactions {
		record := []string{
			tx.Number,
			formatItemList(tx.Lines),
			tx.PaymentMethod,
			tx.CustomerType,
			tx.OrderType,
			tx.CapturedAt.UTC().Format(time.RFC3339),
			tx.ReportedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(tx.TotalCents, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formatItemList renders a transaction's lines as "2x Latte; 1x Mocha".
func formatItemList(lines []domain.SaleLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%dx %s", line.Qty, line.ProductName))
	}
	return strings.Join(parts, "; ")
}
