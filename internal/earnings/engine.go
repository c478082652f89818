package earnings

import (
	"slices"
	"time"

	"github.com/rvmonterde003/kashpos/internal/domain"
)

// The aggregation engine is pure: every function is deterministic over its
// input lines and never touches the store. Cancelled lines are always
// excluded, and bucketing always uses the mutable report timestamp, never
// the capture timestamp.

func lineMargin(line domain.SaleLine) int64 {
	return line.LineTotalCents - int64(line.Qty)*line.UnitCostCents
}

func inWindow(at time.Time, from time.Time, to time.Time) bool {
	return !at.Before(from) && !at.After(to)
}

// Summarize computes revenue, cost of goods and gross margin over the
// non-cancelled lines whose report timestamp falls in [from, to], plus
// line-count breakdowns for the categorical charts.
func Summarize(lines []domain.SaleLine, from time.Time, to time.Time) domain.EarningsSummary {
	summary := domain.EarningsSummary{
		ByCustomerType:  make(map[string]int),
		ByPaymentMethod: make(map[string]int),
		ByOrderType:     make(map[string]int),
	}

	for _, line := range lines {
		if line.Cancelled || !inWindow(line.ReportedAt, from, to) {
			continue
		}
		summary.RevenueCents += line.LineTotalCents
		summary.ItemCostCents += int64(line.Qty) * line.UnitCostCents
		summary.LineCount++
		summary.ByCustomerType[line.CustomerType]++
		summary.ByPaymentMethod[line.PaymentMethod]++
		summary.ByOrderType[line.OrderType]++
	}

	summary.GrossMarginCents = summary.RevenueCents - summary.ItemCostCents
	return summary
}

// BreakEven walks the given month-to-date lines in report-timestamp order,
// accumulating gross margin against the OPEX target. The break-even
// instant is the report timestamp of the first line at which the running
// margin reaches the target; it is only defined for a positive target.
// Net profit is a waterfall: exactly zero until the target is covered,
// then the excess.
func BreakEven(lines []domain.SaleLine, targetCents int64) domain.BreakEvenReport {
	return breakEven(lines, targetCents, nil)
}

// Range is BreakEven with the chart points restricted to [from, to]. The
// running margin still accumulates from the start of the line set, so a
// sub-range view reflects whether the target was already cleared earlier
// in the month. Headline figures cover everything up to the end of the
// range.
func Range(lines []domain.SaleLine, targetCents int64, from time.Time, to time.Time) domain.BreakEvenReport {
	report := breakEven(lines, targetCents, func(at time.Time) bool {
		return inWindow(at, from, to)
	})

	// Drop contributions past the range end from the headline figures.
	running := int64(0)
	for _, line := range sortedActive(lines) {
		if line.ReportedAt.After(to) {
			break
		}
		running += lineMargin(line)
	}
	report.GrossMarginCents = running
	report.RemainingOpexCents = remainingOpex(targetCents, running)
	report.NetProfitCents = netProfit(targetCents, running)
	return report
}

func breakEven(lines []domain.SaleLine, targetCents int64, includePoint func(time.Time) bool) domain.BreakEvenReport {
	report := domain.BreakEvenReport{
		TargetCents: targetCents,
		Points:      []domain.BreakEvenPoint{},
	}

	running := int64(0)
	for _, line := range sortedActive(lines) {
		running += lineMargin(line)
		if targetCents > 0 && report.BreakEvenAt == nil && running >= targetCents {
			at := line.ReportedAt
			report.BreakEvenAt = &at
		}
		if includePoint == nil || includePoint(line.ReportedAt) {
			report.Points = append(report.Points, domain.BreakEvenPoint{
				At:                    line.ReportedAt,
				CumulativeMarginCents: running,
				RemainingOpexCents:    remainingOpex(targetCents, running),
				NetProfitCents:        netProfit(targetCents, running),
			})
		}
	}

	report.GrossMarginCents = running
	report.RemainingOpexCents = remainingOpex(targetCents, running)
	report.NetProfitCents = netProfit(targetCents, running)
	return report
}

// sortedActive filters out cancelled lines and orders the rest ascending
// by report timestamp, breaking ties on capture timestamp then id so the
// walk is deterministic.
func sortedActive(lines []domain.SaleLine) []domain.SaleLine {
	active := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		if !line.Cancelled {
			active = append(active, line)
		}
	}
	slices.SortFunc(active, func(a, b domain.SaleLine) int {
		if !a.ReportedAt.Equal(b.ReportedAt) {
			if a.ReportedAt.Before(b.ReportedAt) {
				return -1
			}
			return 1
		}
		if !a.CapturedAt.Equal(b.CapturedAt) {
			if a.CapturedAt.Before(b.CapturedAt) {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return active
}

func remainingOpex(targetCents int64, marginCents int64) int64 {
	remaining := targetCents - marginCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

func netProfit(targetCents int64, marginCents int64) int64 {
	if marginCents > targetCents {
		return marginCents - targetCents
	}
	return 0
}
