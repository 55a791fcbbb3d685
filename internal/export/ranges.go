package export

import (
	"strings"
	"time"

	"sarisari/backend/internal/domain"
)

const (
	RangeDaily     = "daily"
	RangeYesterday = "yesterday"
	RangeWeek      = "week"
	RangeMonth     = "month"
	Range3Months   = "3months"
	RangeAnnual    = "annual"
)

// NormalizeRange maps an unknown or empty range name to "week".
func NormalizeRange(name string) string {
	switch r := strings.ToLower(strings.TrimSpace(name)); r {
	case RangeDaily, RangeYesterday, RangeWeek, RangeMonth, Range3Months, RangeAnnual:
		return r
	default:
		return RangeWeek
	}
}

// Bounds returns the inclusive window of a range relative to now. Every range except
// "yesterday" ends at the end of today.
func Bounds(rangeName string, now time.Time) (time.Time, time.Time) {
	today := startOfDay(now)
	end := endOfDay(today)

	switch NormalizeRange(rangeName) {
	case RangeDaily:
		return today, end
	case RangeYesterday:
		yesterday := today.AddDate(0, 0, -1)
		return yesterday, endOfDay(yesterday)
	case RangeMonth:
		return now.AddDate(0, -1, 0), end
	case Range3Months:
		return now.AddDate(0, -3, 0), end
	case RangeAnnual:
		return now.AddDate(-1, 0, 0), end
	default:
		return now.AddDate(0, 0, -7), end
	}
}

// FilterTransactions keeps the reports whose transaction date falls inside the range.
func FilterTransactions(reports []domain.TransactionReport, rangeName string, now time.Time) []domain.TransactionReport {
	start, end := Bounds(rangeName, now)
	out := make([]domain.TransactionReport, 0, len(reports))
	for _, r := range reports {
		at := r.DateOfTransaction
		if at.Before(start) || at.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
