// Package ledger holds the pure aggregation engine: period buckets,
// channel statistics, balance reconciliation and statement assembly.
// Nothing in here performs I/O.
package ledger

import (
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// PeriodStarts are the lower bounds of the cumulative windows.
type PeriodStarts struct {
	Week  time.Time
	Month time.Time
	Year  time.Time
}

// StartsAt computes the window starts for now, in now's location.
// The week begins at 00:00 on the most recent weekStart (today included),
// but never before the first of the month: the windows stay nested so
// weekly <= monthly <= yearly <= all-time holds in boundary weeks too.
func StartsAt(now time.Time, weekStart time.Weekday) PeriodStarts {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	back := (int(now.Weekday()) - int(weekStart) + 7) % 7

	starts := PeriodStarts{
		Week:  midnight.AddDate(0, 0, -back),
		Month: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc),
		Year:  time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc),
	}
	if starts.Week.Before(starts.Month) {
		starts.Week = starts.Month
	}
	return starts
}

// Aggregate folds transactions into cumulative "since X" totals. Every
// dated transaction lands in all-time; it also lands in each narrower
// window whose start is not after its date. Undated transactions are
// counted in Skipped and otherwise ignored.
//
// The reduction is a sum, so input order does not matter.
func Aggregate(txs []domain.Transaction, now time.Time, weekStart time.Weekday) domain.PeriodAggregates {
	starts := StartsAt(now, weekStart)
	agg := domain.PeriodAggregates{
		Weekly:  zeroTotals(),
		Monthly: zeroTotals(),
		Yearly:  zeroTotals(),
		AllTime: zeroTotals(),
	}

	for _, tx := range txs {
		if !tx.HasDate() {
			agg.Skipped++
			continue
		}

		agg.AllTime = accumulate(agg.AllTime, tx)
		if !tx.Date.Before(starts.Year) {
			agg.Yearly = accumulate(agg.Yearly, tx)
		}
		if !tx.Date.Before(starts.Month) {
			agg.Monthly = accumulate(agg.Monthly, tx)
		}
		if !tx.Date.Before(starts.Week) {
			agg.Weekly = accumulate(agg.Weekly, tx)
		}
	}
	return agg
}

func zeroTotals() domain.PeriodTotals {
	return domain.PeriodTotals{Income: decimal.Zero, Expense: decimal.Zero, Charges: decimal.Zero}
}

func accumulate(t domain.PeriodTotals, tx domain.Transaction) domain.PeriodTotals {
	switch tx.Type {
	case domain.Credit:
		t.Income = t.Income.Add(tx.Amount)
	case domain.Debit:
		t.Expense = t.Expense.Add(tx.Amount)
	}
	t.Charges = t.Charges.Add(tx.Charge)
	return t
}
