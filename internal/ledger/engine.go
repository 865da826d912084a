package ledger

import (
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// Engine runs the whole derivation for one account or for a scope of
// accounts. Per-account statements and dashboards share this code path.
type Engine struct {
	WeekStart  time.Weekday
	Reconciler *Reconciler
	Now        func() time.Time
}

// NewEngine creates an engine with the given week start and epsilon.
func NewEngine(weekStart time.Weekday, epsilon decimal.Decimal) *Engine {
	return &Engine{
		WeekStart:  weekStart,
		Reconciler: NewReconciler(epsilon),
		Now:        time.Now,
	}
}

// Statement derives and assembles a single account's statement. The
// returned warning is non-nil when reconciliation did not balance.
func (e *Engine) Statement(account domain.Account, history domain.TransactionHistory) (*domain.Statement, *domain.ErrReconciliation) {
	now := e.Now()
	agg := Aggregate(history.Transactions, now, e.WeekStart)
	stats := ComputeStats(history.Transactions)
	rec := e.Reconciler.Check(history.Opening, history.Closing, history.Transactions)

	return Assemble(account, history, agg, stats, rec, now), Warning(account.Code, rec)
}

// Dashboard merges the histories of every account in scope and runs the
// same derivation over the union. Openings and closings add up, so the
// merged window reconciles exactly when every account does (within the
// summed tolerance). Per-account mismatches are returned as warnings.
func (e *Engine) Dashboard(scope domain.Scope, accounts []domain.Account, histories []domain.TransactionHistory) (*domain.Dashboard, []*domain.ErrReconciliation) {
	now := e.Now()

	var merged []domain.Transaction
	var mismatches []*domain.ErrReconciliation
	opening, closing, balance := decimal.Zero, decimal.Zero, decimal.Zero

	for _, h := range histories {
		merged = append(merged, h.Transactions...)
		opening = opening.Add(h.Opening)
		closing = closing.Add(h.Closing)

		rec := e.Reconciler.Check(h.Opening, h.Closing, h.Transactions)
		if w := Warning(h.AccountCode, rec); w != nil {
			mismatches = append(mismatches, w)
		}
	}
	for _, a := range accounts {
		balance = balance.Add(a.Balance)
	}

	agg := Aggregate(merged, now, e.WeekStart)
	stats := ComputeStats(merged)
	rec := domain.Reconciliation{
		Opening:         opening,
		ReportedClosing: closing,
		ComputedClosing: e.Reconciler.Reconcile(opening, merged),
		Balanced:        len(mismatches) == 0,
	}
	rec.Difference = rec.ComputedClosing.Sub(closing)

	d := &domain.Dashboard{
		Scope:          scope,
		Accounts:       accounts,
		TotalBalance:   balance,
		Opening:        opening,
		Closing:        closing,
		Summary:        summaryRows(agg),
		Channels:       channelRows(stats),
		Aggregates:     agg,
		Stats:          stats,
		Reconciliation: rec,
		GeneratedAt:    now,
	}
	for _, w := range mismatches {
		d.Warnings = append(d.Warnings, w.Error())
	}
	if agg.Skipped > 0 {
		d.Warnings = append(d.Warnings, "transactions with unreadable dates were left out of the period totals")
	}
	return d, mismatches
}
