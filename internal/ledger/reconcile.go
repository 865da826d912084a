package ledger

import (
	"sort"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the tolerated gap between computed and reported closing.
var DefaultEpsilon = decimal.RequireFromString("0.01")

// Reconciler replays transactions over an opening balance.
type Reconciler struct {
	Epsilon decimal.Decimal
}

// NewReconciler creates a reconciler. A non-positive epsilon falls back
// to DefaultEpsilon.
func NewReconciler(epsilon decimal.Decimal) *Reconciler {
	if !epsilon.IsPositive() {
		epsilon = DefaultEpsilon
	}
	return &Reconciler{Epsilon: epsilon}
}

// Reconcile returns the closing balance implied by opening and txs.
func (r *Reconciler) Reconcile(opening decimal.Decimal, txs []domain.Transaction) decimal.Decimal {
	balances := RunningBalances(opening, Chronological(txs))
	if len(balances) == 0 {
		return opening
	}
	return balances[len(balances)-1]
}

// Verify reports whether replaying txs over opening reproduces reported
// within epsilon.
func (r *Reconciler) Verify(opening, reported decimal.Decimal, txs []domain.Transaction) bool {
	return r.Check(opening, reported, txs).Balanced
}

// Check replays the window and describes the outcome.
func (r *Reconciler) Check(opening, reported decimal.Decimal, txs []domain.Transaction) domain.Reconciliation {
	computed := r.Reconcile(opening, txs)
	diff := computed.Sub(reported)
	return domain.Reconciliation{
		Opening:         opening,
		ReportedClosing: reported,
		ComputedClosing: computed,
		Difference:      diff,
		Balanced:        diff.Abs().LessThanOrEqual(r.Epsilon),
	}
}

// Warning converts an unbalanced reconciliation into a warning error.
// It returns nil when rec is balanced.
func Warning(accountCode string, rec domain.Reconciliation) *domain.ErrReconciliation {
	if rec.Balanced {
		return nil
	}
	return &domain.ErrReconciliation{
		AccountCode: accountCode,
		Reported:    rec.ReportedClosing,
		Computed:    rec.ComputedClosing,
		Difference:  rec.Difference,
	}
}

// Chronological returns a copy of txs in ascending date order. The ledger
// lists newest first, so equal timestamps keep the reverse of source order.
// Undated transactions go last.
func Chronological(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[len(txs)-1-i] = tx
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasDate() != b.HasDate() {
			return a.HasDate()
		}
		return a.Date.Before(b.Date)
	})
	return out
}

// RunningBalances returns the balance after each transaction of an
// already chronological slice.
func RunningBalances(opening decimal.Decimal, chronological []domain.Transaction) []decimal.Decimal {
	out := make([]decimal.Decimal, len(chronological))
	balance := opening
	for i, tx := range chronological {
		switch tx.Type {
		case domain.Credit:
			balance = balance.Add(tx.Amount)
		case domain.Debit:
			balance = balance.Sub(tx.Amount)
		}
		out[i] = balance
	}
	return out
}
