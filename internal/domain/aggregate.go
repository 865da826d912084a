package domain

import "github.com/shopspring/decimal"

// ============================================================
// Period aggregates
// ============================================================

// Period names a cumulative "since X" window.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
	PeriodAllTime Period = "allTime"
)

// Periods lists the windows from narrowest to widest.
var Periods = []Period{PeriodWeekly, PeriodMonthly, PeriodYearly, PeriodAllTime}

// PeriodTotals holds the sums accumulated in one window.
type PeriodTotals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Charges decimal.Decimal `json:"charges"`
}

// PeriodAggregates holds the cumulative totals for every window.
// Buckets overlap: a transaction from today is in all four.
type PeriodAggregates struct {
	Weekly  PeriodTotals `json:"weekly"`
	Monthly PeriodTotals `json:"monthly"`
	Yearly  PeriodTotals `json:"yearly"`
	AllTime PeriodTotals `json:"allTime"`
	Skipped int          `json:"skipped"`
}

// Get returns the totals for p.
func (a PeriodAggregates) Get(p Period) PeriodTotals {
	switch p {
	case PeriodWeekly:
		return a.Weekly
	case PeriodMonthly:
		return a.Monthly
	case PeriodYearly:
		return a.Yearly
	default:
		return a.AllTime
	}
}

// ============================================================
// Channel statistics
// ============================================================

// ChannelCount is the per-channel tally.
type ChannelCount struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// ChannelPercentages are shares of the transaction count, one decimal.
type ChannelPercentages struct {
	Credit float64 `json:"credit"`
	Debit  float64 `json:"debit"`
}

// ChannelStats summarises credit vs debit interaction.
// Credit.Amount is the inflow, Debit.Amount the outflow.
type ChannelStats struct {
	Credit      ChannelCount       `json:"credit"`
	Debit       ChannelCount       `json:"debit"`
	Percentages ChannelPercentages `json:"percentages"`
}

// Total returns the number of transactions counted.
func (s ChannelStats) Total() int {
	return s.Credit.Count + s.Debit.Count
}

// ============================================================
// Reconciliation
// ============================================================

// Reconciliation is the outcome of replaying a window over its opening balance.
type Reconciliation struct {
	Opening         decimal.Decimal `json:"opening"`
	ReportedClosing decimal.Decimal `json:"reported_closing"`
	ComputedClosing decimal.Decimal `json:"computed_closing"`
	Difference      decimal.Decimal `json:"difference"`
	Balanced        bool            `json:"balanced"`
}
