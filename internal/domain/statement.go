package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Statement view-model (serializable, rendering is elsewhere)
// ============================================================

// StatementHeader identifies the account and window of a statement.
type StatementHeader struct {
	AccountCode      string          `json:"account_code"`
	AccountName      string          `json:"account_name"`
	AccountNumber    string          `json:"account_number"`
	BankName         string          `json:"bank_name"`
	Opening          decimal.Decimal `json:"opening"`
	Closing          decimal.Decimal `json:"closing"`
	TransactionCount int             `json:"transaction_count"`
	From             *time.Time      `json:"from,omitempty"`
	To               *time.Time      `json:"to,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// SummaryRow is one line of the period summary table.
type SummaryRow struct {
	Period  Period          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Charges decimal.Decimal `json:"charges"`
	Net     decimal.Decimal `json:"net"`
}

// ChannelRow is one line of the channel table.
type ChannelRow struct {
	Channel    TransactionType `json:"channel"`
	Count      int             `json:"count"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

// StatementRow is a transaction as printed on a statement.
type StatementRow struct {
	Date            *time.Time      `json:"date,omitempty"`
	Reference       string          `json:"reference"`
	Type            TransactionType `json:"type"`
	Purpose         string          `json:"purpose"`
	Credit          decimal.Decimal `json:"credit"`
	Debit           decimal.Decimal `json:"debit"`
	Charge          decimal.Decimal `json:"charge"`
	Balance         decimal.Decimal `json:"balance"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
}

// Statement is the assembled per-account view-model.
type Statement struct {
	Header         StatementHeader  `json:"header"`
	Summary        []SummaryRow     `json:"summary"`
	Channels       []ChannelRow     `json:"channels"`
	Rows           []StatementRow   `json:"rows"`
	Aggregates     PeriodAggregates `json:"aggregates"`
	Stats          ChannelStats     `json:"stats"`
	Reconciliation Reconciliation   `json:"reconciliation"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// ============================================================
// Dashboard (same engine, scoped to many accounts)
// ============================================================

// Scope selects the accounts a dashboard covers. An empty list means all.
type Scope struct {
	AccountCodes []string `json:"account_codes,omitempty"`
}

// All reports whether the scope covers every account.
func (s Scope) All() bool {
	return len(s.AccountCodes) == 0
}

// Dashboard aggregates several accounts with the statement engine.
type Dashboard struct {
	Scope          Scope            `json:"scope"`
	Accounts       []Account        `json:"accounts"`
	TotalBalance   decimal.Decimal  `json:"total_balance"`
	Opening        decimal.Decimal  `json:"opening"`
	Closing        decimal.Decimal  `json:"closing"`
	Summary        []SummaryRow     `json:"summary"`
	Channels       []ChannelRow     `json:"channels"`
	Aggregates     PeriodAggregates `json:"aggregates"`
	Stats          ChannelStats     `json:"stats"`
	Reconciliation Reconciliation   `json:"reconciliation"`
	Warnings       []string         `json:"warnings,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
