package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the channel a transaction moved through.
type TransactionType string

const (
	Credit TransactionType = "CREDIT"
	Debit  TransactionType = "DEBIT"
)

// ParseTransactionType normalises the ledger's type field.
// Unknown values return false.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Credit):
		return Credit, true
	case string(Debit):
		return Debit, true
	}
	return "", false
}

// Transaction is a single immutable ledger entry.
// A zero Date means the ledger sent a date that could not be parsed.
type Transaction struct {
	Reference string          `json:"reference"`
	Date      time.Time       `json:"date"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Charge    decimal.Decimal `json:"charge"`
	Purpose   string          `json:"purpose"`
	Balance   decimal.Decimal `json:"balance"`
}

// HasDate reports whether the transaction carries a usable date.
func (t Transaction) HasDate() bool {
	return !t.Date.IsZero()
}

// TransactionHistory is the full traversal of an account's transaction
// window. Transactions keep the ledger's order (descending by date).
type TransactionHistory struct {
	AccountCode  string          `json:"account_code"`
	Opening      decimal.Decimal `json:"opening"`
	Closing      decimal.Decimal `json:"closing"`
	Transactions []Transaction   `json:"transactions"`
	Pages        int             `json:"pages"`
}

var ledgerDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseLedgerDate parses the date formats the ledger is known to emit.
// Dates without a zone are read in the server's local time, the same
// location the period windows are built in. It returns the zero time and
// false when none match.
func ParseLedgerDate(s string) (time.Time, bool) {
	return ParseLedgerDateIn(s, time.Local)
}

// ParseLedgerDateIn is ParseLedgerDate with zone-less dates read in loc.
func ParseLedgerDateIn(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range ledgerDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
