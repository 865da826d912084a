package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// DefaultFor records which categories of operation an account is the
// automatic target for. The three flags are independent.
type DefaultFor struct {
	Giving     bool `json:"giving"`
	Fund       bool `json:"fund"`
	Remittance bool `json:"remittance"`
}

// Any reports whether the account is default for at least one category.
func (d DefaultFor) Any() bool {
	return d.Giving || d.Fund || d.Remittance
}

// Account is the cached projection of a ledger bank account.
type Account struct {
	Code          string          `json:"code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	BankName      string          `json:"bank_name"`
	BankCode      string          `json:"bank_code"`
	Balance       decimal.Decimal `json:"balance"`
	IsDefault     bool            `json:"is_default"`
	DefaultFor    DefaultFor      `json:"default_for"`
}

// BankVerification is the result of resolving a bank + account number pair.
type BankVerification struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
}

// TransferReceipt is returned by the ledger after a successful transfer.
type TransferReceipt struct {
	Reference   string          `json:"reference"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Purpose     string          `json:"purpose"`
	Status      string          `json:"status,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

// ============================================================
// Credentials
// ============================================================

// Credentials travel explicitly with every ledger call. Token is the
// bearer credential sent upstream; SessionID scopes per-session state
// (selection, pending actions) inside the engine.
type Credentials struct {
	Token     string
	SessionID string
}
