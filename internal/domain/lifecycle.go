package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Account lifecycle
// ============================================================

// ActionKind names a mutating account operation.
type ActionKind string

const (
	ActionCreate      ActionKind = "create"
	ActionUpdate      ActionKind = "update"
	ActionDelete      ActionKind = "delete"
	ActionTransfer    ActionKind = "transfer"
	ActionMakeDefault ActionKind = "make_default"
)

// ActionState is a pending action's position in the lifecycle.
type ActionState string

const (
	StateIdle       ActionState = "idle"
	StateSelected   ActionState = "selected"
	StateVerifying  ActionState = "verifying"
	StateVerified   ActionState = "verified"
	StateConfirming ActionState = "confirming"
	StateCommitting ActionState = "committing"
	StateDone       ActionState = "done"
	StateFailed     ActionState = "failed"
)

// Mutation is a typed account operation. The concrete types below are the
// only implementations; each is validated by its constructor.
type Mutation interface {
	Kind() ActionKind
	// Target is the account the action is scoped to ("" for create).
	Target() string
	// LockKeys are the accounts a commit must hold exclusively.
	LockKeys() []string
	// RequiresConfirmation reports whether an explicit confirm step is mandatory.
	RequiresConfirmation() bool

	mutation()
}

// CreateAccount registers a new bank account after verification.
type CreateAccount struct {
	AccountNumber string
	BankCode      string
	Defaults      DefaultFor
}

// NewCreateAccount validates and builds a create mutation.
func NewCreateAccount(accountNumber, bankCode string, defaults DefaultFor) (*CreateAccount, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	bankCode = strings.TrimSpace(bankCode)
	if accountNumber == "" {
		return nil, &ErrValidation{Field: "account_number", Message: "required"}
	}
	if !isDigits(accountNumber) {
		return nil, &ErrValidation{Field: "account_number", Message: "must contain digits only"}
	}
	if bankCode == "" {
		return nil, &ErrValidation{Field: "bank_code", Message: "required"}
	}
	return &CreateAccount{AccountNumber: accountNumber, BankCode: bankCode, Defaults: defaults}, nil
}

func (m *CreateAccount) Kind() ActionKind           { return ActionCreate }
func (m *CreateAccount) Target() string             { return "" }
func (m *CreateAccount) RequiresConfirmation() bool { return false }
func (m *CreateAccount) mutation()                  {}

func (m *CreateAccount) LockKeys() []string {
	return []string{"new:" + m.BankCode + ":" + m.AccountNumber}
}

// UpdateAccount changes an account's bank details. Empty fields keep
// the current value.
type UpdateAccount struct {
	Code          string
	AccountNumber string
	BankCode      string
}

// NewUpdateAccount validates and builds an update mutation.
func NewUpdateAccount(code, accountNumber, bankCode string) (*UpdateAccount, error) {
	code = strings.TrimSpace(code)
	accountNumber = strings.TrimSpace(accountNumber)
	bankCode = strings.TrimSpace(bankCode)
	if code == "" {
		return nil, &ErrValidation{Field: "account_code", Message: "required"}
	}
	if accountNumber == "" && bankCode == "" {
		return nil, &ErrValidation{Field: "account_number", Message: "nothing to update"}
	}
	if accountNumber != "" && !isDigits(accountNumber) {
		return nil, &ErrValidation{Field: "account_number", Message: "must contain digits only"}
	}
	return &UpdateAccount{Code: code, AccountNumber: accountNumber, BankCode: bankCode}, nil
}

func (m *UpdateAccount) Kind() ActionKind           { return ActionUpdate }
func (m *UpdateAccount) Target() string             { return m.Code }
func (m *UpdateAccount) LockKeys() []string         { return []string{m.Code} }
func (m *UpdateAccount) RequiresConfirmation() bool { return false }
func (m *UpdateAccount) mutation()                  {}

// MakeDefault sets the default flags of an account in one request.
type MakeDefault struct {
	Code  string
	Flags DefaultFor
}

// NewMakeDefault validates and builds a make-default mutation.
func NewMakeDefault(code string, flags DefaultFor) (*MakeDefault, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &ErrValidation{Field: "account_code", Message: "required"}
	}
	return &MakeDefault{Code: code, Flags: flags}, nil
}

func (m *MakeDefault) Kind() ActionKind           { return ActionMakeDefault }
func (m *MakeDefault) Target() string             { return m.Code }
func (m *MakeDefault) LockKeys() []string         { return []string{m.Code} }
func (m *MakeDefault) RequiresConfirmation() bool { return false }
func (m *MakeDefault) mutation()                  {}

// DeleteAccount removes an account. Commit needs a re-entered password.
type DeleteAccount struct {
	Code string
}

// NewDeleteAccount validates and builds a delete mutation.
func NewDeleteAccount(code string) (*DeleteAccount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &ErrValidation{Field: "account_code", Message: "required"}
	}
	return &DeleteAccount{Code: code}, nil
}

func (m *DeleteAccount) Kind() ActionKind           { return ActionDelete }
func (m *DeleteAccount) Target() string             { return m.Code }
func (m *DeleteAccount) LockKeys() []string         { return []string{m.Code} }
func (m *DeleteAccount) RequiresConfirmation() bool { return true }
func (m *DeleteAccount) mutation()                  {}

// Transfer moves funds between two ledger accounts.
type Transfer struct {
	From    string
	To      string
	Amount  decimal.Decimal
	Purpose string
}

// NewTransfer validates and builds a transfer mutation.
func NewTransfer(from, to string, amount decimal.Decimal, purpose string) (*Transfer, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, &ErrValidation{Field: "from_account", Message: "required"}
	}
	if to == "" {
		return nil, &ErrValidation{Field: "to_account", Message: "required"}
	}
	if from == to {
		return nil, &ErrValidation{Field: "to_account", Message: "must differ from from_account"}
	}
	if !amount.IsPositive() {
		return nil, &ErrValidation{Field: "amount", Message: "must be positive"}
	}
	return &Transfer{From: from, To: to, Amount: amount, Purpose: strings.TrimSpace(purpose)}, nil
}

func (m *Transfer) Kind() ActionKind           { return ActionTransfer }
func (m *Transfer) Target() string             { return m.From }
func (m *Transfer) LockKeys() []string         { return []string{m.From, m.To} }
func (m *Transfer) RequiresConfirmation() bool { return true }
func (m *Transfer) mutation()                  {}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ActionRequest is the wire form of a new pending action.
type ActionRequest struct {
	Kind          ActionKind      `json:"kind"`
	AccountCode   string          `json:"account_code"`
	AccountNumber string          `json:"account_number"`
	BankCode      string          `json:"bank_code"`
	ForGiving     bool            `json:"for_giving"`
	ForFund       bool            `json:"for_fund"`
	ForRemittance bool            `json:"for_remittance"`
	FromAccount   string          `json:"from_account"`
	ToAccount     string          `json:"to_account"`
	Amount        decimal.Decimal `json:"amount"`
	Purpose       string          `json:"purpose"`
}

// Mutation converts the request into its typed operation.
func (r *ActionRequest) Mutation() (Mutation, error) {
	flags := DefaultFor{Giving: r.ForGiving, Fund: r.ForFund, Remittance: r.ForRemittance}
	switch r.Kind {
	case ActionCreate:
		return NewCreateAccount(r.AccountNumber, r.BankCode, flags)
	case ActionUpdate:
		return NewUpdateAccount(r.AccountCode, r.AccountNumber, r.BankCode)
	case ActionMakeDefault:
		return NewMakeDefault(r.AccountCode, flags)
	case ActionDelete:
		return NewDeleteAccount(r.AccountCode)
	case ActionTransfer:
		from := r.FromAccount
		if from == "" {
			from = r.AccountCode
		}
		return NewTransfer(from, r.ToAccount, r.Amount, r.Purpose)
	}
	return nil, &ErrValidation{Field: "kind", Message: "unknown action kind '" + string(r.Kind) + "'"}
}

// CommitResult is what a successful commit produced.
type CommitResult struct {
	Account *Account         `json:"account,omitempty"`
	Receipt *TransferReceipt `json:"receipt,omitempty"`
	Deleted bool             `json:"deleted,omitempty"`
}

// PendingAction is a snapshot of a lifecycle instance.
type PendingAction struct {
	ID           string            `json:"id"`
	Kind         ActionKind        `json:"kind"`
	AccountCode  string            `json:"account_code,omitempty"`
	State        ActionState       `json:"state"`
	Confirmed    bool              `json:"confirmed"`
	Verification *BankVerification `json:"verification,omitempty"`
	Destination  *Account          `json:"destination,omitempty"`
	Result       *CommitResult     `json:"result,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
