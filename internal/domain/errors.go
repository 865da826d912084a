package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrNetwork indicates a transport failure talking to the ledger.
// It is surfaced as-is; nothing retries it.
type ErrNetwork struct {
	Operation string
	Err       error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Operation, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline.
func (e *ErrNetwork) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ErrExternalService indicates the ledger answered with a server error.
type ErrExternalService struct {
	Service string
	Status  int
	Err     error
}

func (e *ErrExternalService) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("external service error [%s] status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input). Fields carries
// the ledger's structured `{field: [messages]}` body when there is one.
type ErrValidation struct {
	Field   string
	Message string
	Fields  map[string][]string
}

func (e *ErrValidation) Error() string {
	if e.Field != "" || len(e.Fields) == 0 {
		return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

// ErrVerificationFailed indicates the bank resolver rejected a bank code
// and account number pair. The user can correct the details and verify again.
type ErrVerificationFailed struct {
	AccountNumber string
	BankCode      string
	Message       string
}

func (e *ErrVerificationFailed) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "could not resolve account"
	}
	return fmt.Sprintf("verification failed for %s at bank %s: %s", e.AccountNumber, e.BankCode, msg)
}

// ErrUnauthorized indicates invalid credentials, including a wrong
// password on a delete confirmation.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrReconciliation is a warning: replaying the window did not reproduce
// the reported closing balance. It never aborts a statement.
type ErrReconciliation struct {
	AccountCode string
	Reported    decimal.Decimal
	Computed    decimal.Decimal
	Difference  decimal.Decimal
}

func (e *ErrReconciliation) Error() string {
	return fmt.Sprintf("reconciliation mismatch for %s: reported=%s computed=%s difference=%s",
		e.AccountCode, e.Reported.StringFixed(2), e.Computed.StringFixed(2), e.Difference.StringFixed(2))
}

// ErrConcurrentAction indicates another action is already committing
// against the same account.
type ErrConcurrentAction struct {
	AccountCode string
	ActionID    string
}

func (e *ErrConcurrentAction) Error() string {
	return fmt.Sprintf("another action is already committing on account %s", e.AccountCode)
}

// ErrPageLimit indicates a paginated endpoint did not terminate within bounds.
type ErrPageLimit struct {
	AccountCode string
	Pages       int
	Reason      string
}

func (e *ErrPageLimit) Error() string {
	return fmt.Sprintf("pagination aborted for %s after %d pages: %s", e.AccountCode, e.Pages, e.Reason)
}

// ErrStaleSelection indicates a response arrived for an account that is
// no longer selected. The response was discarded.
type ErrStaleSelection struct {
	Requested string
	Selected  string
}

func (e *ErrStaleSelection) Error() string {
	return fmt.Sprintf("selection changed from %s to %s while loading", e.Requested, e.Selected)
}

// ErrInvalidState indicates a lifecycle step was attempted out of order.
type ErrInvalidState struct {
	ActionID  string
	State     ActionState
	Operation string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s action %s in state %s", e.Operation, e.ActionID, e.State)
}
