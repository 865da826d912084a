// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
)

// LedgerReader reads accounts and transaction history from the remote ledger.
type LedgerReader interface {
	ListAccounts(ctx context.Context, creds domain.Credentials) ([]domain.Account, error)
	GetAccount(ctx context.Context, creds domain.Credentials, code string) (*domain.Account, error)
	FetchAllTransactions(ctx context.Context, creds domain.Credentials, code string) (*domain.TransactionHistory, error)
}

// BankVerifier resolves a bank code and account number to an account name.
type BankVerifier interface {
	VerifyBank(ctx context.Context, creds domain.Credentials, accountNumber, bankCode string) (*domain.BankVerification, error)
}

// AccountMutator commits account lifecycle operations. None of these
// calls is ever retried by the caller.
type AccountMutator interface {
	CreateAccount(ctx context.Context, creds domain.Credentials, m *domain.CreateAccount) (*domain.Account, error)
	UpdateAccount(ctx context.Context, creds domain.Credentials, m *domain.UpdateAccount) (*domain.Account, error)
	MakeDefault(ctx context.Context, creds domain.Credentials, m *domain.MakeDefault) (*domain.Account, error)
	DeleteAccount(ctx context.Context, creds domain.Credentials, code, password string) error
	Transfer(ctx context.Context, creds domain.Credentials, m *domain.Transfer, idempotencyKey string) (*domain.TransferReceipt, error)
}

// Ledger is the full remote ledger surface.
type Ledger interface {
	LedgerReader
	BankVerifier
	AccountMutator
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
