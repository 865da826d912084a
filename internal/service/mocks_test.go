package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/cache"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/church-ledger-bfa-go/internal/ledger"
	"github.com/boddenberg/church-ledger-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

// mockLedger is an in-memory ledger. Hooks let a test block or fail a call.
type mockLedger struct {
	mu sync.Mutex

	accounts  map[string]domain.Account
	histories map[string]domain.TransactionHistory
	password  string

	listErr   error
	fetchErr  error
	verifyErr error
	commitErr error

	// fetchHook runs before FetchAllTransactions returns.
	fetchHook func(code string)
	// commitHook runs inside every mutating call.
	commitHook func()

	calls map[string]int

	lastDefault  *domain.MakeDefault
	lastTransfer *domain.Transfer
	lastIdemKey  string
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		accounts:  make(map[string]domain.Account),
		histories: make(map[string]domain.TransactionHistory),
		password:  "s3cret",
		calls:     make(map[string]int),
	}
}

func (m *mockLedger) addAccount(a domain.Account, h domain.TransactionHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.AccountCode = a.Code
	m.accounts[a.Code] = a
	m.histories[a.Code] = h
}

func (m *mockLedger) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockLedger) record(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *mockLedger) ListAccounts(_ context.Context, _ domain.Credentials) ([]domain.Account, error) {
	m.record("list")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Account, 0, len(m.accounts))
	for _, code := range sortedKeys(m.accounts) {
		out = append(out, m.accounts[code])
	}
	return out, nil
}

func (m *mockLedger) GetAccount(_ context.Context, _ domain.Credentials, code string) (*domain.Account, error) {
	m.record("get")
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[code]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: code}
	}
	return &a, nil
}

func (m *mockLedger) FetchAllTransactions(_ context.Context, _ domain.Credentials, code string) (*domain.TransactionHistory, error) {
	m.record("fetch")
	if m.fetchHook != nil {
		m.fetchHook(code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	h, ok := m.histories[code]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: code}
	}
	h.Pages = 1
	return &h, nil
}

func (m *mockLedger) VerifyBank(_ context.Context, _ domain.Credentials, number, bank string) (*domain.BankVerification, error) {
	m.record("verify")
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return &domain.BankVerification{AccountNumber: number, BankCode: bank, AccountName: "GRACE CHAPEL"}, nil
}

func (m *mockLedger) mutate(name string) error {
	m.record(name)
	if m.commitHook != nil {
		m.commitHook()
	}
	return m.commitErr
}

func (m *mockLedger) CreateAccount(_ context.Context, _ domain.Credentials, c *domain.CreateAccount) (*domain.Account, error) {
	if err := m.mutate("create"); err != nil {
		return nil, err
	}
	a := domain.Account{Code: "NEW-" + c.AccountNumber, AccountNumber: c.AccountNumber, BankCode: c.BankCode, DefaultFor: c.Defaults}
	m.addAccount(a, domain.TransactionHistory{})
	return &a, nil
}

func (m *mockLedger) UpdateAccount(_ context.Context, _ domain.Credentials, u *domain.UpdateAccount) (*domain.Account, error) {
	if err := m.mutate("update"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[u.Code]
	if u.AccountNumber != "" {
		a.AccountNumber = u.AccountNumber
	}
	if u.BankCode != "" {
		a.BankCode = u.BankCode
	}
	m.accounts[u.Code] = a
	return &a, nil
}

func (m *mockLedger) MakeDefault(_ context.Context, _ domain.Credentials, d *domain.MakeDefault) (*domain.Account, error) {
	if err := m.mutate("make_default"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDefault = d
	a := m.accounts[d.Code]
	a.DefaultFor = d.Flags
	a.IsDefault = d.Flags.Any()
	m.accounts[d.Code] = a
	return &a, nil
}

func (m *mockLedger) DeleteAccount(_ context.Context, _ domain.Credentials, code, password string) error {
	if err := m.mutate("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if password != m.password {
		return &domain.ErrUnauthorized{Message: "password was not accepted"}
	}
	delete(m.accounts, code)
	delete(m.histories, code)
	return nil
}

func (m *mockLedger) Transfer(_ context.Context, _ domain.Credentials, t *domain.Transfer, key string) (*domain.TransferReceipt, error) {
	if err := m.mutate("transfer"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTransfer = t
	m.lastIdemKey = key
	return &domain.TransferReceipt{Reference: "TRF-1", FromAccount: t.From, ToAccount: t.To, Amount: t.Amount}, nil
}

func sortedKeys(m map[string]domain.Account) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Fixtures ---

var (
	alice = domain.Credentials{Token: "tok-alice", SessionID: "sess-alice"}
	bob   = domain.Credentials{Token: "tok-bob", SessionID: "sess-bob"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tx(ref string, typ domain.TransactionType, amount string, date time.Time) domain.Transaction {
	return domain.Transaction{Reference: ref, Date: date, Type: typ, Amount: dec(amount)}
}

// seededLedger holds two accounts: CHQ-001 (opening 1000, +500, -200, closing 1300) and SAV-002.
func seededLedger() *mockLedger {
	m := newMockLedger()
	day := time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)
	m.addAccount(
		domain.Account{Code: "CHQ-001", AccountNumber: "0123456789", AccountName: "Main", BankCode: "058", Balance: dec("1300.00")},
		domain.TransactionHistory{
			Opening: dec("1000.00"),
			Closing: dec("1300.00"),
			Transactions: []domain.Transaction{
				tx("r2", domain.Debit, "200", day),
				tx("r1", domain.Credit, "500", day.Add(-time.Hour)),
			},
		},
	)
	m.addAccount(
		domain.Account{Code: "SAV-002", AccountNumber: "9876543210", AccountName: "Building", BankCode: "044", Balance: dec("5000.00")},
		domain.TransactionHistory{Opening: dec("5000.00"), Closing: dec("5000.00")},
	)
	return m
}

func newLedgerService(m *mockLedger) *service.LedgerService {
	engine := ledger.NewEngine(time.Sunday, ledger.DefaultEpsilon)
	engine.Now = func() time.Time { return time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC) }
	return service.NewLedgerService(
		m,
		engine,
		cache.New[domain.TransactionHistory](5*time.Minute),
		cache.New[[]domain.Account](5*time.Minute),
		resilience.NewBulkhead(2),
		time.Second,
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func newLifecycle(m *mockLedger) (*service.LifecycleManager, *service.LedgerService) {
	svc := newLedgerService(m)
	return service.NewLifecycleManager(m, svc, time.Minute, observability.NewMetrics(), zap.NewNop()), svc
}
