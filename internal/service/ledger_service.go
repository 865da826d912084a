package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/church-ledger-bfa-go/internal/ledger"
	"github.com/boddenberg/church-ledger-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/ledger")

// DefaultFetchTimeout caps one full traversal of an account's history.
const DefaultFetchTimeout = 60 * time.Second

// LedgerService loads accounts and histories, runs the statement engine
// and tracks each session's selected account.
//
// Histories are cached by account code and shared between sessions;
// account lists are cached per session and double as the access check
// before a cached history is served.
type LedgerService struct {
	ledger       port.LedgerReader
	engine       *ledger.Engine
	histories    port.Cache[domain.TransactionHistory]
	accounts     port.Cache[[]domain.Account]
	bulkhead     *resilience.Bulkhead
	fetchTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// workspace is one session's selection state.
type workspace struct {
	selected  string
	statement *domain.Statement
}

// NewLedgerService creates the ledger service with all dependencies injected.
func NewLedgerService(
	reader port.LedgerReader,
	engine *ledger.Engine,
	histories port.Cache[domain.TransactionHistory],
	accounts port.Cache[[]domain.Account],
	bulkhead *resilience.Bulkhead,
	fetchTimeout time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LedgerService {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &LedgerService{
		ledger:       reader,
		engine:       engine,
		histories:    histories,
		accounts:     accounts,
		bulkhead:     bulkhead,
		fetchTimeout: fetchTimeout,
		metrics:      metrics,
		logger:       logger,
		workspaces:   make(map[string]*workspace),
	}
}

// ============================================================
// Accounts
// ============================================================

// Accounts returns the session's account list, cached.
func (s *LedgerService) Accounts(ctx context.Context, creds domain.Credentials) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Accounts")
	defer span.End()

	if cached, ok := s.accounts.Get(accountsKey(creds)); ok {
		s.metrics.IncrCacheHit("accounts")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("accounts")

	return s.fetchAccounts(ctx, creds)
}

// RefreshAccounts drops the session's cached account list and reloads it.
func (s *LedgerService) RefreshAccounts(ctx context.Context, creds domain.Credentials) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.RefreshAccounts")
	defer span.End()

	s.accounts.Delete(accountsKey(creds))
	return s.fetchAccounts(ctx, creds)
}

func (s *LedgerService) fetchAccounts(ctx context.Context, creds domain.Credentials) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	start := time.Now()
	list, err := s.ledger.ListAccounts(ctx, creds)
	s.metrics.RecordRequestDuration("list_accounts", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("list_accounts")
		s.logger.Error("failed to list accounts", zap.Error(err))
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	s.accounts.Set(accountsKey(creds), list)
	return list, nil
}

// Account returns one account from the session's list.
func (s *LedgerService) Account(ctx context.Context, creds domain.Credentials, code string) (*domain.Account, error) {
	list, err := s.Accounts(ctx, creds)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Code == code {
			acc := list[i]
			return &acc, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: code}
}

func accountsKey(creds domain.Credentials) string {
	return "accounts:" + creds.SessionID
}

// ============================================================
// Histories and statements
// ============================================================

// history returns the account's full transaction history, from cache
// unless refresh is set. Only the fetch that loaded the data writes it.
func (s *LedgerService) history(ctx context.Context, creds domain.Credentials, code string, refresh bool) (domain.TransactionHistory, error) {
	if !refresh {
		if cached, ok := s.histories.Get(code); ok {
			s.metrics.IncrCacheHit("history")
			return cached, nil
		}
		s.metrics.IncrCacheMiss("history")
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	start := time.Now()
	h, err := s.ledger.FetchAllTransactions(ctx, creds, code)
	s.metrics.RecordRequestDuration("fetch_transactions", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("fetch_transactions")
		s.logger.Error("failed to fetch transactions",
			zap.String("account_code", code),
			zap.Error(err),
		)
		return domain.TransactionHistory{}, fmt.Errorf("fetch transactions for %s: %w", code, err)
	}

	s.metrics.AddPagesFetched(h.Pages)
	s.logger.Debug("transactions loaded",
		zap.String("account_code", code),
		zap.Int("pages", h.Pages),
		zap.Int("transactions", len(h.Transactions)),
	)
	s.histories.Set(code, *h)
	return *h, nil
}

// Statement builds the statement for one account. The account lookup and
// the history fetch run concurrently; either failing aborts the build.
func (s *LedgerService) Statement(ctx context.Context, creds domain.Credentials, code string, refresh bool) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Statement")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", code), attribute.Bool("refresh", refresh))

	var (
		account *domain.Account
		history domain.TransactionHistory
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.Account(gCtx, creds, code)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	g.Go(func() error {
		h, err := s.history(gCtx, creds, code, refresh)
		if err != nil {
			return err
		}
		history = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st, warning := s.engine.Statement(*account, history)
	s.metrics.IncrStatement("account")
	if warning != nil {
		s.metrics.IncrReconciliationWarning()
		s.logger.Warn("reconciliation mismatch",
			zap.String("account_code", code),
			zap.String("reported", warning.Reported.StringFixed(2)),
			zap.String("computed", warning.Computed.StringFixed(2)),
		)
	}
	return st, nil
}

// Invalidate drops cached histories for the given accounts.
func (s *LedgerService) Invalidate(codes ...string) {
	for _, code := range codes {
		if code == "" {
			continue
		}
		s.histories.Delete(code)
	}
}

// ============================================================
// Selection workflow
// ============================================================

// Select makes code the session's current account and loads its
// statement. If the session selects another account before the load
// finishes, the result is discarded with ErrStaleSelection.
func (s *LedgerService) Select(ctx context.Context, creds domain.Credentials, code string) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Select")
	defer span.End()
	span.SetAttributes(attribute.String("account.code", code))

	s.mu.Lock()
	ws := s.workspace(creds.SessionID)
	if ws.selected != code {
		ws.statement = nil
	}
	ws.selected = code
	s.mu.Unlock()

	return s.load(ctx, creds, code, false)
}

// Refresh refetches an account. When it is the session's selection the
// stored statement is replaced.
func (s *LedgerService) Refresh(ctx context.Context, creds domain.Credentials, code string) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Refresh")
	defer span.End()

	s.Invalidate(code)
	if s.Selection(creds) == code {
		return s.load(ctx, creds, code, true)
	}
	return s.Statement(ctx, creds, code, true)
}

// Current returns the loaded statement for the session's selection.
func (s *LedgerService) Current(creds domain.Credentials) (*domain.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[creds.SessionID]
	if !ok || ws.selected == "" {
		return nil, &domain.ErrNotFound{Resource: "selection", ID: creds.SessionID}
	}
	if ws.statement == nil {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: ws.selected}
	}
	return ws.statement, nil
}

// Selection returns the session's selected account code, or "".
func (s *LedgerService) Selection(creds domain.Credentials) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws, ok := s.workspaces[creds.SessionID]; ok {
		return ws.selected
	}
	return ""
}

func (s *LedgerService) load(ctx context.Context, creds domain.Credentials, code string, refresh bool) (*domain.Statement, error) {
	st, err := s.Statement(ctx, creds, code, refresh)

	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspace(creds.SessionID)
	if ws.selected != code {
		s.metrics.IncrStaleResponse()
		s.logger.Info("discarding stale statement",
			zap.String("requested", code),
			zap.String("selected", ws.selected),
		)
		return nil, &domain.ErrStaleSelection{Requested: code, Selected: ws.selected}
	}
	if err != nil {
		return nil, err
	}
	ws.statement = st
	return st, nil
}

// workspace returns the session's workspace. Callers hold s.mu.
func (s *LedgerService) workspace(session string) *workspace {
	ws, ok := s.workspaces[session]
	if !ok {
		ws = &workspace{}
		s.workspaces[session] = ws
	}
	return ws
}

// AfterCommit refreshes everything a successful account mutation touched:
// cached histories, the session's account list, and the session's loaded
// statement when it belongs to one of the accounts.
func (s *LedgerService) AfterCommit(ctx context.Context, creds domain.Credentials, codes []string) error {
	s.Invalidate(codes...)

	accounts, err := s.RefreshAccounts(ctx, creds)
	if err != nil {
		return err
	}

	selected := s.Selection(creds)
	if selected == "" || !slices.Contains(codes, selected) {
		return nil
	}

	exists := slices.ContainsFunc(accounts, func(a domain.Account) bool { return a.Code == selected })
	if !exists {
		s.mu.Lock()
		delete(s.workspaces, creds.SessionID)
		s.mu.Unlock()
		return nil
	}

	_, err = s.load(ctx, creds, selected, true)
	return err
}

// ============================================================
// Dashboard
// ============================================================

// Dashboard runs the statement engine across a scope of accounts.
// Accounts are fetched concurrently, bounded by the bulkhead; pages of a
// single account are still read in order.
func (s *LedgerService) Dashboard(ctx context.Context, creds domain.Credentials, scope domain.Scope) (*domain.Dashboard, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Dashboard")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("dashboard", time.Since(start))
	}()

	all, err := s.Accounts(ctx, creds)
	if err != nil {
		return nil, err
	}
	inScope, err := filterScope(all, scope)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("dashboard.accounts", len(inScope)))

	histories := make([]domain.TransactionHistory, len(inScope))
	g, gCtx := errgroup.WithContext(ctx)
	for i, acc := range inScope {
		g.Go(func() error {
			if err := s.bulkhead.Acquire(gCtx); err != nil {
				return err
			}
			defer s.bulkhead.Release()

			h, err := s.history(gCtx, creds, acc.Code, false)
			if err != nil {
				return err
			}
			histories[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d, mismatches := s.engine.Dashboard(scope, inScope, histories)
	s.metrics.IncrStatement("dashboard")
	for _, w := range mismatches {
		s.metrics.IncrReconciliationWarning()
		s.logger.Warn("reconciliation mismatch",
			zap.String("account_code", w.AccountCode),
			zap.String("difference", w.Difference.StringFixed(2)),
		)
	}
	return d, nil
}

func filterScope(all []domain.Account, scope domain.Scope) ([]domain.Account, error) {
	if scope.All() {
		return all, nil
	}
	byCode := make(map[string]domain.Account, len(all))
	for _, a := range all {
		byCode[a.Code] = a
	}

	out := make([]domain.Account, 0, len(scope.AccountCodes))
	seen := make(map[string]bool, len(scope.AccountCodes))
	for _, code := range scope.AccountCodes {
		if seen[code] {
			continue
		}
		seen[code] = true
		a, ok := byCode[code]
		if !ok {
			return nil, &domain.ErrNotFound{Resource: "account", ID: code}
		}
		out = append(out, a)
	}
	return out, nil
}
