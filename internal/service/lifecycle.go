package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"
	"github.com/boddenberg/church-ledger-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultActionTTL is how long an untouched pending action survives.
const DefaultActionTTL = 15 * time.Minute

// AccountDirectory is the part of LedgerService the lifecycle needs.
type AccountDirectory interface {
	Account(ctx context.Context, creds domain.Credentials, code string) (*domain.Account, error)
	AfterCommit(ctx context.Context, creds domain.Credentials, codes []string) error
}

// LifecycleManager drives pending account actions through
// Selected → Verifying → Verified → Confirming → Committing → Done|Failed.
//
// At most one action may be committing against any account. Commits are
// attempted once; a failed commit returns the action to the state it was
// committed from.
type LifecycleManager struct {
	ledger    port.Ledger
	directory AccountDirectory
	ttl       time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	actions    map[string]*action
	committing map[string]string // account code -> action id
}

type action struct {
	id           string
	session      string
	mutation     domain.Mutation
	state        domain.ActionState
	confirmed    bool
	verification *domain.BankVerification
	destination  *domain.Account
	result       *domain.CommitResult
	lastErr      string
	idemKey      string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewLifecycleManager creates the lifecycle manager.
func NewLifecycleManager(ledger port.Ledger, directory AccountDirectory, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *LifecycleManager {
	if ttl <= 0 {
		ttl = DefaultActionTTL
	}
	return &LifecycleManager{
		ledger:     ledger,
		directory:  directory,
		ttl:        ttl,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		actions:    make(map[string]*action),
		committing: make(map[string]string),
	}
}

// ============================================================
// Begin / Get / Cancel
// ============================================================

// Begin opens a pending action for a validated mutation. Mutations on an
// existing account require the account to be visible to the session.
func (l *LifecycleManager) Begin(ctx context.Context, creds domain.Credentials, m domain.Mutation) (*domain.PendingAction, error) {
	ctx, span := tracer.Start(ctx, "LifecycleManager.Begin")
	defer span.End()
	span.SetAttributes(attribute.String("action.kind", string(m.Kind())))

	if target := m.Target(); target != "" {
		if _, err := l.directory.Account(ctx, creds, target); err != nil {
			return nil, err
		}
	}

	now := l.now()
	a := &action{
		id:        l.newID(),
		session:   creds.SessionID,
		mutation:  m,
		state:     domain.StateSelected,
		createdAt: now,
		updatedAt: now,
	}
	if m.Kind() == domain.ActionTransfer {
		a.idemKey = uuid.NewString()
	}

	l.mu.Lock()
	l.sweep(now)
	l.actions[a.id] = a
	snap := a.snapshot()
	l.mu.Unlock()

	l.logger.Info("pending action opened",
		zap.String("action_id", a.id),
		zap.String("kind", string(m.Kind())),
		zap.String("account_code", m.Target()),
	)
	return snap, nil
}

// Get returns a snapshot of the session's pending action.
func (l *LifecycleManager) Get(creds domain.Credentials, id string) (*domain.PendingAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.lookup(creds, id)
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

// Cancel discards a pending action. An action that is committing cannot be
// cancelled.
func (l *LifecycleManager) Cancel(creds domain.Credentials, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.lookup(creds, id)
	if err != nil {
		return err
	}
	if a.state == domain.StateCommitting {
		return &domain.ErrInvalidState{ActionID: id, State: a.state, Operation: "cancel"}
	}
	delete(l.actions, id)
	l.logger.Info("pending action cancelled", zap.String("action_id", id))
	return nil
}

// ============================================================
// Verify
// ============================================================

// Verify checks the action's inputs against the outside world. Create and
// update resolve the bank details, transfer resolves the destination
// account, delete and make-default check the cached account. Any failure
// returns the action to Selected.
func (l *LifecycleManager) Verify(ctx context.Context, creds domain.Credentials, id string) (*domain.PendingAction, error) {
	ctx, span := tracer.Start(ctx, "LifecycleManager.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("action.id", id))

	l.mu.Lock()
	a, err := l.lookup(creds, id)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if a.state != domain.StateSelected {
		l.mu.Unlock()
		return nil, &domain.ErrInvalidState{ActionID: id, State: a.state, Operation: "verify"}
	}
	a.transition(domain.StateVerifying, l.now())
	m := a.mutation
	l.mu.Unlock()

	verification, destination, verr := l.verify(ctx, creds, m)

	l.mu.Lock()
	defer l.mu.Unlock()

	if verr != nil {
		a.lastErr = verr.Error()
		a.transition(domain.StateSelected, l.now())
		l.logger.Warn("verification failed",
			zap.String("action_id", id),
			zap.String("kind", string(m.Kind())),
			zap.Error(verr),
		)
		return nil, verr
	}

	a.verification = verification
	a.destination = destination
	a.lastErr = ""
	a.transition(domain.StateVerified, l.now())
	return a.snapshot(), nil
}

func (l *LifecycleManager) verify(ctx context.Context, creds domain.Credentials, m domain.Mutation) (*domain.BankVerification, *domain.Account, error) {
	switch m := m.(type) {
	case *domain.CreateAccount:
		v, err := l.ledger.VerifyBank(ctx, creds, m.AccountNumber, m.BankCode)
		return v, nil, err

	case *domain.UpdateAccount:
		current, err := l.directory.Account(ctx, creds, m.Code)
		if err != nil {
			return nil, nil, err
		}
		number, bank := m.AccountNumber, m.BankCode
		if number == "" {
			number = current.AccountNumber
		}
		if bank == "" {
			bank = current.BankCode
		}
		v, err := l.ledger.VerifyBank(ctx, creds, number, bank)
		return v, nil, err

	case *domain.Transfer:
		dest, err := l.ledger.GetAccount(ctx, creds, m.To)
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, nil, &domain.ErrVerificationFailed{AccountNumber: m.To, Message: "destination account not found"}
		}
		return nil, dest, err

	case *domain.DeleteAccount:
		_, err := l.directory.Account(ctx, creds, m.Code)
		return nil, nil, err

	case *domain.MakeDefault:
		_, err := l.directory.Account(ctx, creds, m.Code)
		return nil, nil, err
	}
	return nil, nil, fmt.Errorf("unsupported mutation %T", m)
}

// ============================================================
// Confirm
// ============================================================

// Confirm records the explicit go-ahead. Delete and transfer cannot be
// committed without it; other kinds may be confirmed optionally.
func (l *LifecycleManager) Confirm(creds domain.Credentials, id string) (*domain.PendingAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.lookup(creds, id)
	if err != nil {
		return nil, err
	}
	if a.state != domain.StateVerified {
		return nil, &domain.ErrInvalidState{ActionID: id, State: a.state, Operation: "confirm"}
	}
	a.confirmed = true
	a.transition(domain.StateConfirming, l.now())
	return a.snapshot(), nil
}

// ============================================================
// Commit
// ============================================================

// Commit sends the mutation to the ledger once. Delete requires the
// re-entered password; it is checked before any network call.
func (l *LifecycleManager) Commit(ctx context.Context, creds domain.Credentials, id, password string) (*domain.PendingAction, error) {
	ctx, span := tracer.Start(ctx, "LifecycleManager.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("action.id", id))

	a, prior, err := l.beginCommit(creds, id, password)
	if err != nil {
		return nil, err
	}
	m := a.mutation
	span.SetAttributes(attribute.String("action.kind", string(m.Kind())))

	start := time.Now()
	result, cerr := l.commit(ctx, creds, a, password)
	l.metrics.RecordRequestDuration("commit_"+string(m.Kind()), time.Since(start))

	l.mu.Lock()
	for _, key := range m.LockKeys() {
		delete(l.committing, key)
	}

	if cerr != nil {
		now := l.now()
		a.transition(domain.StateFailed, now)
		a.lastErr = cerr.Error()
		a.transition(prior, now)
		snap := a.snapshot()
		l.mu.Unlock()

		l.metrics.IncrCommit(m.Kind(), "error")
		l.logger.Error("commit failed",
			zap.String("action_id", id),
			zap.String("kind", string(m.Kind())),
			zap.String("returned_to", string(snap.State)),
			zap.Error(cerr),
		)
		return nil, cerr
	}

	a.result = result
	a.lastErr = ""
	a.transition(domain.StateDone, l.now())
	delete(l.actions, id)
	snap := a.snapshot()
	l.mu.Unlock()

	l.metrics.IncrCommit(m.Kind(), "success")
	l.logger.Info("commit succeeded",
		zap.String("action_id", id),
		zap.String("kind", string(m.Kind())),
	)

	if err := l.directory.AfterCommit(ctx, creds, touched(m, result)); err != nil {
		l.logger.Warn("post-commit refresh failed",
			zap.String("action_id", id),
			zap.Error(err),
		)
	}
	return snap, nil
}

// beginCommit checks preconditions, takes the account locks and moves the
// action to Committing. It returns the state to fall back to on failure.
func (l *LifecycleManager) beginCommit(creds domain.Credentials, id, password string) (*action, domain.ActionState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, err := l.lookup(creds, id)
	if err != nil {
		return nil, "", err
	}
	m := a.mutation

	if a.state == domain.StateCommitting {
		l.metrics.IncrConcurrentRejection()
		return nil, "", &domain.ErrConcurrentAction{AccountCode: m.Target(), ActionID: id}
	}

	ready := a.state == domain.StateConfirming || (a.state == domain.StateVerified && !m.RequiresConfirmation())
	if !ready {
		return nil, "", &domain.ErrInvalidState{ActionID: id, State: a.state, Operation: "commit"}
	}

	if m.Kind() == domain.ActionDelete {
		if password == "" {
			return nil, "", &domain.ErrValidation{Field: "password", Message: "required to delete an account"}
		}
		if password == creds.Token {
			return nil, "", &domain.ErrValidation{Field: "password", Message: "must be the account password, not the session token"}
		}
	}

	for _, key := range m.LockKeys() {
		if holder, busy := l.committing[key]; busy {
			l.metrics.IncrConcurrentRejection()
			l.logger.Warn("commit rejected, account busy",
				zap.String("action_id", id),
				zap.String("account_code", key),
				zap.String("holder", holder),
			)
			return nil, "", &domain.ErrConcurrentAction{AccountCode: key, ActionID: holder}
		}
	}
	for _, key := range m.LockKeys() {
		l.committing[key] = id
	}

	prior := a.state
	a.transition(domain.StateCommitting, l.now())
	return a, prior, nil
}

func (l *LifecycleManager) commit(ctx context.Context, creds domain.Credentials, a *action, password string) (*domain.CommitResult, error) {
	switch m := a.mutation.(type) {
	case *domain.CreateAccount:
		acc, err := l.ledger.CreateAccount(ctx, creds, m)
		if err != nil {
			return nil, err
		}
		return &domain.CommitResult{Account: acc}, nil

	case *domain.UpdateAccount:
		acc, err := l.ledger.UpdateAccount(ctx, creds, m)
		if err != nil {
			return nil, err
		}
		return &domain.CommitResult{Account: acc}, nil

	case *domain.MakeDefault:
		acc, err := l.ledger.MakeDefault(ctx, creds, m)
		if err != nil {
			return nil, err
		}
		return &domain.CommitResult{Account: acc}, nil

	case *domain.DeleteAccount:
		if err := l.ledger.DeleteAccount(ctx, creds, m.Code, password); err != nil {
			return nil, err
		}
		return &domain.CommitResult{Deleted: true}, nil

	case *domain.Transfer:
		receipt, err := l.ledger.Transfer(ctx, creds, m, a.idemKey)
		if err != nil {
			return nil, err
		}
		return &domain.CommitResult{Receipt: receipt}, nil
	}
	return nil, fmt.Errorf("unsupported mutation %T", a.mutation)
}

// touched lists the accounts whose cached data a commit made stale.
func touched(m domain.Mutation, result *domain.CommitResult) []string {
	switch m := m.(type) {
	case *domain.CreateAccount:
		if result != nil && result.Account != nil {
			return []string{result.Account.Code}
		}
		return nil
	case *domain.Transfer:
		return []string{m.From, m.To}
	}
	return []string{m.Target()}
}

// ============================================================
// Bookkeeping
// ============================================================

// lookup finds a live action owned by the session. Callers hold l.mu.
func (l *LifecycleManager) lookup(creds domain.Credentials, id string) (*action, error) {
	l.sweep(l.now())
	a, ok := l.actions[id]
	if !ok || a.session != creds.SessionID {
		return nil, &domain.ErrNotFound{Resource: "action", ID: id}
	}
	return a, nil
}

// sweep drops actions idle for longer than the TTL. Committing actions are
// kept until their commit returns. Callers hold l.mu.
func (l *LifecycleManager) sweep(now time.Time) {
	for id, a := range l.actions {
		if a.state != domain.StateCommitting && now.Sub(a.updatedAt) > l.ttl {
			delete(l.actions, id)
			l.logger.Debug("pending action expired", zap.String("action_id", id))
		}
	}
}

func (a *action) transition(to domain.ActionState, at time.Time) {
	a.state = to
	a.updatedAt = at
}

func (a *action) snapshot() *domain.PendingAction {
	return &domain.PendingAction{
		ID:           a.id,
		Kind:         a.mutation.Kind(),
		AccountCode:  a.mutation.Target(),
		State:        a.state,
		Confirmed:    a.confirmed,
		Verification: a.verification,
		Destination:  a.destination,
		Result:       a.result,
		LastError:    a.lastErr,
		CreatedAt:    a.createdAt,
		UpdatedAt:    a.updatedAt,
	}
}
