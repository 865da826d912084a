// Package resilience provides fault-tolerance patterns:
// a circuit breaker for the remote ledger and a bulkhead for fan-out.
//
// Failed ledger calls are never retried automatically. Money movement
// and account mutations must be re-initiated by the operator.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/sony/gobreaker"
)

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
// Client-side rejections count as successes so they never open the
// circuit. That includes any 4xx the ledger answers, 429 among them.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: IsBreakerSuccess,
	})
}

// IsBreakerSuccess reports whether err should be counted as a healthy
// round-trip by the circuit breaker.
func IsBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}

	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unauthorized *domain.ErrUnauthorized
	var verification *domain.ErrVerificationFailed
	var external *domain.ErrExternalService
	switch {
	case errors.As(err, &notFound),
		errors.As(err, &validation),
		errors.As(err, &unauthorized),
		errors.As(err, &verification):
		return true
	case errors.As(err, &external):
		return external.Status >= 400 && external.Status < 500
	}
	return false
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
