package observability

import (
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	pagesFetched    prometheus.Counter
	statements      *prometheus.CounterVec
	reconWarnings   prometheus.Counter
	commits         *prometheus.CounterVec
	concurrent      prometheus.Counter
	staleResponses  prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from the remote ledger by operation.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		pagesFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_pages_fetched_total",
				Help: "Total paginated ledger pages fetched.",
			},
		),
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_statements_built_total",
				Help: "Total statements and dashboards assembled.",
			},
			[]string{"scope"},
		),
		reconWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_reconciliation_warnings_total",
				Help: "Total windows whose replayed closing balance did not match the ledger.",
			},
		),
		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_lifecycle_commits_total",
				Help: "Total account lifecycle commits by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		concurrent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_concurrent_actions_rejected_total",
				Help: "Total commits rejected because the account was already committing.",
			},
		),
		staleResponses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_stale_responses_total",
				Help: "Total fetch results discarded because the selection changed.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(operation string) {
	m.externalErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// AddPagesFetched counts ledger pages read.
func (m *Metrics) AddPagesFetched(n int) {
	m.pagesFetched.Add(float64(n))
}

// IncrStatement counts an assembled statement ("account") or dashboard ("dashboard").
func (m *Metrics) IncrStatement(scope string) {
	m.statements.WithLabelValues(scope).Inc()
}

// IncrReconciliationWarning counts an unbalanced window.
func (m *Metrics) IncrReconciliationWarning() {
	m.reconWarnings.Inc()
}

// IncrCommit counts a lifecycle commit outcome ("success" or "error").
func (m *Metrics) IncrCommit(kind domain.ActionKind, outcome string) {
	m.commits.WithLabelValues(string(kind), outcome).Inc()
}

// IncrConcurrentRejection counts a commit rejected by the per-account lock.
func (m *Metrics) IncrConcurrentRejection() {
	m.concurrent.Inc()
}

// IncrStaleResponse counts a discarded out-of-date fetch.
func (m *Metrics) IncrStaleResponse() {
	m.staleResponses.Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	hits := sumCounterVec(m.cacheHits)
	misses := sumCounterVec(m.cacheMisses)
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var succeeded, failed float64
	for _, kind := range []domain.ActionKind{
		domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete, domain.ActionTransfer, domain.ActionMakeDefault,
	} {
		succeeded += getCounterValue(m.commits.WithLabelValues(string(kind), "success"))
		failed += getCounterValue(m.commits.WithLabelValues(string(kind), "error"))
	}

	return &domain.LedgerMetrics{
		PagesFetched:           int64(getCounterValue(m.pagesFetched)),
		StatementsBuilt:        int64(sumCounterVec(m.statements)),
		ReconciliationWarnings: int64(getCounterValue(m.reconWarnings)),
		CommitsSucceeded:       int64(succeeded),
		CommitsFailed:          int64(failed),
		ConcurrentRejections:   int64(getCounterValue(m.concurrent)),
		StaleResponses:         int64(getCounterValue(m.staleResponses)),
		CacheHitRate:           hitRate,
		Period:                 "all_time",
	}
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every label combination of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
