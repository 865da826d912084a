package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"
	"github.com/boddenberg/church-ledger-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// healthProbeTimeout bounds every dependency probe run by /healthz and /readyz.
const healthProbeTimeout = 2 * time.Second

// HealthCheck probes one dependency for /healthz and /readyz.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
	// Critical checks fail readiness; the others only degrade health.
	Critical bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(ledgerSvc *service.LedgerService, lifecycle *service.LifecycleManager, metrics *observability.Metrics, logger *zap.Logger, checks ...HealthCheck) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks, logger))
	r.Get("/readyz", readyzHandler(checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(CredentialsMiddleware(logger))

		// =============================================
		// 1. Accounts & statements
		// =============================================
		r.Get("/accounts", listAccountsHandler(ledgerSvc, logger))
		r.Get("/accounts/{code}", getAccountHandler(ledgerSvc, logger))
		r.Get("/accounts/{code}/statement", statementHandler(ledgerSvc, logger))
		r.Post("/accounts/{code}/select", selectHandler(ledgerSvc, logger))
		r.Post("/accounts/{code}/refresh", refreshHandler(ledgerSvc, logger))
		r.Get("/selection", selectionHandler(ledgerSvc, logger))

		// =============================================
		// 2. Dashboard
		// GET /v1/dashboard?accounts=a,b
		// =============================================
		r.Get("/dashboard", dashboardHandler(ledgerSvc, logger))

		// =============================================
		// 3. Account lifecycle
		// =============================================
		r.Post("/actions", beginActionHandler(lifecycle, logger))
		r.Get("/actions/{id}", getActionHandler(lifecycle, logger))
		r.Post("/actions/{id}/verify", verifyActionHandler(lifecycle, logger))
		r.Post("/actions/{id}/confirm", confirmActionHandler(lifecycle, logger))
		r.Post("/actions/{id}/commit", commitActionHandler(lifecycle, logger))
		r.Delete("/actions/{id}", cancelActionHandler(lifecycle, logger))

		// =============================================
		// 4. Metrics
		// GET /v1/metrics/ledger
		// =============================================
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Health
// ============================================================

func runChecks(ctx context.Context, checks []HealthCheck) ([]domain.ServiceHealth, bool) {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "ledger-bfa", Status: "healthy", LastChecked: now},
	}
	ready := true
	for _, c := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		start := time.Now()
		err := c.Probe(probeCtx)
		cancel()

		sh := domain.ServiceHealth{
			Name:        c.Name,
			Status:      "healthy",
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		}
		if err != nil {
			sh.Status = "degraded"
			sh.Error = err.Error()
			if c.Critical {
				sh.Status = "unhealthy"
				ready = false
			}
		}
		services = append(services, sh)
	}
	return services, ready
}

func healthzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, _ := runChecks(r.Context(), checks)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}
		if overallStatus != "healthy" {
			logger.Warn("health check degraded", zap.String("status", overallStatus))
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, ready := runChecks(r.Context(), checks)
		if !ready {
			logger.Warn("not ready")
			writeJSON(w, http.StatusServiceUnavailable, domain.HealthStatus{Status: "not_ready", Services: services})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
