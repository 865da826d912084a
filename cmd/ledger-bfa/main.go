package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/app"
	"github.com/boddenberg/church-ledger-bfa-go/internal/config"
	"github.com/boddenberg/church-ledger-bfa-go/internal/handler"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("ledger_api_url", cfg.LedgerAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("fetch_timeout", cfg.LedgerFetchTimeout),
		zap.Int("page_size", cfg.LedgerPageSize),
		zap.Int("max_pages", cfg.LedgerMaxPages),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("action_ttl", cfg.ActionTTL),
		zap.String("first_day_of_week", cfg.FirstDayOfWeek.String()),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "church-ledger-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Services ---
	components := app.Build(cfg, metrics, logger)
	defer components.Close()

	var checks []handler.HealthCheck
	if components.CacheProbe != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Probe: components.CacheProbe,
		})
	}

	// --- Router ---
	router := handler.NewRouter(components.Ledger, components.Lifecycle, metrics, logger, checks...)

	// --- Server ---
	// WriteTimeout leaves room for a full transaction traversal.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.LedgerFetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
