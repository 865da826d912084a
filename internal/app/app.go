// Package app wires configuration into the ledger services. The HTTP
// server and the CLI share it.
package app

import (
	"context"
	"net/http"

	"github.com/boddenberg/church-ledger-bfa-go/internal/config"
	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/cache"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/client"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/church-ledger-bfa-go/internal/ledger"
	"github.com/boddenberg/church-ledger-bfa-go/internal/port"
	"github.com/boddenberg/church-ledger-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Components are the wired services.
type Components struct {
	Client    *client.LedgerClient
	Ledger    *service.LedgerService
	Lifecycle *service.LifecycleManager

	// Redis is nil when the in-memory cache is used.
	Redis redis.UniversalClient
	// CacheProbe pings the shared cache. Nil with the in-memory cache.
	CacheProbe func(ctx context.Context) error
}

// Close releases the shared cache connection, if any.
func (c *Components) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// Build creates the ledger client, caches and services from cfg.
func Build(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) *Components {
	// --- Resilience ---
	cb := resilience.NewCircuitBreaker("ledger-api")
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ledgerClient := client.NewLedgerClient(httpClient, cfg.LedgerAPIURL, cb, client.Options{
		PageSize: cfg.LedgerPageSize,
		MaxPages: cfg.LedgerMaxPages,
	}, logger)

	// --- Cache ---
	var (
		histories port.Cache[domain.TransactionHistory]
		accounts  port.Cache[[]domain.Account]
		rc        redis.UniversalClient
		probe     func(ctx context.Context) error
	)
	if cfg.RedisAddr != "" {
		logger.Info("using redis cache", zap.String("redis_addr", cfg.RedisAddr))
		rc = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		redisHistories := cache.NewRedis[domain.TransactionHistory](rc, "ledger:history", cfg.CacheTTL, logger)
		histories = redisHistories
		probe = redisHistories.Ping
		accounts = cache.NewRedis[[]domain.Account](rc, "ledger:accounts", cfg.CacheTTL, logger)
	} else {
		logger.Info("using in-memory cache")
		histories = cache.New[domain.TransactionHistory](cfg.CacheTTL)
		accounts = cache.New[[]domain.Account](cfg.CacheTTL)
	}

	// --- Engine ---
	epsilon, err := decimal.NewFromString(cfg.ReconcileEpsilon)
	if err != nil {
		logger.Warn("invalid RECONCILE_EPSILON, using default",
			zap.String("value", cfg.ReconcileEpsilon),
			zap.String("default", ledger.DefaultEpsilon.String()),
		)
		epsilon = ledger.DefaultEpsilon
	}
	engine := ledger.NewEngine(cfg.FirstDayOfWeek, epsilon)

	// --- Services ---
	ledgerSvc := service.NewLedgerService(
		ledgerClient,
		engine,
		histories,
		accounts,
		bulkhead,
		cfg.LedgerFetchTimeout,
		metrics,
		logger,
	)
	lifecycle := service.NewLifecycleManager(ledgerClient, ledgerSvc, cfg.ActionTTL, metrics, logger)

	return &Components{
		Client:     ledgerClient,
		Ledger:     ledgerSvc,
		Lifecycle:  lifecycle,
		Redis:      rc,
		CacheProbe: probe,
	}
}
