package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/app"
	"github.com/boddenberg/church-ledger-bfa-go/internal/config"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(redisAddr string) *config.Config {
	return &config.Config{
		LedgerAPIURL:       "http://ledger.invalid",
		LedgerFetchTimeout: time.Second,
		HTTPTimeout:        time.Second,
		MaxConcurrency:     2,
		CacheTTL:           time.Minute,
		RedisAddr:          redisAddr,
		ActionTTL:          time.Minute,
		FirstDayOfWeek:     time.Sunday,
		ReconcileEpsilon:   "0.01",
	}
}

func TestBuild_InMemoryCacheHasNoProbe(t *testing.T) {
	c := app.Build(testConfig(""), observability.NewMetrics(), zap.NewNop())
	defer c.Close()

	assert.Nil(t, c.Redis)
	assert.Nil(t, c.CacheProbe)
	assert.NotNil(t, c.Ledger)
	assert.NotNil(t, c.Lifecycle)
}

func TestBuild_RedisProbeFollowsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	c := app.Build(testConfig(mr.Addr()), observability.NewMetrics(), zap.NewNop())
	defer c.Close()

	require.NotNil(t, c.CacheProbe)
	assert.NoError(t, c.CacheProbe(context.Background()))

	mr.Close()
	assert.Error(t, c.CacheProbe(context.Background()))
}
