package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Ledger API
	LedgerAPIURL       string
	LedgerPageSize     int
	LedgerMaxPages     int
	LedgerFetchTimeout time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxConcurrency int

	// Cache
	CacheTTL      time.Duration
	RedisAddr     string // empty keeps the in-memory cache
	RedisPassword string

	// Lifecycle
	ActionTTL time.Duration

	// Aggregation
	FirstDayOfWeek   time.Weekday
	ReconcileEpsilon string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LedgerAPIURL:       strings.TrimRight(getEnv("LEDGER_API_URL", "http://localhost:8000/api/v1"), "/"),
		LedgerPageSize:     getEnvInt("LEDGER_PAGE_SIZE", 100),
		LedgerMaxPages:     getEnvInt("LEDGER_MAX_PAGES", 500),
		LedgerFetchTimeout: getEnvDuration("LEDGER_FETCH_TIMEOUT", 60*time.Second),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ActionTTL: getEnvDuration("ACTION_TTL", 15*time.Minute),

		FirstDayOfWeek:   getEnvWeekday("FIRST_DAY_OF_WEEK", time.Sunday),
		ReconcileEpsilon: getEnv("RECONCILE_EPSILON", "0.01"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// getEnvWeekday accepts a weekday name ("monday", "Mon") or its number (0 = Sunday).
func getEnvWeekday(key string, fallback time.Weekday) time.Weekday {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n)
	}
	for name, d := range weekdays {
		if name == v || (len(v) >= 3 && strings.HasPrefix(name, v)) {
			return d
		}
	}
	return fallback
}
