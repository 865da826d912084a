package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	PagesFetched           int64   `json:"pagesFetched"`
	StatementsBuilt        int64   `json:"statementsBuilt"`
	ReconciliationWarnings int64   `json:"reconciliationWarnings"`
	CommitsSucceeded       int64   `json:"commitsSucceeded"`
	CommitsFailed          int64   `json:"commitsFailed"`
	ConcurrentRejections   int64   `json:"concurrentRejections"`
	StaleResponses         int64   `json:"staleResponses"`
	CacheHitRate           float64 `json:"cacheHitRate"`
	Period                 string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
