// Package client talks to the remote church ledger over HTTP/JSON.
//
// Every call carries explicit credentials, runs inside the circuit breaker
// and a tracing span, and is attempted exactly once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const (
	serviceName     = "ledger"
	maxResponseBody = 8 << 20

	// DefaultPageSize is the ledger's fixed page size.
	DefaultPageSize = 100
	// DefaultMaxPages bounds a single traversal.
	DefaultMaxPages = 500
)

// Options tunes pagination bounds.
type Options struct {
	PageSize int
	MaxPages int
}

// LedgerClient implements port.Ledger against the ledger REST API.
type LedgerClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	pageSize   int
	maxPages   int
	logger     *zap.Logger
}

// NewLedgerClient creates a new LedgerClient.
func NewLedgerClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, opts Options, logger *zap.Logger) *LedgerClient {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &LedgerClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		pageSize:   opts.PageSize,
		maxPages:   opts.MaxPages,
		logger:     logger,
	}
}

// request describes one HTTP exchange with the ledger.
type request struct {
	op       string
	method   string
	url      string
	body     any
	headers  map[string]string
	resource string
	subject  string
}

// endpoint joins path segments onto the base URL, escaping each one and
// keeping the ledger's trailing slash.
func (c *LedgerClient) endpoint(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	b.WriteByte('/')
	return b.String()
}

// call runs r through the circuit breaker exactly once.
func (c *LedgerClient) call(ctx context.Context, creds domain.Credentials, r request) ([]byte, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.roundTrip(ctx, creds, r)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("ledger: circuit open", zap.String("op", r.op))
			return nil, &domain.ErrCircuitOpen{Service: serviceName}
		}
		return nil, err
	}
	body, _ := result.([]byte)
	return body, nil
}

func (c *LedgerClient) roundTrip(ctx context.Context, creds domain.Credentials, r request) ([]byte, error) {
	var reader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", r.op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ledger: request failed",
			zap.String("op", r.op),
			zap.String("method", r.method),
			zap.Error(err),
		)
		return nil, &domain.ErrNetwork{Operation: r.op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &domain.ErrNetwork{Operation: r.op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("ledger: non-2xx response",
			zap.String("op", r.op),
			zap.String("method", r.method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, statusError(r, resp.StatusCode, body)
	}

	c.logger.Debug("ledger: request OK",
		zap.String("op", r.op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return body, nil
}

// ============================================================
// Error bodies: {field: [messages]} or {detail: message}
// ============================================================

func statusError(r request, status int, body []byte) error {
	fields, detail := decodeErrorBody(body)

	switch {
	case status == http.StatusNotFound:
		return &domain.ErrNotFound{Resource: r.resource, ID: r.subject}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if detail == "" {
			detail = "ledger rejected the credentials"
		}
		return &domain.ErrUnauthorized{Message: detail}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		return validationError(fields, detail)
	}

	if detail == "" {
		detail = http.StatusText(status)
	}
	return &domain.ErrExternalService{Service: serviceName, Status: status, Err: errors.New(detail)}
}

// decodeErrorBody extracts field messages and a detail line. Unknown
// shapes yield nothing.
func decodeErrorBody(body []byte) (map[string][]string, string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, strings.TrimSpace(string(body))
	}

	var detail string
	fields := make(map[string][]string)
	for k, v := range raw {
		msgs := messages(v)
		if len(msgs) == 0 {
			continue
		}
		switch k {
		case "detail", "message", "error", "non_field_errors":
			if detail == "" {
				detail = strings.Join(msgs, "; ")
			}
		default:
			fields[k] = msgs
		}
	}
	return fields, detail
}

func messages(v json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(v, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

func validationError(fields map[string][]string, detail string) *domain.ErrValidation {
	e := &domain.ErrValidation{Fields: fields, Message: detail}
	if len(fields) == 1 {
		for k, msgs := range fields {
			e.Field = k
			e.Message = strings.Join(msgs, "; ")
		}
	}
	if len(fields) == 0 {
		e.Fields = nil
		e.Field = "request"
		if e.Message == "" {
			e.Message = "rejected by ledger"
		}
	}
	return e
}
