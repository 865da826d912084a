package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/client"
	"github.com/boddenberg/church-ledger-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var creds = domain.Credentials{Token: "tok-123", SessionID: "sess-1"}

func newClient(baseURL string, opts client.Options) *client.LedgerClient {
	return client.NewLedgerClient(http.DefaultClient, baseURL, resilience.NewCircuitBreaker("ledger-test"), opts, zap.NewNop())
}

func txJSON(ref, typ, amount string) map[string]any {
	return map[string]any{
		"reference": ref,
		"date":      "2026-10-12T10:00:00Z",
		"type":      typ,
		"amount":    amount,
		"purpose":   "offering",
	}
}

func pageJSON(opening, closing string, txs []map[string]any, next any) map[string]any {
	return map[string]any{
		"results": map[string]any{
			"opening":      opening,
			"closing":      closing,
			"transactions": txs,
		},
		"next":     next,
		"previous": nil,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================
// Pagination
// ============================================================

func TestFetchAllTransactions_TwoFullPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/CHQ-001/transactions/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("expected limit=100, got %q", r.URL.Query().Get("limit"))
		}

		page := r.URL.Query().Get("page")
		start := 0
		var next any = srv.URL + "/accounts/CHQ-001/transactions/?limit=100&page=2"
		if page == "2" {
			start = 100
			next = nil
		}

		txs := make([]map[string]any, 0, 100)
		for i := start; i < start+100; i++ {
			txs = append(txs, txJSON(fmt.Sprintf("ref-%03d", i), "CREDIT", "1.00"))
		}
		writeJSON(w, http.StatusOK, pageJSON("1000.00", "1200.00", txs, next))
	}))
	defer srv.Close()

	h, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(h.Transactions) != 200 {
		t.Fatalf("expected 200 transactions, got %d", len(h.Transactions))
	}
	if h.Pages != 2 {
		t.Errorf("expected 2 pages, got %d", h.Pages)
	}
	seen := make(map[string]bool)
	for i, tx := range h.Transactions {
		if seen[tx.Reference] {
			t.Fatalf("duplicate reference %s", tx.Reference)
		}
		seen[tx.Reference] = true
		if want := fmt.Sprintf("ref-%03d", i); tx.Reference != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, tx.Reference)
		}
	}
	if !h.Opening.Equal(decimal.RequireFromString("1000")) || !h.Closing.Equal(decimal.RequireFromString("1200")) {
		t.Errorf("unexpected opening/closing %s/%s", h.Opening, h.Closing)
	}
}

func TestFetchAllTransactions_BareCursor(t *testing.T) {
	var mu sync.Mutex
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		mu.Lock()
		cursors = append(cursors, cursor)
		mu.Unlock()
		switch cursor {
		case "":
			writeJSON(w, http.StatusOK, pageJSON("0", "30", []map[string]any{txJSON("a", "CREDIT", "10")}, "c2"))
		case "c2":
			writeJSON(w, http.StatusOK, pageJSON("0", "30", []map[string]any{txJSON("b", "CREDIT", "20")}, nil))
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer srv.Close()

	h, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(h.Transactions) != 2 || h.Transactions[0].Reference != "a" || h.Transactions[1].Reference != "b" {
		t.Fatalf("unexpected transactions %+v", h.Transactions)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(cursors, ",") != ",c2" {
		t.Errorf("unexpected cursor sequence %v", cursors)
	}
}

func TestFetchAllTransactions_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pageJSON("5000.00", "5000.00", []map[string]any{}, nil))
	}))
	defer srv.Close()

	h, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(h.Transactions) != 0 {
		t.Errorf("expected no transactions, got %d", len(h.Transactions))
	}
	if !h.Opening.Equal(h.Closing) {
		t.Errorf("expected opening == closing, got %s/%s", h.Opening, h.Closing)
	}
}

func TestFetchAllTransactions_PageCap(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		writeJSON(w, http.StatusOK, pageJSON("0", "0", nil, fmt.Sprintf("c%d", n)))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, client.Options{MaxPages: 3}).FetchAllTransactions(context.Background(), creds, "CHQ-001")

	var limit *domain.ErrPageLimit
	if !errors.As(err, &limit) {
		t.Fatalf("expected ErrPageLimit, got %v", err)
	}
	if limit.Pages != 3 {
		t.Errorf("expected 3 pages read, got %d", limit.Pages)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("expected 3 requests, got %d", atomic.LoadInt32(&hits))
	}
}

func TestFetchAllTransactions_RepeatedCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pageJSON("0", "0", nil, "same"))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")

	var limit *domain.ErrPageLimit
	if !errors.As(err, &limit) {
		t.Fatalf("expected ErrPageLimit, got %v", err)
	}
	if limit.Pages != 2 {
		t.Errorf("expected to stop after 2 pages, got %d", limit.Pages)
	}
}

func TestFetchAllTransactions_SkipsUnknownTypesKeepsUndated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		undated := txJSON("u", "debit", "5")
		undated["date"] = "not-a-date"
		writeJSON(w, http.StatusOK, pageJSON("0", "5", []map[string]any{
			txJSON("a", "CREDIT", "10"),
			txJSON("x", "REVERSAL", "3"),
			undated,
		}, nil))
	}))
	defer srv.Close()

	h, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(h.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(h.Transactions))
	}
	if h.Transactions[1].Type != domain.Debit || h.Transactions[1].HasDate() {
		t.Errorf("expected undated debit, got %+v", h.Transactions[1])
	}
}

// ============================================================
// Errors
// ============================================================

func TestFetchAllTransactions_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, client.Options{}).FetchAllTransactions(context.Background(), creds, "NOPE")

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.ID != "NOPE" {
		t.Errorf("expected ID NOPE, got %s", notFound.ID)
	}
}

func TestFetchAllTransactions_NetworkErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(url, client.Options{}).FetchAllTransactions(context.Background(), creds, "CHQ-001")

	var netErr *domain.ErrNetwork
	if !errors.As(err, &netErr) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestServerErrorAttemptedOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream down"})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, client.Options{}).GetAccount(context.Background(), creds, "CHQ-001")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Status != http.StatusBadGateway {
		t.Fatalf("expected ErrExternalService 502, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", n)
	}
}

func TestValidationErrorsDoNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"account_number": {"Ensure this field has 10 digits."}})
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker("ledger-test")
	c := client.NewLedgerClient(http.DefaultClient, srv.URL, cb, client.Options{}, zap.NewNop())
	m, _ := domain.NewUpdateAccount("CHQ-001", "123", "")

	for i := 0; i < 8; i++ {
		_, err := c.UpdateAccount(context.Background(), creds, m)
		var v *domain.ErrValidation
		if !errors.As(err, &v) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if v.Field != "account_number" {
			t.Errorf("expected field account_number, got %s", v.Field)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", cb.State())
	}
}

func TestRateLimitedResponsesDoNotOpenBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "slow down"})
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker("ledger-test")
	c := client.NewLedgerClient(http.DefaultClient, srv.URL, cb, client.Options{}, zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := c.GetAccount(context.Background(), creds, "CHQ-001")
		var ext *domain.ErrExternalService
		if !errors.As(err, &ext) || ext.Status != http.StatusTooManyRequests {
			t.Fatalf("call %d: expected 429 ErrExternalService, got %v", i, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", cb.State())
	}
	if got := atomic.LoadInt32(&hits); got != 6 {
		t.Errorf("expected 6 requests, got %d", got)
	}
}

func TestOpenBreakerReportsCircuitOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL, client.Options{})
	for i := 0; i < 5; i++ {
		_, _ = c.GetAccount(context.Background(), creds, "CHQ-001")
	}

	_, err := c.GetAccount(context.Background(), creds, "CHQ-001")
	var open *domain.ErrCircuitOpen
	if !errors.As(err, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

// ============================================================
// Accounts and mutations
// ============================================================

func TestListAccounts_SendsBearerAndDecodesFlags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("expected bearer token, got %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": []map[string]any{
				{"code": "CHQ-001", "account_name": "Main", "balance": 1500.5, "is_default": true,
					"default_for": map[string]bool{"giving": true, "fund": false, "remittance": true}},
				{"code": "SAV-002", "account_name": "Building", "balance": "20.00", "for_fund": true},
			},
			"next": nil,
		})
	}))
	defer srv.Close()

	accounts, err := newClient(srv.URL, client.Options{}).ListAccounts(context.Background(), creds)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if !accounts[0].DefaultFor.Giving || accounts[0].DefaultFor.Fund || !accounts[0].DefaultFor.Remittance {
		t.Errorf("unexpected flags %+v", accounts[0].DefaultFor)
	}
	if !accounts[0].Balance.Equal(decimal.RequireFromString("1500.5")) {
		t.Errorf("unexpected balance %s", accounts[0].Balance)
	}
	if !accounts[1].DefaultFor.Fund {
		t.Errorf("expected top-level for_fund to be read, got %+v", accounts[1].DefaultFor)
	}
}

func TestVerifyBank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["account_number"] == "0123456789" {
			writeJSON(w, http.StatusOK, map[string]string{"account_name": "GRACE CHAPEL"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Could not resolve account name."})
	}))
	defer srv.Close()

	c := newClient(srv.URL, client.Options{})

	v, err := c.VerifyBank(context.Background(), creds, "0123456789", "058")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.AccountName != "GRACE CHAPEL" {
		t.Errorf("expected resolved name, got %q", v.AccountName)
	}

	_, err = c.VerifyBank(context.Background(), creds, "9999999999", "058")
	var failed *domain.ErrVerificationFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestMakeDefault_SendsAllFlagsInOneRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPut || r.URL.Path != "/accounts/CHQ-001/make-default/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]bool
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body["for_giving"] || body["for_fund"] || body["for_remittance"] {
			t.Errorf("unexpected flags %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"code": "CHQ-001", "is_default": true,
			"default_for": map[string]bool{"giving": true, "fund": false, "remittance": false},
		})
	}))
	defer srv.Close()

	m, _ := domain.NewMakeDefault("CHQ-001", domain.DefaultFor{Giving: true})
	acc, err := newClient(srv.URL, client.Options{}).MakeDefault(context.Background(), creds, m)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !acc.DefaultFor.Giving || acc.DefaultFor.Fund {
		t.Errorf("unexpected flags %+v", acc.DefaultFor)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single request, got %d", n)
	}
}

func TestDeleteAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "s3cret" {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"password": {"Incorrect password."}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(srv.URL, client.Options{})

	err := c.DeleteAccount(context.Background(), creds, "CHQ-001", "wrong")
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := c.DeleteAccount(context.Background(), creds, "CHQ-001", "s3cret"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestTransfer_SendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Idempotency-Key"); got != "key-1" {
			t.Errorf("expected idempotency key, got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), `"amount":"250.00"`) {
			t.Errorf("expected fixed-point amount, got %s", raw)
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"reference": "TRF-9", "status": "successful", "created_at": "2026-10-14T09:00:00Z",
		})
	}))
	defer srv.Close()

	m, _ := domain.NewTransfer("CHQ-001", "SAV-002", decimal.RequireFromString("250"), "building fund")
	receipt, err := newClient(srv.URL, client.Options{}).Transfer(context.Background(), creds, m, "key-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if receipt.Reference != "TRF-9" || receipt.FromAccount != "CHQ-001" || receipt.ToAccount != "SAV-002" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	if !receipt.Amount.Equal(decimal.RequireFromString("250")) {
		t.Errorf("expected amount from request, got %s", receipt.Amount)
	}
	if receipt.CreatedAt == nil {
		t.Error("expected created_at to be parsed")
	}
}
