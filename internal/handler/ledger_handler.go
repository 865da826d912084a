package handler

import (
	"net/http"
	"strconv"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 1. Accounts: GET /v1/accounts, GET /v1/accounts/{code}
// ============================================================

func listAccountsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		creds := CredentialsFromContext(ctx)
		var (
			accounts []domain.Account
			err      error
		)
		if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
			accounts, err = svc.RefreshAccounts(ctx, creds)
		} else {
			accounts, err = svc.Accounts(ctx, creds)
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("accounts.count", len(accounts)))
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

func getAccountHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{code}")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("account.code", code))

		account, err := svc.Account(ctx, CredentialsFromContext(ctx), code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// ============================================================
// 2. Statements & selection
// ============================================================

func statementHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{code}/statement")
		defer span.End()

		code := chi.URLParam(r, "code")
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		span.SetAttributes(
			attribute.String("account.code", code),
			attribute.Bool("refresh", refresh),
		)

		stmt, err := svc.Statement(ctx, CredentialsFromContext(ctx), code, refresh)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stmt)
	}
}

func selectHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{code}/select")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("account.code", code))

		stmt, err := svc.Select(ctx, CredentialsFromContext(ctx), code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stmt)
	}
}

func refreshHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{code}/refresh")
		defer span.End()

		code := chi.URLParam(r, "code")
		span.SetAttributes(attribute.String("account.code", code))

		stmt, err := svc.Refresh(ctx, CredentialsFromContext(ctx), code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stmt)
	}
}

func selectionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/selection")
		defer span.End()

		stmt, err := svc.Current(CredentialsFromContext(r.Context()))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stmt)
	}
}

// ============================================================
// 3. Dashboard: GET /v1/dashboard?accounts=a,b
// ============================================================

func dashboardHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		scope := parseScope(r)
		span.SetAttributes(attribute.StringSlice("scope.accounts", scope.AccountCodes))

		dash, err := svc.Dashboard(ctx, CredentialsFromContext(ctx), scope)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dash)
	}
}
