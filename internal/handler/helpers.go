package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.ErrValidation{Field: "body", Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// parseScope reads ?accounts=a,b. No parameter means every account.
func parseScope(r *http.Request) domain.Scope {
	raw := r.URL.Query().Get("accounts")
	if raw == "" {
		return domain.Scope{}
	}
	var codes []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return domain.Scope{AccountCodes: codes}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var network *domain.ErrNetwork
	var external *domain.ErrExternalService
	var validation *domain.ErrValidation
	var verification *domain.ErrVerificationFailed
	var unauthorized *domain.ErrUnauthorized
	var concurrent *domain.ErrConcurrentAction
	var invalidState *domain.ErrInvalidState
	var stale *domain.ErrStaleSelection
	var pageLimit *domain.ErrPageLimit

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: validation.Fields})
	case errors.As(err, &verification):
		logger.Info("bank verification failed", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &concurrent):
		logger.Warn("concurrent action rejected", zap.String("account_code", concurrent.AccountCode))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalidState):
		logger.Debug("invalid action state", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &stale):
		logger.Debug("stale selection", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pageLimit):
		logger.Error("pagination aborted", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &network):
		if network.Timeout() {
			logger.Error("ledger timeout", zap.Error(err))
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		logger.Error("ledger unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &external):
		logger.Error("ledger error", zap.Int("status", external.Status), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
