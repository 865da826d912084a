package handler

import (
	"net/http"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"
	"github.com/boddenberg/church-ledger-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Account lifecycle: /v1/actions
// ============================================================

// commitRequest carries the re-entered password a delete commit needs.
type commitRequest struct {
	Password string `json:"password"`
}

func beginActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/actions")
		defer span.End()

		var req domain.ActionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		m, err := req.Mutation()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("action.kind", string(m.Kind())),
			attribute.String("account.code", m.Target()),
		)

		action, err := lm.Begin(ctx, CredentialsFromContext(ctx), m)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, action)
	}
}

func getActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/actions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("action.id", id))

		action, err := lm.Get(CredentialsFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, action)
	}
}

func verifyActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/actions/{id}/verify")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("action.id", id))

		action, err := lm.Verify(ctx, CredentialsFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, action)
	}
}

func confirmActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/actions/{id}/confirm")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("action.id", id))

		action, err := lm.Confirm(CredentialsFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, action)
	}
}

func commitActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/actions/{id}/commit")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("action.id", id))

		var req commitRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		action, err := lm.Commit(ctx, CredentialsFromContext(ctx), id, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, action)
	}
}

func cancelActionHandler(lm *service.LifecycleManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /v1/actions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("action.id", id))

		if err := lm.Cancel(CredentialsFromContext(r.Context()), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "action cancelled", ID: id})
	}
}
