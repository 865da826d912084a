package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/church-ledger-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const credentialsKey contextKey = "credentials"

// CredentialsMiddleware requires a Bearer token and injects the request's
// domain.Credentials into the context.
//
// The ledger verifies the token on every call; here it is only inspected.
// A JWT supplies the session id from its sid (or sub) claim and is
// rejected once expired. Any other token is opaque and its digest is the
// session id.
func CredentialsMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			token := strings.TrimSpace(parts[1])
			session, err := sessionFromToken(token, time.Now())
			if err != nil {
				logger.Warn("auth: rejected token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			creds := domain.Credentials{Token: token, SessionID: session}
			ctx := context.WithValue(r.Context(), credentialsKey, creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFromToken derives the session id for a bearer token.
func sessionFromToken(token string, now time.Time) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		sum := sha256.Sum256([]byte(token))
		return "opaque:" + hex.EncodeToString(sum[:16]), nil
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !exp.After(now) {
		return "", &domain.ErrUnauthorized{Message: "session token expired"}
	}
	if sid, ok := claims["sid"].(string); ok && sid != "" {
		return "sid:" + sid, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return "sub:" + sub, nil
	}
	return "", &domain.ErrUnauthorized{Message: "session token carries no subject"}
}

// CredentialsFromContext extracts the request credentials from context.
func CredentialsFromContext(ctx context.Context) domain.Credentials {
	v, _ := ctx.Value(credentialsKey).(domain.Credentials)
	return v
}
