package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/carepoint/server/internal/auth"
	"github.com/carepoint/server/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	VerifyAccessToken(token string) (model.Identity, error)
}

// Authenticate validates the bearer token and attaches the identity to the
// request context. Verification is local; no store is consulted.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOrExpiredToken)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOrExpiredToken)
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOrExpiredToken)
				return
			}

			identity, err := verifier.VerifyAccessToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOrExpiredToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects requests whose identity does not hold one of roles.
// It must run after Authenticate.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOrExpiredToken)
				return
			}
			if err := auth.Authorize(identity, roles...); err != nil {
				respondWithError(w, http.StatusForbidden, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the identity attached by Authenticate.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, err error) {
	body := map[string]string{"code": "INTERNAL", "message": "internal server error"}
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		body = map[string]string{"code": string(authErr.Code), "message": authErr.Message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
