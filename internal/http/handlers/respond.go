package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/carepoint/server/internal/auth"
	"go.uber.org/zap"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	RetryAfter int      `json:"retryAfter,omitempty"` // seconds
	Rules      []string `json:"rules,omitempty"`
}

func statusFor(code auth.Code) int {
	switch code {
	case auth.CodeInvalidCredentials, auth.CodeAccountLocked, auth.CodeInvalidOrExpiredToken:
		return http.StatusUnauthorized
	case auth.CodeWeakPassword, auth.CodeDuplicateAccount, auth.CodeInvalidInput, auth.CodeInvalidRole:
		return http.StatusBadRequest
	case auth.CodeForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondWithAuthError maps err to a status and body. Anything that is not an
// *auth.Error is logged and reported as a generic internal error.
func respondWithAuthError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal server error"})
		return
	}

	body := errorResponse{Code: string(authErr.Code), Message: authErr.Message, Rules: authErr.Rules}
	if authErr.RetryAfter > 0 {
		secs := int(math.Ceil(authErr.RetryAfter.Seconds()))
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	respondJSON(w, statusFor(authErr.Code), body)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, code auth.Code, message string) {
	respondJSON(w, statusCode, errorResponse{Code: string(code), Message: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
