package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carepoint/server/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFor(t *testing.T) {
	tests := map[auth.Code]int{
		auth.CodeInvalidCredentials:    http.StatusUnauthorized,
		auth.CodeAccountLocked:         http.StatusUnauthorized,
		auth.CodeInvalidOrExpiredToken: http.StatusUnauthorized,
		auth.CodeWeakPassword:          http.StatusBadRequest,
		auth.CodeDuplicateAccount:      http.StatusBadRequest,
		auth.CodeInvalidInput:          http.StatusBadRequest,
		auth.CodeInvalidRole:           http.StatusBadRequest,
		auth.CodeForbidden:             http.StatusForbidden,
		auth.Code("SOMETHING_ELSE"):     http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), string(code))
	}
}

func TestRespondWithAuthError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)

	t.Run("locked carries retry after", func(t *testing.T) {
		rec := httptest.NewRecorder()
		locked := &auth.Error{Code: auth.CodeAccountLocked, Message: "locked", RetryAfter: 90*time.Second + time.Millisecond}
		respondWithAuthError(rec, zap.NewNop(), req, fmt.Errorf("login: %w", locked))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "91", rec.Header().Get("Retry-After"))
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ACCOUNT_LOCKED", body.Code)
		assert.Equal(t, 91, body.RetryAfter)
	})

	t.Run("weak password lists rules", func(t *testing.T) {
		rec := httptest.NewRecorder()
		weak := &auth.Error{Code: auth.CodeWeakPassword, Message: "weak", Rules: []string{"a", "b"}}
		respondWithAuthError(rec, zap.NewNop(), req, weak)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get("Retry-After"))
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"a", "b"}, body.Rules)
	})

	t.Run("internal errors are hidden and logged", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		rec := httptest.NewRecorder()
		respondWithAuthError(rec, zap.New(core), req, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
	})
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false}`, rec.Body.String())
}
