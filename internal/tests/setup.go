package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carepoint/server/internal/app"
	"github.com/carepoint/server/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-at-least-32-characters-long"

// TestConfig returns a valid configuration for the given database.
func TestConfig(driver, databaseURL string) *config.Config {
	return &config.Config{
		Env:                  "test",
		Port:                 "0",
		DatabaseDriver:       driver,
		DatabaseURL:          databaseURL,
		JWTSecret:            testJWTSecret,
		JWTIssuer:            "hms",
		AccessTokenTTL:       time.Hour,
		MaxLoginAttempts:     5,
		LockoutWindow:        15 * time.Minute,
		AttemptRetention:     24 * time.Hour,
		PasswordMinLength:    8,
		PasswordSpecialChars: "!@#$%^&*",
		BcryptCost:           4,
		LogLevel:             "info",
	}
}

// TruncateAuthTables clears auth tables for a clean test state.
func TruncateAuthTables(ctx context.Context, db *sqlx.DB) error {
	for _, table := range []string{"login_attempts", "accounts"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// testServer holds the server and DB for end-to-end tests
type testServer struct {
	Server *httptest.Server
	DB     *sqlx.DB
}

func newTestServer(t *testing.T, cfg *config.Config, conn *sqlx.DB) *testServer {
	t.Helper()

	application, err := app.New(cfg, conn, nil, nil)
	require.NoError(t, err)
	handler, err := application.Handler(nil)
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testServer{Server: server, DB: conn}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) TruncateAuth(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateAuthTables(context.Background(), s.DB), "truncate auth tables")
}

// postJSON sends body as JSON and returns the response; the caller closes it.
func (s *testServer) postJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.BaseURL()+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (s *testServer) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.BaseURL()+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// authResponse matches the login and register response
type authResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// errorResponse matches error JSON body
type errorResponse struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	RetryAfter int      `json:"retryAfter"`
	Rules      []string `json:"rules"`
}

// decode reads a JSON response body into v and closes it.
func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v), "body: %s", string(b))
}

// readBody reads and returns the response body (consumes it). Use for error messages only.
func readBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
