// Package app wires configuration, storage and the auth service together.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carepoint/server/internal/auth"
	"github.com/carepoint/server/internal/config"
	"github.com/carepoint/server/internal/db"
	httphandler "github.com/carepoint/server/internal/http"
	"github.com/carepoint/server/internal/middleware"
	"github.com/carepoint/server/internal/repo"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// App holds the long-lived components of the service.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Auth   *auth.Service
	Log    *zap.Logger
}

// Open connects to the configured database, applies migrations and builds
// the service.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a, err := New(cfg, conn, log, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// New builds the service over an open, migrated database. A nil clock means
// the system clock.
func New(cfg *config.Config, conn *sqlx.DB, log *zap.Logger, clock auth.Clock) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, clock)
	tracker := auth.NewTracker(
		repo.NewAttemptRepo(conn),
		auth.LockoutPolicy{MaxAttempts: cfg.MaxLoginAttempts, Window: cfg.LockoutWindow, Retention: cfg.AttemptRetention},
		clock,
		log.Named("lockout"),
	)
	policy := auth.PasswordPolicy{MinLength: cfg.PasswordMinLength, SpecialChars: cfg.PasswordSpecialChars}

	svc, err := auth.NewService(repo.NewAccountRepo(conn), tracker, hasher, tokens, policy, clock, log.Named("auth"))
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, DB: conn, Auth: svc, Log: log}, nil
}

// Handler returns the HTTP handler. accessLog may be nil.
func (a *App) Handler(accessLog *zap.Logger) (http.Handler, error) {
	var limiter *middleware.RateLimiter
	if a.Config.RateLimitRPS > 0 {
		var err error
		limiter, err = middleware.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst, a.Config.RateLimitClients)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
	}
	return httphandler.NewRouter(a.Auth, httphandler.Options{
		FrontendURL: a.Config.FrontendURL,
		Limiter:     limiter,
		DB:          a.DB,
		AccessLog:   accessLog,
		Log:         a.Log.Named("http"),
	}), nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
