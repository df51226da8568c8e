package http

import (
	"github.com/carepoint/server/internal/auth"
	"github.com/carepoint/server/internal/http/handlers"
	"github.com/carepoint/server/internal/middleware"
	"github.com/carepoint/server/internal/model"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures the optional parts of the router.
type Options struct {
	// FrontendURL enables CORS for that origin when set.
	FrontendURL string
	// Limiter throttles /api requests per client IP; nil disables it.
	Limiter *middleware.RateLimiter
	// DB backs the health check; nil reports healthy without a ping.
	DB handlers.Pinger
	// AccessLog receives one line per request.
	AccessLog *zap.Logger
	Log       *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authService *auth.Service, opts Options) *chi.Mux {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	authHandler := handlers.NewAuthHandler(authService, opts.Log)
	adminHandler := handlers.NewAdminHandler(authService, opts.Log)
	healthHandler := handlers.NewHealthHandler(opts.DB)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(opts.AccessLog))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if opts.FrontendURL != "" {
		r.Use(middleware.CORS(opts.FrontendURL))
	}

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	authenticate := middleware.Authenticate(authService)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(opts.Limiter, middleware.GetIPKey))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/register", authHandler.HandleRegister)
			r.With(authenticate).Get("/me", authHandler.HandleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
			r.Get("/staff", adminHandler.HandleStaffDirectory)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/accounts", adminHandler.HandleListAccounts)
			r.Post("/accounts/{email}/unlock", adminHandler.HandleUnlock)
		})
	})

	return r
}
