// Package web exposes the import pipeline over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/dataimport/internal/config"
	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/store"
	"github.com/JonMunkholm/dataimport/internal/web/middleware"
)

// PermissionSource resolves the policy for an actor on a table.
type PermissionSource interface {
	Lookup(ctx context.Context, actor, table string) (core.Permission, error)
}

// History is the persisted job and event history.
type History interface {
	ListJobs(ctx context.Context, f store.HistoryFilter) (*store.HistoryPage, error)
	GetJob(ctx context.Context, id string) (core.ImportJob, error)
	Summarize(ctx context.Context) (store.Summary, error)
	ListEvents(ctx context.Context, f store.EventFilter) ([]core.AuditEvent, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the import API.
type Server struct {
	ctrl     *core.Controller
	perms    PermissionSource
	history  History
	cfg      *config.Config
	validate *validator.Validate
	limiter  *middleware.RateLimiter
	stop     chan struct{}
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a Server. history may be nil, in which case the history
// routes answer 404.
func NewServer(ctrl *core.Controller, perms PermissionSource, history History, cfg *config.Config) *Server {
	s := &Server{
		ctrl:     ctrl,
		perms:    perms,
		history:  history,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		stop:     make(chan struct{}),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(cors(s.cfg.Security.AllowedOrigins))

	if s.cfg.Rate.Enabled {
		s.limiter = middleware.NewRateLimiter(s.cfg.Rate.RequestsPerSecond, s.cfg.Rate.Burst, 10*time.Minute)
		go s.limiter.Run(5*time.Minute, s.stop)
		s.router.Use(s.limiter.Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))
		r.Use(middleware.Actor(s.cfg.Security.JWTSecret))

		// Progress streams stay open for the life of the job.
		r.Get("/imports/{jobID}/progress", s.handleImportProgress)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.requestTimeout()))

			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{tableKey}", s.handleGetTable)

			r.Post("/parse", s.handleParse)
			r.Post("/automap", s.handleAutoMap)
			r.Post("/validate", s.handleValidate)

			r.Post("/imports", s.handleSubmitImport)
			r.Get("/imports", s.handleListImports)
			r.Get("/imports/stats", s.handleImportStats)
			r.Delete("/imports/completed", s.handleClearCompleted)
			r.Get("/imports/{jobID}", s.handleGetImport)
			r.Post("/imports/{jobID}/cancel", s.handleCancelImport)
			r.Post("/imports/{jobID}/retry", s.handleRetryImport)
			r.Post("/imports/{jobID}/approve", s.handleApproveImport)

			r.Get("/history", s.handleHistory)
			r.Get("/history/summary", s.handleHistorySummary)
			r.Get("/history/{jobID}", s.handleHistoryJob)
			r.Get("/history/{jobID}/events", s.handleHistoryEvents)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// cors answers preflight requests and tags responses for allowed origins.
// "*" allows any origin.
func cors(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimSuffix(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (origins["*"] || origins[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Actor")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
