package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/duewatch/internal/config"
	"github.com/terra-clan/duewatch/internal/dashboard"
	"github.com/terra-clan/duewatch/internal/health"
	"github.com/terra-clan/duewatch/internal/metrics"
	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/weeks"
)

// Dashboard is the pipeline the API exposes
type Dashboard interface {
	Login(ctx context.Context, email, password string) (*models.Snapshot, error)
	Logout(ctx context.Context)
	Refresh(ctx context.Context) (*models.Snapshot, error)
	Cancel()
	View(week string, nav weeks.Direction) (*dashboard.WeekView, error)
	Session() models.Session
	Subscribe() (<-chan models.SessionState, func())
	History(ctx context.Context, limit int) ([]*models.Snapshot, error)
}

// Server represents the local HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	dashboard Dashboard
	checks    *health.Registry
	metrics   *metrics.Metrics
	validate  *validator.Validate
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server. checks and m may be nil.
func NewServer(cfg config.ServerConfig, d Dashboard, checks *health.Registry, m *metrics.Metrics) *Server {
	s := &Server{
		config:    cfg,
		dashboard: d,
		checks:    checks,
		metrics:   m,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return s.originAllowed(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// the events stream is long-lived and must not be cut by the timeout
		r.Get("/session/events", s.handleSessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Get("/session", s.handleGetSession)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Post("/refresh", s.handleRefresh)
				r.Post("/refresh/cancel", s.handleCancelRefresh)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/snapshots", s.handleListSnapshots)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// originAllowed reports whether origin is in the configured allow list.
// An empty list admits no cross-origin caller.
func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}

// checkOrigin admits non-browser clients, same-origin pages and allowed origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return s.originAllowed(origin)
}
