// Package api exposes the kiosk over HTTP for remote controls and dashboards.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/ranortv/internal/auth"
	"github.com/mattjoyce/ranortv/internal/events"
	"github.com/mattjoyce/ranortv/internal/history"
	"github.com/mattjoyce/ranortv/internal/kiosk"
	"github.com/mattjoyce/ranortv/internal/metrics"
)

// HistoryReader is the read side of the launch log.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Usage(ctx context.Context) ([]history.Usage, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// authEnabled reports whether any credential is configured. Without one the
// API is open, which only makes sense on a loopback listener.
func (c Config) authEnabled() bool {
	return c.APIKey != "" || len(c.Tokens) > 0
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	loop      *kiosk.Loop
	events    *events.Hub
	history   HistoryReader
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and m may be nil.
func New(config Config, loop *kiosk.Loop, hub *events.Hub, hist HistoryReader, m *metrics.Metrics, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(events.DefaultCapacity)
	}
	return &Server{
		config:    config,
		loop:      loop,
		events:    hub,
		history:   hist,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// SSE streams stay open, so no WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}

	if !s.config.authEnabled() {
		s.logger.Warn("API auth disabled: no api_key or tokens configured", "listen", s.config.Listen)
	}
	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopeKioskRead)).Get("/apps/{view}", s.handleApps)
		r.With(s.requireScopes(auth.ScopeKioskRead)).Get("/app/{appID}", s.handleApp)
		r.With(s.requireScopes(auth.ScopeKioskRead)).Get("/nav", s.handleNavState)

		r.With(s.requireScopes(auth.ScopeKioskRW)).Post("/nav/{event}", s.handleNavEvent)
		r.With(s.requireScopes(auth.ScopeKioskRW)).Post("/nav/tab/{tab}", s.handleNavTab)
		r.With(s.requireScopes(auth.ScopeKioskRW)).Post("/nav/focus/{tab}/{index}", s.handleNavFocus)
		r.With(s.requireScopes(auth.ScopeKioskRW)).Post("/launch/{appID}", s.handleLaunch)
		r.With(s.requireScopes(auth.ScopeKioskRW)).Post("/store/refresh", s.handleStoreRefresh)

		r.With(s.requireScopes(auth.ScopeHistory)).Get("/history", s.handleHistory)
		r.With(s.requireScopes(auth.ScopeHistory)).Get("/history/usage", s.handleUsage)
		r.With(s.requireScopes(auth.ScopeEvents)).Get("/events", s.handleEvents)
		r.With(s.requireScopes(auth.ScopeMetrics)).Get("/metrics", s.handleMetrics)
	})

	return r
}

// loggingMiddleware logs HTTP requests and feeds the request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		s.metrics.RecordRequest(r.Method, route, strconv.Itoa(ww.Status()), elapsed)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
