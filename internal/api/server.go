// Package api exposes a small read-only HTTP surface over the daemon:
// health, outcome counters, recent commands and the event buffer. It is a
// status window, not a control plane; commands only enter via the socket.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/voxgate/internal/audit"
	"github.com/mattjoyce/voxgate/internal/dispatch"
	"github.com/mattjoyce/voxgate/internal/events"
	"github.com/mattjoyce/voxgate/internal/grammar"
)

// ConnStats reports live socket-side counters.
type ConnStats interface {
	OpenConns() int64
	DroppedCommands() int64
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token protecting everything except /healthz.
	APIKey string
}

// Server is the HTTP status server.
type Server struct {
	config    Config
	grammar   *grammar.Grammar
	stats     *dispatch.Stats
	conns     ConnStats
	audit     *audit.Log
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. audit and hub may be nil; their endpoints then
// return empty results.
func New(config Config, g *grammar.Grammar, stats *dispatch.Stats, conns ConnStats, auditLog *audit.Log, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		grammar:   g,
		stats:     stats,
		conns:     conns,
		audit:     auditLog,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
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

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/stats", s.handleStats)
		r.Get("/commands", s.handleCommands)
		r.Get("/commands/recent", s.handleRecentCommands)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
