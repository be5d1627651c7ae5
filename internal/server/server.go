// Package server re-exposes the monitor's reconciled view over HTTP for
// headless deployments.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/cnpj-monitor/internal/display"
	"github.com/narvanalabs/cnpj-monitor/internal/logs"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
	"github.com/narvanalabs/cnpj-monitor/internal/monitor"
	"github.com/narvanalabs/cnpj-monitor/web/health"
)

// Monitor is what the server reads from and drives.
type Monitor interface {
	Snapshot() monitor.State
	Logs() []models.LogEntry
	LastLogs(n int) []models.LogEntry
	Broker() *logs.Broker
	StartJob(ctx context.Context) error
	StopJob(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Server serves the monitor view.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	monitor    Monitor
	formatter  *display.Formatter
	health     *health.Checker
	logger     *slog.Logger

	// pingInterval spaces keep-alive events on the log stream.
	pingInterval time.Duration
}

// NewServer creates a server for m. checker may be nil, in which case /health
// is not mounted.
func NewServer(m Monitor, formatter *display.Formatter, checker *health.Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if formatter == nil {
		formatter = display.NewFormatter(display.DefaultLocale)
	}

	s := &Server{
		monitor:      m,
		formatter:    formatter,
		health:       checker,
		logger:       logger,
		pingInterval: 15 * time.Second,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(Recovery(s.logger))

	if s.health != nil {
		r.Get("/health", s.health.Handler())
	}

	r.Route("/v1/monitor", func(r chi.Router) {
		// The log stream holds its response open; everything else is bounded.
		r.Get("/logs/stream", s.streamLogs)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))

			r.Get("/", s.getView)
			r.Get("/logs", s.listLogs)
			r.Post("/start", s.startJob)
			r.Post("/stop", s.stopJob)
			r.Post("/refresh", s.refresh)
		})
	})

	s.router = r
}

// HTTPServer returns the http.Server bound to addr, created on first call.
func (s *Server) HTTPServer(addr string) *http.Server {
	if s.httpServer == nil {
		s.httpServer = &http.Server{
			Addr:              addr,
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	return s.httpServer
}

// Start listens on addr until ctx is done or the server fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := s.HTTPServer(addr)
	s.logger.Info("starting view server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("view server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down view server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
