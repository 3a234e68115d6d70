// Package httpserver exposes the market over HTTP: order submission,
// state and fill snapshots, admin resolution, probes and metrics.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/internal/scheduler"
	"github.com/oddslab/marketcore/internal/stream"
	"github.com/oddslab/marketcore/pkg/healthprobe"
	"github.com/oddslab/marketcore/pkg/snapcache"
)

// Server serves the market API.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Scheduler     *scheduler.Scheduler
	Hub           *stream.Hub
	Cache         *snapcache.Cache
}

// New creates the HTTP server and its routes.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Scheduler != nil {
		h := newAPIHandler(cfg.Scheduler, cfg.Cache, cfg.Logger)
		r.Post("/api/orders", h.handleSubmitOrder)
		r.Post("/api/orders/cancel", h.handleCancel)
		r.Get("/api/state", h.handleState)
		r.Get("/api/fills", h.handleFills)
		r.Get("/api/status", h.handleStatus)
		r.Post("/api/admin/resolve", h.handleResolve)
		r.Post("/api/admin/freeze", h.handleFreeze)
		r.Post("/api/admin/unfreeze", h.handleUnfreeze)
	}
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.ServeHTTP)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{server: server, logger: cfg.Logger}
}

// Start runs the server; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http-server-shutdown-complete")
	return nil
}
