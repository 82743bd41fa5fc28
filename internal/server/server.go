// Package server provides the HTTP server of the verification service.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/handlers"
	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/internal/middleware"
	"github.com/pideploy/pideploy/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	cfg           *config.Config
	log           *logger.Logger
	httpServer    *http.Server
	healthHandler *handlers.HealthHandler
	runHandler    *handlers.RunHandler
	listener      net.Listener
	running       bool
	mu            sync.RWMutex
}

// New creates a new Server instance.
func New(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(cfg.App.Version),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	chain := middleware.New(
		middleware.Metrics(),
		middleware.RequestID(),
		middleware.ClientIP(cfg.Server.TrustProxy),
		middleware.AccessLog(log.Named("http")),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      chain.Then(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/checks", s.withRuns(func(h *handlers.RunHandler) http.HandlerFunc { return h.ListChecks }))
	mux.HandleFunc("POST /api/v1/runs", s.withRuns(func(h *handlers.RunHandler) http.HandlerFunc { return h.StartRun }))
	mux.HandleFunc("GET /api/v1/runs", s.withRuns(func(h *handlers.RunHandler) http.HandlerFunc { return h.ListRuns }))
	mux.HandleFunc("GET /api/v1/runs/{id}", s.withRuns(func(h *handlers.RunHandler) http.HandlerFunc { return h.GetRun }))
}

// withRuns defers handler lookup to request time so SetRunHandler may be
// called after New.
func (s *Server) withRuns(pick func(*handlers.RunHandler) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		h := s.runHandler
		s.mu.RUnlock()
		if h == nil {
			http.Error(w, "run service not configured", http.StatusServiceUnavailable)
			return
		}
		pick(h)(w, r)
	}
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	err = s.httpServer.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// SetRunHandler installs the check and run endpoints.
func (s *Server) SetRunHandler(h *handlers.RunHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runHandler = h
}
