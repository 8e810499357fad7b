// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/api/handler/api"
	"github.com/newthinker/prism/internal/api/job"
	"github.com/newthinker/prism/internal/api/middleware"
	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/metrics"
)

// Server represents the HTTP server for PRISM
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string // empty disables /metrics
}

// Dependencies holds the components the routes are served from.
type Dependencies struct {
	Backtester api.BacktestRunner
	Library    api.StrategyLibrary
	Jobs       *job.Store
	Generator  api.StrategyGenerator // may be nil
	Notifier   api.JobNotifier       // may be nil
	Metrics    *metrics.Registry     // may be nil
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Backtester == nil || deps.Library == nil {
		return nil, fmt.Errorf("backtester and library are required")
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(0, time.Hour)
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// generation waits on an LLM
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	s.setupRoutes(cfg, deps)

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	handler = metrics.LoggingMiddleware(logger)(handler)
	s.httpServer.Handler = handler

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	var gauge api.JobGauge
	if deps.Metrics != nil {
		gauge = deps.Metrics
	}
	backtests := api.NewBacktestHandler(deps.Jobs, deps.Backtester, deps.Library, gauge, s.logger)
	if deps.Notifier != nil {
		backtests.SetNotifier(deps.Notifier)
	}
	strategies := api.NewStrategyHandler(deps.Library)
	generate := api.NewGenerateHandler(deps.Generator)

	auth := middleware.APIKeyAuth(cfg.APIKey)
	v1 := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, auth(h))
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	v1("POST /api/v1/backtests", backtests.Create)
	v1("GET /api/v1/backtests/{id}", backtests.GetStatus)

	v1("GET /api/v1/strategies", strategies.List)
	v1("POST /api/v1/strategies", strategies.Save)
	v1("POST /api/v1/strategies/validate", strategies.Validate)
	v1("POST /api/v1/strategies/generate", generate.Generate)
	v1("GET /api/v1/strategies/{key}", strategies.Get)
	v1("DELETE /api/v1/strategies/{key}", strategies.Delete)

	if deps.Metrics != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
