// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/tadash/internal/analysis"
	apihandler "github.com/newthinker/tadash/internal/api/handler/api"
	"github.com/newthinker/tadash/internal/api/handler/web"
	"github.com/newthinker/tadash/internal/api/middleware"
	"github.com/newthinker/tadash/internal/api/response"
	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the dashboard
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	APIKey       string
	TemplatesDir string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
}

// Dependencies holds the services the handlers call
type Dependencies struct {
	Analysis *analysis.Service
	// Searcher backs symbol lookup; nil disables it
	Searcher collector.Searcher
	// Metrics enables request metrics and the scrape endpoint when set
	Metrics *metrics.Registry
	// Provider and CacheBackend are reported by the health check
	Provider     string
	CacheBackend string
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
		deps:   deps,
	}

	// Set up routes
	if err := s.setupRoutes(cfg); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	s.httpServer.Handler = metrics.LoggingMiddleware(logger)(handler)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) error {
	// Web UI routes
	webHandler, err := web.NewHandler(s.deps.Analysis, cfg.TemplatesDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	s.mux.HandleFunc("GET /", webHandler.Index)
	s.mux.HandleFunc("GET /analyze", webHandler.Analyze)
	s.mux.HandleFunc("GET /export", webHandler.Export)

	// JSON API, behind the API key when one is configured
	analysisHandler := apihandler.NewAnalysisHandler(s.deps.Analysis, s.logger)
	symbolsHandler := apihandler.NewSymbolsHandler(s.deps.Searcher, s.logger)

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /api/v1/analysis", analysisHandler.Get)
	v1.HandleFunc("GET /api/v1/export", analysisHandler.Export)
	v1.HandleFunc("GET /api/v1/exports", analysisHandler.History)
	v1.HandleFunc("GET /api/v1/symbols/search", symbolsHandler.Search)
	v1.HandleFunc("GET /api/v1/options", symbolsHandler.Options)
	s.mux.Handle("GET /api/v1/", middleware.APIKeyAuth(cfg.APIKey)(v1))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	return nil
}

// Handler returns the fully wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
	response.JSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.deps.Provider,
		"cache":    s.deps.CacheBackend,
	})
}
