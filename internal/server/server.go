// Package server provides the HTTP server that wires the evaluation
// services together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/R2-Decide/esci-evaluator/internal/bus"
	"github.com/R2-Decide/esci-evaluator/internal/config"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
	"github.com/R2-Decide/esci-evaluator/internal/qdrant"
	"github.com/R2-Decide/esci-evaluator/internal/report"
)

// Server is the main HTTP server that wires the evaluation services
// together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus      bus.Bus
	qdrant   *qdrant.Client
	adapters *Registry
	history  *report.History // nil when Redis is not configured

	// Handlers
	evalHandler *evaluation.Handler
	runsHandler *RunsHandler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. Evaluation runs issue one
	// backend call per query, so this bounds whole-run duration.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg: cfg,
		log: log,
	}

	// Initialize event bus
	eventBus, err := bus.NewBus(appCfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = eventBus

	// Initialize Qdrant client when the r2decide adapter is configured
	if appCfg.Backends.R2Decide.Collection != "" {
		qc, err := qdrant.NewClient(qdrant.ClientConfig{
			Host:   appCfg.Qdrant.Host,
			Port:   appCfg.Qdrant.Port,
			APIKey: appCfg.Qdrant.APIKey,
			UseTLS: appCfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		s.qdrant = qc
	}

	// Build the adapter registry from configured backends
	registry, err := NewRegistry(appCfg.Backends, s.qdrant)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend registry: %w", err)
	}
	s.adapters = registry

	// Initialize run history when Redis is configured
	if appCfg.Redis.URL != "" {
		history, err := report.NewHistory(appCfg.Redis.URL, appCfg.Redis.RetentionDays)
		if err != nil {
			log.WithError(err).Warn("run history disabled, Redis unavailable")
		} else {
			s.history = history
		}
	}

	// Initialize evaluation handler
	scorer, err := evaluation.NewScorer(
		appCfg.Weights.Weights(),
		appCfg.Evaluation.Ks,
		appCfg.Evaluation.Threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}

	driverCfg := evaluation.DriverConfig{
		Workers:          appCfg.Evaluation.Workers,
		FailureThreshold: appCfg.Evaluation.FailureThreshold,
	}
	s.evalHandler = evaluation.NewHandler(scorer, driverCfg, registry.Resolve, s.bus, log)
	s.runsHandler = NewRunsHandler(s.history, s.evalHandler, cfg.Version)

	// Preload ground truth when configured
	if appCfg.Dataset.Path != "" {
		ds, err := dataset.LoadFile(appCfg.Dataset.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to load ground truth: %w", err)
		}
		if appCfg.Dataset.Locale != "" {
			ds = ds.Filter(dataset.LocaleFilter(appCfg.Dataset.Locale))
		}
		if appCfg.Dataset.Category != "" {
			ds = ds.Filter(dataset.CategoryFilter(appCfg.Dataset.Category))
		}
		if appCfg.Evaluation.MinLabels > 0 {
			ds = ds.Filter(dataset.MinLabelFilter(appCfg.Evaluation.MinLabels))
		}
		s.evalHandler.SetDataset(ds)
		log.Info("ground truth loaded", "path", appCfg.Dataset.Path, "queries", ds.Len())
	}

	return s, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	// Setup routes
	mux := s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server", "addr", addr, "backends", s.adapters.Names())
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	// Shutdown HTTP server
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	// Close services
	if s.history != nil {
		s.history.Close()
	}
	if s.qdrant != nil {
		s.qdrant.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Evaluation endpoints
	s.evalHandler.RegisterRoutes(mux)

	// Run history and health endpoints
	s.runsHandler.RegisterRoutes(mux)

	// Wrap with logging
	return wrapWithLogging(mux, s.log)
}

// wrapWithLogging returns a mux with logging middleware.
func wrapWithLogging(handler http.Handler, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response writer wrapper to capture status
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
	return mux
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
