package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/logging"
)

// ReadinessChecker is an interface for checking component readiness
type ReadinessChecker interface {
	IsReady() bool
}

// NoOpReadinessChecker is a ReadinessChecker that always returns true.
// Use this when nothing gates traffic admission.
type NoOpReadinessChecker struct{}

// IsReady always returns true for the no-op checker.
func (n *NoOpReadinessChecker) IsReady() bool {
	return true
}

// TracerSource hands out tracers for instrumenting handlers. Satisfied by
// tracing.Provider; nil falls back to the global provider.
type TracerSource interface {
	GetTracer(name string) trace.Tracer
	IsEnabled() bool
}

// Server exposes the diagnosis engine over HTTP.
type Server struct {
	port   int
	server *http.Server
	logger *logging.Logger
	router *http.ServeMux

	// engine is swapped atomically when configuration reloads; handlers
	// snapshot it once per request.
	mu     sync.RWMutex
	engine *diagnosis.Engine

	readinessChecker ReadinessChecker
	tracerSource     TracerSource
	metrics          *Metrics
	promRegistry     *prometheus.Registry
}

// New creates an API server around a ready engine. The engine can be
// replaced at runtime via SetEngine when configuration reloads.
func New(port int, engine *diagnosis.Engine, readiness ReadinessChecker, tracers TracerSource) *Server {
	if readiness == nil {
		readiness = &NoOpReadinessChecker{}
	}

	promRegistry := prometheus.NewRegistry()
	s := &Server{
		port:             port,
		logger:           logging.GetLogger("api"),
		router:           http.NewServeMux(),
		engine:           engine,
		readinessChecker: readiness,
		tracerSource:     tracers,
		metrics:          NewMetrics(promRegistry),
		promRegistry:     promRegistry,
	}

	s.registerHandlers()
	s.configureHTTPServer(port)

	return s
}

// configureHTTPServer creates the HTTP server with the middleware chain and
// timeouts sized for diagnosis payloads (large outputs arrive in the record).
func (s *Server) configureHTTPServer(port int) {
	handler := s.corsMiddleware(s.requestIDMiddleware(s.loggingMiddleware(s.router)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// SetEngine swaps the engine serving subsequent requests. In-flight requests
// finish on the engine they started with.
func (s *Server) SetEngine(engine *diagnosis.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

func (s *Server) currentEngine() *diagnosis.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Start implements the lifecycle.Component interface.
// Starts the HTTP server and begins listening for requests.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server on port %d", s.port)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	s.logger.Info("API server started and listening on port %d", s.port)
	return nil
}

// Stop implements the lifecycle.Component interface.
// Gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("HTTP server shutdown error: %v", err)
			return err
		}
		s.logger.Info("API server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("API server shutdown timeout")
		return ctx.Err()
	}
}

// Name implements the lifecycle.Component interface.
func (s *Server) Name() string {
	return "API Server"
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = WriteJSON(w, response)
}

// handleReady handles readiness check requests
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := s.readinessChecker != nil && s.readinessChecker.IsReady()

	response := map[string]interface{}{
		"ready": ready,
	}

	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = WriteJSON(w, response)
}

// getTracer returns a tracer for the given name.
func (s *Server) getTracer(name string) trace.Tracer {
	if s.tracerSource != nil && s.tracerSource.IsEnabled() {
		return s.tracerSource.GetTracer(name)
	}
	return otel.GetTracerProvider().Tracer(name)
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() int {
	return s.port
}

// IsRunning checks if the server is running
func (s *Server) IsRunning() bool {
	return s.server != nil
}
