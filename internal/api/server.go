// Package api provides the HTTP server for starting and observing synchronization executions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/catalog-sync-server/internal/api/common"
	v1 "github.com/stacklok/catalog-sync-server/internal/api/v1"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/versions"
)

const readinessTimeout = 2 * time.Second

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsPath    string
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the router
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler mounts a Prometheus scrape handler at path
func WithMetricsHandler(path string, h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsPath = path
		cfg.metricsHandler = h
	}
}

// NewServer builds the router
func NewServer(
	orch coordinator.Orchestrator,
	tracker state.ExecutionTracker,
	configs v1.ConfigurationFinder,
	opts ...ServerOption,
) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(tracker))
	r.Get("/version", versionHandler)
	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, cfg.metricsPath, cfg.metricsHandler)
	}

	r.Mount("/v1", v1.Router(orch, tracker, configs))
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "ok"}, http.StatusOK)
}

// readinessHandler reports ready once the execution store answers
func readinessHandler(tracker state.ExecutionTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if _, err := tracker.List(ctx, state.ListFilter{Limit: 1}); err != nil {
			common.WriteJSONResponse(w, ReadinessResponse{Status: "not ready", Error: err.Error()}, http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

// LoggingMiddleware logs each request at debug level
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
