// Package api exposes the HTTP interface for the job scraper service.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape and /v1/batch{,/async,/stream} for scraping.
//   - GET/DELETE /v1/cache/... for cache administration.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhatretamish/linkedin/internal/cache"
	"github.com/mhatretamish/linkedin/internal/config"
	"github.com/mhatretamish/linkedin/internal/handler"
	"github.com/mhatretamish/linkedin/internal/metrics"
	"github.com/mhatretamish/linkedin/internal/middleware"
	"github.com/mhatretamish/linkedin/internal/scraper"
	"github.com/mhatretamish/linkedin/internal/webhook"
)

// Server wires HTTP handlers to the request handler and cache.
type Server struct {
	router   chi.Router
	handler  *handler.Handler
	cache    *cache.Cache
	notifier *webhook.Notifier
	clock    scraper.Clock
	cfg      config.Config
	logger   *zap.Logger
	started  time.Time
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	h *handler.Handler,
	resultCache *cache.Cache,
	notifier *webhook.Notifier,
	clock scraper.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		handler:  h,
		cache:    resultCache,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		started:  clock.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream endpoint flushes NDJSON incrementally and cannot
		// sit behind http.TimeoutHandler.
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(2 * time.Minute))
			r.Post("/scrape", s.scrape)
			r.Post("/batch", s.batch)
			r.Post("/batch/async", s.batchAsync)
			r.Get("/stats", s.stats)
			r.Get("/config", s.configInfo)
			r.Get("/supported-sites", s.supportedSites)
			r.Route("/cache", func(r chi.Router) {
				r.Get("/stats", s.cacheStats)
				r.Get("/items", s.cacheItems)
				r.Delete("/", s.cacheClear)
				r.Post("/invalidate", s.cacheInvalidate)
			})
		})
		r.Post("/batch/stream", s.batchStream)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "job-scraper",
		"endpoints": map[string]string{
			"scrape":          "POST /v1/scrape",
			"batch":           "POST /v1/batch",
			"batch_async":     "POST /v1/batch/async",
			"batch_stream":    "POST /v1/batch/stream",
			"stats":           "GET /v1/stats",
			"cache_stats":     "GET /v1/cache/stats",
			"supported_sites": "GET /v1/supported-sites",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": s.clock.Now().Sub(s.started).Seconds(),
	})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
