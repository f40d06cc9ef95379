package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mhatretamish/linkedin/internal/cache"
	"github.com/mhatretamish/linkedin/internal/handler"
	"github.com/mhatretamish/linkedin/internal/scraper"
	"github.com/mhatretamish/linkedin/internal/webhook"
)

const webhookDeliveryTimeout = 30 * time.Second

type scrapeRequest struct {
	URL         string `json:"url"`
	BypassCache bool   `json:"bypass_cache"`
}

type batchRequest struct {
	URLs        []string `json:"urls"`
	BypassCache bool     `json:"bypass_cache"`
	FailFast    bool     `json:"fail_fast"`
}

type asyncBatchRequest struct {
	batchRequest
	WebhookURL string `json:"webhook_url"`
}

type streamRequest struct {
	batchRequest
	MaxConcurrent int  `json:"max_concurrent"`
	StopOnError   bool `json:"stop_on_error"`
}

type invalidateRequest struct {
	URL string `json:"url"`
}

// resultDTO flattens scraper.Result for JSON, rendering durations in
// seconds the way the rest of the payload does.
type resultDTO struct {
	URL               string                    `json:"url"`
	Success           bool                      `json:"success"`
	Data              *scraper.ExtractionResult `json:"data,omitempty"`
	Error             string                    `json:"error,omitempty"`
	Cached            bool                      `json:"cached"`
	CacheAgeSeconds   float64                   `json:"cache_age_seconds,omitempty"`
	ProcessingSeconds float64                   `json:"processing_seconds"`
	TaskID            string                    `json:"task_id,omitempty"`
}

func toDTO(r scraper.Result) resultDTO {
	return resultDTO{
		URL:               r.URL,
		Success:           r.Success,
		Data:              r.Data,
		Error:             r.Error,
		Cached:            r.Cached,
		CacheAgeSeconds:   r.CacheAgeSeconds(),
		ProcessingSeconds: r.ProcessingSeconds(),
		TaskID:            r.TaskID,
	}
}

func toDTOs(results []scraper.Result) []resultDTO {
	out := make([]resultDTO, len(results))
	for i, r := range results {
		out[i] = toDTO(r)
	}
	return out
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := scraper.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := scraper.Task{URL: req.URL, BypassCache: req.BypassCache, CreatedAt: s.clock.Now()}
	result, err := s.handler.Process(r.Context(), task)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(result))
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validateBatch(req.URLs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := s.handler.ProcessBatch(r.Context(), req.URLs, handler.BatchOptions{
		BypassCache: req.BypassCache,
		FailFast:    req.FailFast,
	})
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   toDTOs(results),
	})
}

func (s *Server) batchAsync(w http.ResponseWriter, r *http.Request) {
	var req asyncBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validateBatch(req.URLs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WebhookURL != "" {
		if err := webhook.ValidateURL(req.WebhookURL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var notify func(handler.BatchReport)
	if req.WebhookURL != "" {
		target := req.WebhookURL
		notify = func(report handler.BatchReport) {
			ctx, cancel := context.WithTimeout(context.Background(), webhookDeliveryTimeout)
			defer cancel()
			if err := s.notifier.Notify(ctx, target, report); err != nil {
				s.logger.Error("webhook delivery failed",
					zap.String("batch_id", report.BatchID),
					zap.String("target", target),
					zap.Error(err))
			}
		}
	}

	// The batch outlives this request, so it runs on the base context.
	id, err := s.handler.SubmitBatchAsync(context.Background(), req.URLs, handler.BatchOptions{
		BypassCache: req.BypassCache,
		FailFast:    req.FailFast,
	}, notify)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": id,
		"total":    len(req.URLs),
		"status":   "accepted",
	})
}

func (s *Server) batchStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validateBatch(req.URLs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	urls := make(chan string)
	go func() {
		defer close(urls)
		for _, u := range req.URLs {
			select {
			case urls <- u:
			case <-r.Context().Done():
				return
			}
		}
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for result := range s.handler.ProcessStream(r.Context(), urls, handler.StreamOptions{
		MaxConcurrent: req.MaxConcurrent,
		StopOnError:   req.StopOnError,
		BypassCache:   req.BypassCache,
	}) {
		if err := enc.Encode(toDTO(result)); err != nil {
			s.logger.Warn("stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.handler.Statistics())
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) cacheItems(w http.ResponseWriter, _ *http.Request) {
	entries := s.cache.Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"items": entries,
	})
}

func (s *Server) cacheClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.cache.Clear()})
}

func (s *Server) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	removed := s.cache.Invalidate(cache.Key(req.URL, nil))
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated": removed})
}

func (s *Server) configInfo(w http.ResponseWriter, _ *http.Request) {
	// Operational settings only; credentials never leave the process.
	writeJSON(w, http.StatusOK, map[string]any{
		"max_workers":          s.cfg.Scraper.MaxWorkers,
		"max_queue_size":       s.cfg.Scraper.MaxQueueSize,
		"rate_limit":           s.cfg.Scraper.RateLimit,
		"rate_window_seconds":  s.cfg.Scraper.RateWindowSeconds,
		"task_timeout_seconds": s.cfg.Scraper.TaskTimeoutSeconds,
		"batch_max_size":       s.cfg.Scraper.BatchMaxSize,
		"cache_max_size":       s.cfg.Cache.MaxSize,
		"cache_ttl_seconds":    s.cfg.Cache.TTLSeconds,
		"headless_enabled":     s.cfg.Headless.Enabled,
	})
}

func (s *Server) supportedSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": scraper.Supported(),
		"examples": map[string]string{
			string(scraper.PlatformLinkedIn):    "https://www.linkedin.com/jobs/view/4001234567",
			string(scraper.PlatformIndeed):      "https://www.indeed.com/viewjob?jk=abcdef123456",
			string(scraper.PlatformInternshala): "https://internshala.com/internship/detail/web-development-internship",
		},
	})
}

func (s *Server) validateBatch(urls []string) error {
	if len(urls) == 0 {
		return errors.New("urls required")
	}
	maxSize := s.cfg.Scraper.BatchMaxSize
	if maxSize > 0 && len(urls) > maxSize {
		return fmt.Errorf("batch size %d exceeds maximum %d", len(urls), maxSize)
	}
	for _, u := range urls {
		if err := scraper.ValidateURL(u); err != nil {
			return fmt.Errorf("invalid url %q: %w", u, err)
		}
	}
	return nil
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, handler.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "task queue full, retry later")
	case errors.Is(err, handler.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, "service shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "scrape timed out")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
