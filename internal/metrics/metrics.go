// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeRequestsTotal        *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	cacheHitsTotal             prometheus.Counter
	cacheEvictionsTotal        prometheus.Counter
	rateLimitDelaySeconds      prometheus.Histogram
	activeWorkers              prometheus.Gauge
	queueDepth                 prometheus.Gauge
	batchesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_requests_total",
				Help: "Total number of scrape tasks processed, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_task_duration_seconds",
				Help:    "Histogram of per-task processing times, labeled by platform.",
				Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform"},
		)

		cacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_cache_hits_total",
				Help: "Total number of tasks served from the result cache.",
			},
		)

		cacheEvictionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_cache_evictions_total",
				Help: "Total number of cache entries evicted at capacity.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Histogram of admission wait durations imposed by the rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_queue_depth",
				Help: "Number of tasks waiting in the work queue.",
			},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_batches_total",
				Help: "Total number of batches submitted, labeled by mode.",
			},
			[]string{"mode"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizePlatform lowercases a platform label, mapping empty to "unknown".
func SanitizePlatform(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return "unknown"
	}
	return platform
}

// SanitizeSite extracts a lowercase hostname from a URL for labels.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask records the outcome and duration of one scrape task.
func ObserveTask(platform string, outcome string, duration time.Duration) {
	Init()
	p := SanitizePlatform(platform)
	scrapeRequestsTotal.WithLabelValues(p, outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(p).Observe(duration.Seconds())
}

// ObserveCacheHit increments the cache hit counter.
func ObserveCacheHit() {
	Init()
	cacheHitsTotal.Inc()
}

// ObserveCacheEviction increments the cache eviction counter.
func ObserveCacheEviction() {
	Init()
	cacheEvictionsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of an admission wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// SetQueueDepth records the current work queue depth.
func SetQueueDepth(depth int) {
	Init()
	queueDepth.Set(float64(depth))
}

// ObserveBatch increments the batch counter for the given mode.
func ObserveBatch(mode string) {
	Init()
	batchesTotal.WithLabelValues(mode).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
