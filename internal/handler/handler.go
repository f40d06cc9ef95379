// Package handler coordinates concurrent scrape execution: a fixed worker
// pool drains a bounded queue, consults the result cache before spending a
// rate-limit slot, and funnels every outcome through shared statistics.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mhatretamish/linkedin/internal/cache"
	"github.com/mhatretamish/linkedin/internal/metrics"
	"github.com/mhatretamish/linkedin/internal/ratelimit"
	"github.com/mhatretamish/linkedin/internal/scraper"
)

var (
	// ErrQueueFull is returned by submissions when the task queue is at
	// capacity. Callers translate this into backpressure, not retries.
	ErrQueueFull = errors.New("handler: task queue full")

	// ErrShutdown is returned by submissions after Shutdown has begun.
	ErrShutdown = errors.New("handler: shutting down")
)

// Config sizes the worker pool and bounds task execution.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Deps carries the handler's collaborators. All fields are required except
// Logger, which defaults to a no-op logger.
type Deps struct {
	Fetcher scraper.Fetcher
	Cache   *cache.Cache
	Limiter *ratelimit.SlidingWindow
	Clock   scraper.Clock
	IDGen   scraper.IDGenerator
	Logger  *zap.Logger
}

// BatchOptions tunes a batch run.
type BatchOptions struct {
	BypassCache bool
	FailFast    bool
}

// StreamOptions tunes a streaming run.
type StreamOptions struct {
	MaxConcurrent int
	StopOnError   bool
	BypassCache   bool
}

// BatchReport summarizes a finished asynchronous batch.
type BatchReport struct {
	BatchID   string           `json:"batch_id"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []scraper.Result `json:"results"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// Statistics is a point-in-time view of the handler and its collaborators.
type Statistics struct {
	TotalRequests            uint64          `json:"total_requests"`
	Succeeded                uint64          `json:"succeeded"`
	Failed                   uint64          `json:"failed"`
	CacheHits                uint64          `json:"cache_hits"`
	RateLimitWaits           uint64          `json:"rate_limit_waits"`
	AverageProcessingSeconds float64         `json:"average_processing_seconds"`
	Workers                  int             `json:"workers"`
	ActiveWorkers            int             `json:"active_workers"`
	QueueDepth               int             `json:"queue_depth"`
	QueueCapacity            int             `json:"queue_capacity"`
	RateLimiter              ratelimit.Stats `json:"rate_limiter"`
	Cache                    cache.Stats     `json:"cache"`
}

// job pairs a task with the channel its result is delivered on. The out
// channel must have capacity for one result so workers never block on it.
type job struct {
	ctx  context.Context
	task scraper.Task
	out  chan<- scraper.Result
}

// Handler owns the worker pool. Create with New, stop with Shutdown.
type Handler struct {
	cfg     Config
	fetcher scraper.Fetcher
	cache   *cache.Cache
	limiter *ratelimit.SlidingWindow
	clock   scraper.Clock
	idgen   scraper.IDGenerator
	logger  *zap.Logger

	mu     sync.RWMutex // guards closed vs. sends on tasks
	closed bool
	tasks  chan job
	quit   chan struct{}
	quitCl sync.Once

	workers sync.WaitGroup
	async   sync.WaitGroup
	active  atomic.Int64

	statsMu sync.Mutex
	stats   counters
}

type counters struct {
	total          uint64
	succeeded      uint64
	failed         uint64
	cacheHits      uint64
	rateLimitWaits uint64
	avgSeconds     float64
}

// New builds a handler and starts its workers.
func New(cfg Config, deps Deps) *Handler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		cfg:     cfg,
		fetcher: deps.Fetcher,
		cache:   deps.Cache,
		limiter: deps.Limiter,
		clock:   deps.Clock,
		idgen:   deps.IDGen,
		logger:  logger,
		tasks:   make(chan job, cfg.QueueSize),
		quit:    make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		h.workers.Add(1)
		go h.worker()
	}
	return h
}

// Process runs one task to completion and returns its result. It fails
// fast with ErrQueueFull or ErrShutdown when the task cannot be enqueued.
func (h *Handler) Process(ctx context.Context, task scraper.Task) (scraper.Result, error) {
	if task.ID == "" {
		task.ID = h.mintID(task.URL)
	}
	out := make(chan scraper.Result, 1)
	if err := h.submit(ctx, task, out); err != nil {
		return scraper.Result{}, err
	}
	select {
	case r := <-out:
		return r, nil
	case <-ctx.Done():
		return scraper.Result{}, ctx.Err()
	}
}

// ProcessBatch runs all URLs concurrently through the pool and returns one
// result per URL, in input order. A URL that cannot be enqueued yields a
// failed result in its slot rather than aborting the batch. With FailFast
// set, the first failed result cancels the remainder.
func (h *Handler) ProcessBatch(ctx context.Context, urls []string, opts BatchOptions) []scraper.Result {
	results := make([]scraper.Result, len(urls))
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, u := range urls {
		task := h.newTask(u, opts.BypassCache)
		if bctx.Err() != nil {
			results[i] = h.failedResult(task, bctx.Err())
			continue
		}
		out := make(chan scraper.Result, 1)
		if err := h.submit(bctx, task, out); err != nil {
			results[i] = h.failedResult(task, err)
			if opts.FailFast {
				cancel()
			}
			continue
		}
		wg.Add(1)
		go func(i int, task scraper.Task) {
			defer wg.Done()
			select {
			case r := <-out:
				results[i] = r
				if opts.FailFast && !r.Success {
					cancel()
				}
			case <-bctx.Done():
				results[i] = h.failedResult(task, bctx.Err())
			}
		}(i, task)
	}
	wg.Wait()
	metrics.ObserveBatch("sync")
	return results
}

// ProcessStream consumes URLs from a channel and emits results as tasks
// finish, keeping at most opts.MaxConcurrent tasks in flight. Result order
// follows completion, not input. The returned channel closes once the
// source is drained and all in-flight work has completed, or earlier on
// context cancellation or a StopOnError failure.
func (h *Handler) ProcessStream(ctx context.Context, urls <-chan string, opts StreamOptions) <-chan scraper.Result {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = h.cfg.Workers
	}
	out := make(chan scraper.Result)

	go func() {
		defer close(out)
		defer metrics.ObserveBatch("stream")

		// comp is sized so workers can deliver without blocking even
		// when the consumer is slow to drain out.
		comp := make(chan scraper.Result, maxConcurrent)
		pending := 0
		srcOpen := true

		for srcOpen || pending > 0 {
			var src <-chan string
			if srcOpen && pending < maxConcurrent {
				src = urls
			}
			select {
			case <-ctx.Done():
				return
			case u, ok := <-src:
				if !ok {
					srcOpen = false
					continue
				}
				task := h.newTask(u, opts.BypassCache)
				if err := h.submit(ctx, task, comp); err != nil {
					r := h.failedResult(task, err)
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
					if opts.StopOnError {
						return
					}
					continue
				}
				pending++
			case r := <-comp:
				pending--
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
				if opts.StopOnError && !r.Success {
					return
				}
			}
		}
	}()
	return out
}

// SubmitBatchAsync starts a batch in the background and returns its id
// immediately. The notify callback, when non-nil, receives the report once
// the batch finishes; it runs on the batch goroutine and may safely call
// Shutdown.
func (h *Handler) SubmitBatchAsync(ctx context.Context, urls []string, opts BatchOptions, notify func(BatchReport)) (string, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return "", ErrShutdown
	}

	id, err := h.idgen.NewID()
	if err != nil {
		return "", fmt.Errorf("generating batch id: %w", err)
	}

	h.async.Add(1)
	go func() {
		defer h.async.Done()
		start := h.clock.Now()
		results := h.ProcessBatch(ctx, urls, opts)

		report := BatchReport{
			BatchID:   id,
			Total:     len(results),
			Results:   results,
			StartedAt: start,
			Duration:  h.clock.Now().Sub(start),
		}
		for _, r := range results {
			if r.Success {
				report.Succeeded++
			} else {
				report.Failed++
			}
		}
		metrics.ObserveBatch("async")
		h.logger.Info("async batch finished",
			zap.String("batch_id", id),
			zap.Int("total", report.Total),
			zap.Int("failed", report.Failed),
			zap.Duration("duration", report.Duration))
		if notify != nil {
			notify(report)
		}
	}()
	return id, nil
}

// Statistics returns current counters plus snapshots of the limiter and
// cache.
func (h *Handler) Statistics() Statistics {
	h.statsMu.Lock()
	c := h.stats
	h.statsMu.Unlock()

	s := Statistics{
		TotalRequests:            c.total,
		Succeeded:                c.succeeded,
		Failed:                   c.failed,
		CacheHits:                c.cacheHits,
		RateLimitWaits:           c.rateLimitWaits,
		AverageProcessingSeconds: c.avgSeconds,
		Workers:                  h.cfg.Workers,
		ActiveWorkers:            int(h.active.Load()),
		QueueDepth:               len(h.tasks),
		QueueCapacity:            h.cfg.QueueSize,
	}
	if h.limiter != nil {
		s.RateLimiter = h.limiter.Snapshot()
	}
	if h.cache != nil {
		s.Cache = h.cache.Stats()
	}
	return s
}

// Shutdown stops accepting work. With wait set it blocks until queued
// tasks have drained or ctx expires; otherwise workers abandon the queue.
// Async batch goroutines are not waited on, so completion callbacks may
// call Shutdown without deadlocking. Subsequent calls are no-ops.
func (h *Handler) Shutdown(ctx context.Context, wait bool) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.tasks)
	h.mu.Unlock()

	if !wait {
		h.quitCl.Do(func() { close(h.quit) })
		return nil
	}

	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info("handler drained")
		return nil
	case <-ctx.Done():
		h.quitCl.Do(func() { close(h.quit) })
		return fmt.Errorf("draining task queue: %w", ctx.Err())
	}
}

func (h *Handler) newTask(url string, bypass bool) scraper.Task {
	return scraper.Task{
		ID:          h.mintID(url),
		URL:         url,
		BypassCache: bypass,
		CreatedAt:   h.clock.Now(),
	}
}

// mintID falls back to the URL itself if the generator fails.
func (h *Handler) mintID(url string) string {
	id, err := h.idgen.NewID()
	if err != nil {
		return url
	}
	return id
}

// submit enqueues without blocking. The out channel must be buffered.
func (h *Handler) submit(ctx context.Context, task scraper.Task, out chan<- scraper.Result) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrShutdown
	}
	select {
	case h.tasks <- job{ctx: ctx, task: task, out: out}:
		metrics.SetQueueDepth(len(h.tasks))
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *Handler) worker() {
	defer h.workers.Done()
	for {
		select {
		case <-h.quit:
			return
		case j, ok := <-h.tasks:
			if !ok {
				return
			}
			metrics.SetQueueDepth(len(h.tasks))
			h.active.Add(1)
			metrics.IncActiveWorkers()
			r := h.run(j)
			metrics.DecActiveWorkers()
			h.active.Add(-1)
			j.out <- r
		}
	}
}

// run executes one task end to end. Panics from the fetcher are confined
// to the task and surface as a failed result.
func (h *Handler) run(j job) (res scraper.Result) {
	start := h.clock.Now()
	task := j.task
	res = scraper.Result{URL: task.URL, TaskID: task.ID}

	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("task panicked",
				zap.String("task_id", task.ID),
				zap.String("url", task.URL),
				zap.Any("panic", p))
			res = h.failedResult(task, fmt.Errorf("task panicked: %v", p))
		}
		res.ProcessingTime = h.clock.Now().Sub(start)
		h.recordOutcome(res)
	}()

	ctx, cancel := context.WithTimeout(j.ctx, h.cfg.TaskTimeout)
	defer cancel()

	key := cache.Key(task.URL, nil)
	if h.cache != nil && !task.BypassCache {
		if data, storedAt, ok := h.cache.Get(key); ok {
			metrics.ObserveCacheHit()
			res.Success = true
			res.Cached = true
			res.CacheAge = h.clock.Now().Sub(storedAt)
			res.Data = data
			return res
		}
	}

	// A dead context (canceled batch, expired deadline) must not consume
	// a rate-limit slot for work that will never dispatch.
	if err := ctx.Err(); err != nil {
		res.Error = fmt.Errorf("task canceled before dispatch: %w", err).Error()
		return res
	}

	if err := h.admit(ctx); err != nil {
		res.Error = err.Error()
		return res
	}

	data, err := h.fetcher.Fetch(ctx, task.URL, task.BypassCache)
	if err != nil {
		h.logger.Warn("fetch failed",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
			zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Data = &data
	res.Success = data.Success
	res.Error = data.Error

	if res.Success && h.cache != nil {
		h.cache.Set(key, &data)
	}
	return res
}

// admit blocks until the rate limiter grants a slot or ctx expires. Waits
// loop because a freed slot may be claimed by another worker first.
func (h *Handler) admit(ctx context.Context) error {
	if h.limiter == nil {
		return nil
	}
	waited := false
	for !h.limiter.TryAdmit() {
		wait := h.limiter.TimeUntilAdmit()
		if wait <= 0 {
			continue
		}
		if !waited {
			waited = true
			h.statsMu.Lock()
			h.stats.rateLimitWaits++
			h.statsMu.Unlock()
		}
		metrics.ObserveRateLimitDelay(wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for rate limit: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil
}

func (h *Handler) failedResult(task scraper.Task, err error) scraper.Result {
	return scraper.Result{
		URL:    task.URL,
		TaskID: task.ID,
		Error:  err.Error(),
	}
}

func (h *Handler) recordOutcome(r scraper.Result) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats.total++
	if r.Success {
		h.stats.succeeded++
	} else {
		h.stats.failed++
	}
	if r.Cached {
		h.stats.cacheHits++
	}
	n := float64(h.stats.total)
	h.stats.avgSeconds = (h.stats.avgSeconds*(n-1) + r.ProcessingTime.Seconds()) / n

	platform := metrics.SanitizePlatform(string(scraper.DetectPlatform(r.URL)))
	outcome := "error"
	switch {
	case r.Cached:
		outcome = "cached"
	case r.Success:
		outcome = "ok"
	}
	metrics.ObserveTask(platform, outcome, r.ProcessingTime)
}
