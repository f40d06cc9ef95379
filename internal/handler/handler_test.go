package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhatretamish/linkedin/internal/cache"
	"github.com/mhatretamish/linkedin/internal/clock/system"
	"github.com/mhatretamish/linkedin/internal/id/uuid"
	"github.com/mhatretamish/linkedin/internal/ratelimit"
	"github.com/mhatretamish/linkedin/internal/scraper"
)

// stubFetcher counts calls, tracks peak concurrency, and fails URLs on
// demand. A non-nil gate blocks every fetch until the channel is closed.
type stubFetcher struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	gate        chan struct{}
	failSubstr  string
	errSubstr   string
	delay       time.Duration
	onFetch     func()
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, bypassCache bool) (scraper.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return scraper.ExtractionResult{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return scraper.ExtractionResult{}, ctx.Err()
		}
	}
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.errSubstr != "" && strings.Contains(url, f.errSubstr) {
		return scraper.ExtractionResult{}, errors.New("connection refused")
	}
	if f.failSubstr != "" && strings.Contains(url, f.failSubstr) {
		return scraper.ExtractionResult{Success: false, URL: url, Error: "job posting not found"}, nil
	}
	return scraper.ExtractionResult{
		Success:  true,
		Platform: scraper.DetectPlatform(url),
		URL:      url,
		Content:  &scraper.JobPosting{Title: "Engineer", Company: "Acme"},
	}, nil
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubFetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testDeps struct {
	fetcher *stubFetcher
	cache   *cache.Cache
	limiter *ratelimit.SlidingWindow
}

func newTestHandler(t *testing.T, cfg Config, mut func(*testDeps)) (*Handler, *stubFetcher) {
	t.Helper()
	clk := system.New()
	d := testDeps{
		fetcher: &stubFetcher{},
		cache:   cache.New(100, time.Hour, clk),
		limiter: ratelimit.NewSlidingWindow(1000, time.Minute, clk),
	}
	if mut != nil {
		mut(&d)
	}
	h := New(cfg, Deps{
		Fetcher: d.fetcher,
		Cache:   d.cache,
		Limiter: d.limiter,
		Clock:   clk,
		IDGen:   uuid.New(),
	})
	t.Cleanup(func() {
		_ = h.Shutdown(context.Background(), false)
	})
	return h, d.fetcher
}

func jobURL(i int) string {
	return fmt.Sprintf("https://www.linkedin.com/jobs/view/400000%04d", i)
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 10}, nil)
	task := scraper.Task{ID: "t1", URL: jobURL(1)}

	r, err := h.Process(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.False(t, r.Cached)
	assert.Equal(t, "t1", r.TaskID)
	require.NotNil(t, r.Data)
	assert.Equal(t, "Engineer", r.Data.Content.Title)
}

func TestProcessCacheShortCircuit(t *testing.T) {
	t.Parallel()

	var limiter *ratelimit.SlidingWindow
	h, fetcher := newTestHandler(t, Config{Workers: 2, QueueSize: 10}, func(d *testDeps) {
		limiter = d.limiter
	})
	task := scraper.Task{ID: "t1", URL: jobURL(2)}

	first, err := h.Process(context.Background(), task)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := h.Process(context.Background(), scraper.Task{ID: "t2", URL: jobURL(2)})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.GreaterOrEqual(t, second.CacheAge, time.Duration(0))

	// The cached hit consumed no second fetch and no rate-limit slot.
	assert.Equal(t, 1, fetcher.Calls())
	assert.Equal(t, 1, limiter.Snapshot().CurrentCount)
}

func TestProcessBypassCacheRefetches(t *testing.T) {
	t.Parallel()

	h, fetcher := newTestHandler(t, Config{Workers: 2, QueueSize: 10}, nil)
	url := jobURL(3)

	_, err := h.Process(context.Background(), scraper.Task{ID: "t1", URL: url})
	require.NoError(t, err)

	r, err := h.Process(context.Background(), scraper.Task{ID: "t2", URL: url, BypassCache: true})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.False(t, r.Cached)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestFailuresAreNotCached(t *testing.T) {
	t.Parallel()

	h, fetcher := newTestHandler(t, Config{Workers: 1, QueueSize: 10}, func(d *testDeps) {
		d.fetcher.failSubstr = "jobs"
	})
	url := jobURL(4)

	for i := 0; i < 2; i++ {
		r, err := h.Process(context.Background(), scraper.Task{ID: "t", URL: url})
		require.NoError(t, err)
		assert.False(t, r.Success)
		assert.False(t, r.Cached)
	}
	assert.Equal(t, 2, fetcher.Calls())
}

func TestProcessQueueFull(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h, _ := newTestHandler(t, Config{Workers: 1, QueueSize: 1}, func(d *testDeps) {
		d.fetcher.gate = gate
	})
	defer close(gate)

	// First task occupies the lone worker, second fills the queue.
	res1 := make(chan scraper.Result, 1)
	require.NoError(t, h.submit(context.Background(), h.newTask(jobURL(10), false), res1))
	waitForQueue(t, h, 0) // worker picked up the first task
	res2 := make(chan scraper.Result, 1)
	require.NoError(t, h.submit(context.Background(), h.newTask(jobURL(11), false), res2))

	_, err := h.Process(context.Background(), scraper.Task{ID: "t3", URL: jobURL(12)})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func waitForQueue(t *testing.T, h *Handler, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.tasks) == depth {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached depth %d", depth)
}

func TestProcessBatchInputOrder(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 4, QueueSize: 20}, func(d *testDeps) {
		d.fetcher.failSubstr = "0002"
	})
	urls := []string{jobURL(1), jobURL(2), jobURL(3)}

	results := h.ProcessBatch(context.Background(), urls, BatchOptions{})
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "job posting not found", results[1].Error)
	assert.True(t, results[2].Success)
}

func TestProcessBatchBoundedConcurrency(t *testing.T) {
	t.Parallel()

	h, fetcher := newTestHandler(t, Config{Workers: 5, QueueSize: 40}, func(d *testDeps) {
		d.fetcher.delay = 20 * time.Millisecond
	})
	urls := make([]string, 20)
	for i := range urls {
		urls[i] = jobURL(i)
	}

	results := h.ProcessBatch(context.Background(), urls, BatchOptions{})
	require.Len(t, results, 20)
	for _, r := range results {
		assert.True(t, r.Success)
	}
	assert.LessOrEqual(t, fetcher.MaxInFlight(), 5)
	assert.Equal(t, 20, fetcher.Calls())
}

func TestProcessStreamCompletes(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 4, QueueSize: 20}, nil)

	urls := make(chan string)
	go func() {
		defer close(urls)
		for i := 0; i < 8; i++ {
			urls <- jobURL(i)
		}
	}()

	var got int
	for r := range h.ProcessStream(context.Background(), urls, StreamOptions{MaxConcurrent: 3}) {
		assert.True(t, r.Success)
		got++
	}
	assert.Equal(t, 8, got)
}

func TestProcessStreamStopOnError(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 20}, func(d *testDeps) {
		d.fetcher.failSubstr = "0001"
	})

	urls := make(chan string)
	go func() {
		defer close(urls)
		for i := 0; i < 5; i++ {
			select {
			case urls <- jobURL(i):
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()

	// MaxConcurrent 1 keeps completion order deterministic: the success
	// at index 0 arrives, then the failure at index 1 ends the stream.
	var results []scraper.Result
	for r := range h.ProcessStream(context.Background(), urls, StreamOptions{MaxConcurrent: 1, StopOnError: true}) {
		results = append(results, r)
	}
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestSubmitBatchAsync(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 20}, func(d *testDeps) {
		d.fetcher.failSubstr = "0001"
	})

	reports := make(chan BatchReport, 1)
	id, err := h.SubmitBatchAsync(context.Background(),
		[]string{jobURL(0), jobURL(1), jobURL(2)},
		BatchOptions{},
		func(r BatchReport) { reports <- r })
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case report := <-reports:
		assert.Equal(t, id, report.BatchID)
		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 2, report.Succeeded)
		assert.Equal(t, 1, report.Failed)
		require.Len(t, report.Results, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("async batch never reported")
	}
}

func TestStatisticsTracking(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 20}, func(d *testDeps) {
		d.fetcher.failSubstr = "0003"
	})

	urls := []string{jobURL(1), jobURL(2), jobURL(3)}
	h.ProcessBatch(context.Background(), urls, BatchOptions{})
	// Repeat one URL to register a cache hit.
	_, err := h.Process(context.Background(), scraper.Task{ID: "t", URL: jobURL(1)})
	require.NoError(t, err)

	s := h.Statistics()
	assert.Equal(t, uint64(4), s.TotalRequests)
	assert.Equal(t, uint64(3), s.Succeeded)
	assert.Equal(t, uint64(1), s.Failed)
	assert.Equal(t, uint64(1), s.CacheHits)
	assert.GreaterOrEqual(t, s.AverageProcessingSeconds, 0.0)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, 20, s.QueueCapacity)
	assert.Equal(t, 100, s.Cache.MaxSize)
}

func TestStatisticsAverageProcessingTime(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	durations := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	next := 0
	f := &stubFetcher{}
	f.onFetch = func() {
		clk.Advance(durations[next])
		next++
	}
	h := New(Config{Workers: 1, QueueSize: 4}, Deps{
		Fetcher: f,
		Clock:   clk,
		IDGen:   uuid.New(),
	})
	t.Cleanup(func() { _ = h.Shutdown(context.Background(), false) })

	for i := range durations {
		_, err := h.Process(context.Background(), scraper.Task{ID: "t", URL: jobURL(i + 1)})
		require.NoError(t, err)
	}

	// Mean of 1s, 2s and 3s measured on the injected clock.
	s := h.Statistics()
	assert.InDelta(t, 2.0, s.AverageProcessingSeconds, 1e-9)
}

func TestStatisticsActiveWorkers(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 10}, func(d *testDeps) {
		d.fetcher.gate = gate
	})

	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = h.Process(context.Background(), scraper.Task{ID: "t", URL: jobURL(n)})
		}(i)
	}

	require.Eventually(t, func() bool {
		return h.Statistics().ActiveWorkers == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
	wg.Wait()
	assert.Equal(t, 0, h.Statistics().ActiveWorkers)
}

func TestProcessMintsTaskID(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 1, QueueSize: 4}, nil)

	r, err := h.Process(context.Background(), scraper.Task{URL: jobURL(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, r.TaskID)
}

func TestCanceledTaskSkipsRateLimit(t *testing.T) {
	t.Parallel()

	h, f := newTestHandler(t, Config{Workers: 1, QueueSize: 4}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan scraper.Result, 1)
	require.NoError(t, h.submit(ctx, h.newTask(jobURL(1), false), out))

	r := <-out
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "canceled before dispatch")
	assert.Zero(t, f.Calls())
	assert.Zero(t, h.limiter.Snapshot().CurrentCount)
}

func TestShutdownIdempotent(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t, Config{Workers: 2, QueueSize: 10}, nil)

	require.NoError(t, h.Shutdown(context.Background(), true))
	require.NoError(t, h.Shutdown(context.Background(), true))

	_, err := h.Process(context.Background(), scraper.Task{ID: "t", URL: jobURL(1)})
	assert.ErrorIs(t, err, ErrShutdown)

	_, err = h.SubmitBatchAsync(context.Background(), []string{jobURL(1)}, BatchOptions{}, nil)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestShutdownDrainsQueuedWork(t *testing.T) {
	t.Parallel()

	h, fetcher := newTestHandler(t, Config{Workers: 1, QueueSize: 10}, nil)

	outs := make([]chan scraper.Result, 5)
	for i := range outs {
		outs[i] = make(chan scraper.Result, 1)
		require.NoError(t, h.submit(context.Background(), h.newTask(jobURL(i), false), outs[i]))
	}
	require.NoError(t, h.Shutdown(context.Background(), true))

	for _, out := range outs {
		select {
		case r := <-out:
			assert.True(t, r.Success)
		default:
			t.Fatal("queued task dropped during graceful shutdown")
		}
	}
	assert.Equal(t, 5, fetcher.Calls())
}
