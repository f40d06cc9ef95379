// Package fetcher assembles the full scrape pipeline: URL validation and
// normalization, an HTTP probe, heuristic promotion to a headless browser,
// and extraction of the final DOM into a job posting.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mhatretamish/linkedin/internal/extract"
	"github.com/mhatretamish/linkedin/internal/scraper"
)

// DefaultRetryDelays backs off between failed probe attempts.
var DefaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// RetrySchedule builds a doubling backoff of maxRetries delays starting at
// one second, so a configured retry count translates into a probe schedule.
// Zero or negative counts disable retries.
func RetrySchedule(maxRetries int) []time.Duration {
	if maxRetries <= 0 {
		return nil
	}
	delays := make([]time.Duration, maxRetries)
	d := time.Second
	for i := range delays {
		delays[i] = d
		d *= 2
	}
	return delays
}

// Pipeline implements scraper.Fetcher.
type Pipeline struct {
	probe       scraper.PageFetcher
	headless    scraper.PageFetcher
	detector    scraper.HeadlessDetector
	clock       scraper.Clock
	logger      *zap.Logger
	retryDelays []time.Duration
}

// Option mutates pipeline construction.
type Option func(*Pipeline)

// WithRetryDelays overrides the probe retry schedule. An empty slice
// disables retries.
func WithRetryDelays(delays []time.Duration) Option {
	return func(p *Pipeline) { p.retryDelays = delays }
}

// New builds a Pipeline. The headless fetcher may be a headless.Noop when
// rendering is disabled; promotion then fails over to the probe body.
func New(probe, headlessFetcher scraper.PageFetcher, det scraper.HeadlessDetector, clock scraper.Clock, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		probe:       probe,
		headless:    headlessFetcher,
		detector:    det,
		clock:       clock,
		logger:      logger,
		retryDelays: DefaultRetryDelays,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch runs the pipeline for one URL. Ordinary scrape failures (bad URL,
// blocked page, no posting in the DOM) are reported inside the result;
// the error return is reserved for context cancellation.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string, _ bool) (scraper.ExtractionResult, error) {
	res := scraper.ExtractionResult{
		Type:      "job_posting",
		URL:       rawURL,
		FetchedAt: p.clock.Now(),
	}

	if err := scraper.ValidateURL(rawURL); err != nil {
		res.Platform = scraper.DetectPlatform(rawURL)
		res.Error = err.Error()
		return res, nil
	}
	platform := scraper.DetectPlatform(rawURL)
	res.Platform = platform

	normalized := scraper.NormalizeURL(rawURL)
	if normalized != rawURL {
		res.OriginalURL = rawURL
		res.URL = normalized
	}

	page, attempts, err := p.fetchWithRetries(ctx, normalized)
	res.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("fetching %s: %w", normalized, ctx.Err())
		}
		res.Error = err.Error()
		return res, nil
	}

	if p.detector != nil && p.detector.ShouldPromote(page) {
		rendered, rerr := p.headless.FetchPage(ctx, normalized)
		switch {
		case rerr == nil:
			page = rendered
			res.Attempts++
		case ctx.Err() != nil:
			return res, fmt.Errorf("rendering %s: %w", normalized, ctx.Err())
		default:
			p.logger.Warn("headless promotion failed, using probe body",
				zap.String("url", normalized),
				zap.Error(rerr))
		}
	}

	res.StatusCode = page.StatusCode
	res.ResponseSize = len(page.Body)
	res.UsedHeadless = page.UsedHeadless

	if page.StatusCode != 200 {
		res.Error = fmt.Sprintf("unexpected status %d", page.StatusCode)
		return res, nil
	}

	posting, err := extract.Parse(platform, normalized, page.Body)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Content = posting
	res.Success = true
	return res, nil
}

// fetchWithRetries probes the URL, backing off between attempts on
// transport errors and 5xx answers. Anti-bot statuses are not retried
// here; the promotion heuristic deals with them.
func (p *Pipeline) fetchWithRetries(ctx context.Context, url string) (scraper.FetchResponse, int, error) {
	attempts := 0
	var lastErr error
	for i := 0; i <= len(p.retryDelays); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return scraper.FetchResponse{}, attempts, ctx.Err()
			case <-time.After(p.retryDelays[i-1]):
			}
		}
		attempts++
		page, err := p.probe.FetchPage(ctx, url)
		if err == nil && page.StatusCode < 500 {
			return page, attempts, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("server error %d", page.StatusCode)
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return scraper.FetchResponse{}, attempts, ctx.Err()
		}
		p.logger.Debug("probe attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempts),
			zap.Error(lastErr))
	}
	return scraper.FetchResponse{}, attempts, fmt.Errorf("fetching page after %d attempts: %w", attempts, lastErr)
}
