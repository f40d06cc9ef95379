// Package ratelimit provides a sliding-window request limiter.
//
// The window tracks the timestamps of recent admissions and refuses new
// ones once maxRequests have been admitted inside the trailing window.
// All checks and mutations happen under one lock, so TryAdmit is safe to
// race from many workers without over-admitting.
package ratelimit

import (
	"sync"
	"time"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

// SlidingWindow limits admissions to maxRequests per trailing window.
type SlidingWindow struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	clock       scraper.Clock
	admitted    []time.Time
}

// Stats is a point-in-time view of the limiter, suitable for JSON responses.
type Stats struct {
	MaxRequests   int     `json:"max_requests"`
	WindowSeconds float64 `json:"window_seconds"`
	CurrentCount  int     `json:"current_count"`
	Utilization   float64 `json:"utilization"`
	CanAdmitNow   bool    `json:"can_admit_now"`
	WaitSeconds   float64 `json:"wait_seconds"`
}

// NewSlidingWindow builds a limiter admitting maxRequests per window.
// A maxRequests <= 0 disables limiting entirely.
func NewSlidingWindow(maxRequests int, window time.Duration, clock scraper.Clock) *SlidingWindow {
	return &SlidingWindow{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		admitted:    make([]time.Time, 0, max(maxRequests, 0)),
	}
}

// prune drops timestamps that have slid out of the window. Caller holds mu.
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.admitted) && !w.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[i:]...)
	}
}

// CanAdmit reports whether a request would currently be admitted. It does
// not reserve a slot; use TryAdmit when the answer must stay true through
// the subsequent admission.
func (w *SlidingWindow) CanAdmit() bool {
	if w.maxRequests <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return len(w.admitted) < w.maxRequests
}

// TryAdmit atomically checks capacity and, when available, records the
// admission. Returns false without side effects when the window is full.
func (w *SlidingWindow) TryAdmit() bool {
	if w.maxRequests <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	w.prune(now)
	if len(w.admitted) >= w.maxRequests {
		return false
	}
	w.admitted = append(w.admitted, now)
	return true
}

// Record unconditionally notes an admission, for callers that gained
// capacity through some path other than TryAdmit.
func (w *SlidingWindow) Record() {
	if w.maxRequests <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	w.prune(now)
	w.admitted = append(w.admitted, now)
}

// TimeUntilAdmit returns how long until the next admission could succeed:
// zero when capacity exists now, otherwise the remaining lifetime of the
// oldest in-window admission. Other workers may claim the freed slot first,
// so callers should loop on TryAdmit rather than trust a single wait.
func (w *SlidingWindow) TimeUntilAdmit() time.Duration {
	if w.maxRequests <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	w.prune(now)
	if len(w.admitted) < w.maxRequests {
		return 0
	}
	oldest := w.admitted[0]
	wait := oldest.Add(w.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Snapshot returns current limiter statistics.
func (w *SlidingWindow) Snapshot() Stats {
	s := Stats{
		MaxRequests:   w.maxRequests,
		WindowSeconds: w.window.Seconds(),
		CanAdmitNow:   true,
	}
	if w.maxRequests <= 0 {
		return s
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	w.prune(now)
	s.CurrentCount = len(w.admitted)
	s.Utilization = float64(len(w.admitted)) / float64(w.maxRequests)
	if len(w.admitted) >= w.maxRequests {
		s.CanAdmitNow = false
		if wait := w.admitted[0].Add(w.window).Sub(now); wait > 0 {
			s.WaitSeconds = wait.Seconds()
		}
	}
	return s
}
