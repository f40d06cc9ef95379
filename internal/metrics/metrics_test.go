package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://linkedin.com/jobs/view/1", "linkedin.com"},
		{"standard https", "https://Indeed.com/viewjob", "indeed.com"},
		{"no scheme", "internshala.com/job/detail/x", "internshala.com"},
		{"just host", "linkedin.com", "linkedin.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSanitizePlatform(t *testing.T) {
	if got := SanitizePlatform("  LinkedIn "); got != "linkedin" {
		t.Errorf("SanitizePlatform() = %q; want linkedin", got)
	}
	if got := SanitizePlatform(""); got != "unknown" {
		t.Errorf("SanitizePlatform(\"\") = %q; want unknown", got)
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapeRequestsTotal == nil || cacheHitsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveTask("linkedin", "success", 120*time.Millisecond)
	if val := testutil.ToFloat64(scrapeRequestsTotal.WithLabelValues("linkedin", "success")); val != 1 {
		t.Errorf("expected scrapeRequestsTotal to be 1, got %f", val)
	}

	before := testutil.ToFloat64(cacheHitsTotal)
	ObserveCacheHit()
	if got := testutil.ToFloat64(cacheHitsTotal); got != before+1 {
		t.Errorf("expected cacheHitsTotal to increment, got %f", got)
	}

	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != 0 {
		t.Errorf("expected activeWorkers to return to 0, got %f", got)
	}
}
