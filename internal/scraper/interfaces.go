package scraper

import (
	"context"
	"time"
)

// Fetcher retrieves and extracts a single job page. Implementations must
// report ordinary failures inside the ExtractionResult; the error return
// is for exceptional conditions only (the handler converts those into
// failed results). Retry policy, if any, lives inside the Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string, bypassCache bool) (ExtractionResult, error)
}

// PageFetcher retrieves the raw HTML for a URL without extracting it.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (FetchResponse, error)
}

// HeadlessDetector decides whether a probe response warrants a headless
// re-fetch.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task and batch IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
