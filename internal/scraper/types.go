// Package scraper defines core types shared across subsystems.
package scraper

import "time"

// Task is one unit of work submitted to the handler. It is consumed
// exactly once by a worker and never mutated after creation.
type Task struct {
	ID          string    `json:"task_id"`
	URL         string    `json:"url"`
	BypassCache bool      `json:"bypass_cache"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

// Result is produced exactly once per submitted Task and is immutable
// once constructed. Failures are carried in Error rather than raised.
type Result struct {
	URL            string            `json:"url"`
	Success        bool              `json:"success"`
	Data           *ExtractionResult `json:"data,omitempty"`
	Error          string            `json:"error,omitempty"`
	Cached         bool              `json:"cached"`
	CacheAge       time.Duration     `json:"-"`
	ProcessingTime time.Duration     `json:"-"`
	TaskID         string            `json:"task_id,omitempty"`
}

// CacheAgeSeconds reports the cache entry age for API payloads.
func (r Result) CacheAgeSeconds() float64 {
	return r.CacheAge.Seconds()
}

// ProcessingSeconds reports per-task wall time for API payloads.
func (r Result) ProcessingSeconds() float64 {
	return r.ProcessingTime.Seconds()
}

// ExtractionResult is the payload returned by a Fetcher for one URL.
// Ordinary failures (HTTP errors, empty extraction) are reported via
// Success=false and Error; the Fetcher's error return is reserved for
// exceptional conditions.
type ExtractionResult struct {
	Success        bool        `json:"success"`
	Type           string      `json:"type"`
	Platform       Platform    `json:"platform"`
	URL            string      `json:"url"`
	OriginalURL    string      `json:"original_url,omitempty"`
	Content        *JobPosting `json:"content,omitempty"`
	Error          string      `json:"error,omitempty"`
	StatusCode     int         `json:"status_code,omitempty"`
	ResponseSize   int         `json:"response_size,omitempty"`
	UsedHeadless   bool        `json:"used_headless,omitempty"`
	Attempts       int         `json:"attempts,omitempty"`
	FetchedAt      time.Time   `json:"timestamp"`
	ProcessingTime time.Duration `json:"-"`
}

// JobPosting holds the structured content extracted from a job page.
type JobPosting struct {
	Title          string            `json:"title,omitempty"`
	Company        string            `json:"company,omitempty"`
	Location       string            `json:"location,omitempty"`
	Description    string            `json:"description,omitempty"`
	EmploymentType string            `json:"employment_type,omitempty"`
	Salary         string            `json:"salary,omitempty"`
	PostedAt       string            `json:"posted_at,omitempty"`
	ApplyURL       string            `json:"apply_url,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Empty reports whether extraction produced no usable content.
func (p *JobPosting) Empty() bool {
	if p == nil {
		return true
	}
	return p.Title == "" && p.Description == ""
}

// FetchResponse is the raw page returned by a page fetcher before
// extraction.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
