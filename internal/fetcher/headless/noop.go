package headless

import (
	"context"
	"errors"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

// ErrDisabled is returned by the Noop fetcher for every request.
var ErrDisabled = errors.New("headless fetching disabled")

// Noop is the page fetcher used when headless rendering is turned off.
// Promotions fail fast instead of silently degrading to the probe body.
type Noop struct{}

// FetchPage always returns ErrDisabled.
func (Noop) FetchPage(context.Context, string) (scraper.FetchResponse, error) {
	return scraper.FetchResponse{}, ErrDisabled
}
