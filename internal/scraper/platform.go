package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies a supported job site. URLs resolve to a Platform
// once, via DetectPlatform, and dispatch through that tag from then on.
type Platform string

// Supported platforms.
const (
	PlatformLinkedIn    Platform = "linkedin"
	PlatformIndeed      Platform = "indeed"
	PlatformInternshala Platform = "internshala"
	PlatformUnknown     Platform = "unknown"
)

// Supported returns the platforms the service can extract.
func Supported() []Platform {
	return []Platform{PlatformLinkedIn, PlatformIndeed, PlatformInternshala}
}

// DetectPlatform maps a URL's host to a Platform. It is a pure function;
// unparseable URLs and unrecognized hosts map to PlatformUnknown.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com"):
		return PlatformLinkedIn
	case host == "indeed.com" || strings.HasSuffix(host, ".indeed.com"):
		return PlatformIndeed
	case host == "internshala.com" || strings.HasSuffix(host, ".internshala.com"):
		return PlatformInternshala
	default:
		return PlatformUnknown
	}
}

// ValidateURL checks that a URL parses and belongs to a supported
// platform. Validation failures surface synchronously to the caller.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if DetectPlatform(rawURL) == PlatformUnknown {
		return fmt.Errorf("unsupported job site %q", u.Hostname())
	}
	return nil
}

var (
	linkedinTitledJobPath = regexp.MustCompile(`/jobs/view/.*?-(\d{10,})(?:/.*)?$`)
	linkedinDirectJobPath = regexp.MustCompile(`/jobs/view/(\d{10,})(?:/.*)?$`)
	linkedinJobID         = regexp.MustCompile(`\d{10,}`)
)

// NormalizeURL collapses the many URL shapes a platform serves into one
// canonical form so equivalent pages share a cache key. Unknown platforms
// and URLs with no recognizable job ID pass through unchanged.
func NormalizeURL(rawURL string) string {
	switch DetectPlatform(rawURL) {
	case PlatformLinkedIn:
		return normalizeLinkedIn(rawURL)
	default:
		return rawURL
	}
}

// normalizeLinkedIn handles collection URLs (?currentJobId=N), search
// URLs, titled job paths (/jobs/view/title-at-company-N), direct paths
// (/jobs/view/N), regional domains, and tracking query parameters. All
// collapse to https://www.linkedin.com/jobs/view/<id>.
func normalizeLinkedIn(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if id := u.Query().Get("currentJobId"); id != "" {
		return "https://www.linkedin.com/jobs/view/" + id
	}
	if m := linkedinTitledJobPath.FindStringSubmatch(u.Path); m != nil {
		return "https://www.linkedin.com/jobs/view/" + m[1]
	}
	if m := linkedinDirectJobPath.FindStringSubmatch(u.Path); m != nil {
		return "https://www.linkedin.com/jobs/view/" + m[1]
	}
	// Last resort: the longest 10+ digit run anywhere in the URL is
	// almost certainly the job ID.
	if ids := linkedinJobID.FindAllString(rawURL, -1); len(ids) > 0 {
		longest := ids[0]
		for _, id := range ids[1:] {
			if len(id) > len(longest) {
				longest = id
			}
		}
		return "https://www.linkedin.com/jobs/view/" + longest
	}
	return rawURL
}
