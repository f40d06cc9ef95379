// Package extract turns fetched HTML into structured job postings. Every
// platform extractor first looks for schema.org JobPosting JSON-LD, which
// the boards embed for search engines, and falls back to CSS selectors
// against the rendered markup.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

// Parse extracts a job posting from the page body for the given platform.
// It returns an error when the body is not parseable HTML or when no
// posting data could be located at all.
func Parse(platform scraper.Platform, pageURL string, body []byte) (*scraper.JobPosting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	var posting *scraper.JobPosting
	switch platform {
	case scraper.PlatformLinkedIn:
		posting = parseLinkedIn(doc)
	case scraper.PlatformIndeed:
		posting = parseIndeed(doc)
	case scraper.PlatformInternshala:
		posting = parseInternshala(doc)
	default:
		posting = fromJSONLD(doc)
	}

	if posting == nil || posting.Empty() {
		return nil, fmt.Errorf("no job posting found at %s", pageURL)
	}
	return posting, nil
}

// jsonLDPosting mirrors the subset of schema.org JobPosting the boards
// actually populate.
type jsonLDPosting struct {
	Type               string `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	DatePosted         string `json:"datePosted"`
	EmploymentType     any    `json:"employmentType"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation []struct {
		Address struct {
			Locality string `json:"addressLocality"`
			Region   string `json:"addressRegion"`
			Country  string `json:"addressCountry"`
		} `json:"address"`
	} `json:"jobLocation"`
	BaseSalary struct {
		Currency string `json:"currency"`
		Value    struct {
			MinValue float64 `json:"minValue"`
			MaxValue float64 `json:"maxValue"`
			UnitText string `json:"unitText"`
		} `json:"value"`
	} `json:"baseSalary"`
	Skills any `json:"skills"`
}

// fromJSONLD scans ld+json blocks for a JobPosting node. Boards sometimes
// wrap the node in a @graph array; both shapes are handled.
func fromJSONLD(doc *goquery.Document) *scraper.JobPosting {
	var posting *scraper.JobPosting
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		for _, node := range ldNodes(raw) {
			if !strings.EqualFold(node.Type, "JobPosting") {
				continue
			}
			posting = node.toPosting()
			return false
		}
		return true
	})
	return posting
}

func ldNodes(raw string) []jsonLDPosting {
	var single jsonLDPosting
	if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Type != "" {
		return []jsonLDPosting{single}
	}
	var list []jsonLDPosting
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	var graph struct {
		Graph []jsonLDPosting `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(raw), &graph); err == nil {
		return graph.Graph
	}
	return nil
}

func (p jsonLDPosting) toPosting() *scraper.JobPosting {
	out := &scraper.JobPosting{
		Title:    cleanText(p.Title),
		Company:  cleanText(p.HiringOrganization.Name),
		PostedAt: p.DatePosted,
		Metadata: map[string]string{},
	}
	if len(p.JobLocation) > 0 {
		addr := p.JobLocation[0].Address
		parts := make([]string, 0, 3)
		for _, s := range []string{addr.Locality, addr.Region, addr.Country} {
			if s = cleanText(s); s != "" {
				parts = append(parts, s)
			}
		}
		out.Location = strings.Join(parts, ", ")
	}
	switch et := p.EmploymentType.(type) {
	case string:
		out.EmploymentType = cleanText(et)
	case []any:
		for _, v := range et {
			if s, ok := v.(string); ok {
				out.EmploymentType = cleanText(s)
				break
			}
		}
	}
	if p.BaseSalary.Value.MaxValue > 0 {
		out.Salary = fmt.Sprintf("%s %.0f-%.0f %s",
			p.BaseSalary.Currency,
			p.BaseSalary.Value.MinValue,
			p.BaseSalary.Value.MaxValue,
			strings.ToLower(p.BaseSalary.Value.UnitText))
		out.Salary = cleanText(out.Salary)
	}
	switch sk := p.Skills.(type) {
	case string:
		for _, s := range strings.Split(sk, ",") {
			if s = cleanText(s); s != "" {
				out.Skills = append(out.Skills, s)
			}
		}
	case []any:
		for _, v := range sk {
			if s, ok := v.(string); ok {
				out.Skills = append(out.Skills, cleanText(s))
			}
		}
	}
	if p.Description != "" {
		out.Description = htmlToText(p.Description)
	}
	return out
}

// htmlToText strips markup from an HTML fragment, collapsing whitespace.
// JSON-LD descriptions arrive HTML-encoded more often than not.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	return cleanText(doc.Text())
}

// cleanText collapses all runs of whitespace to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstText returns the cleaned text of the first selector that matches
// and yields non-empty text.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
