package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

// parseLinkedIn handles both the public guest job page and the
// authenticated-style layout, preferring the JSON-LD block when present.
func parseLinkedIn(doc *goquery.Document) *scraper.JobPosting {
	posting := fromJSONLD(doc)
	if posting == nil {
		posting = &scraper.JobPosting{Metadata: map[string]string{}}
	}

	if posting.Title == "" {
		posting.Title = firstText(doc,
			"h1.top-card-layout__title",
			"h1.topcard__title",
			"h1.job-details-jobs-unified-top-card__job-title")
	}
	if posting.Company == "" {
		posting.Company = firstText(doc,
			"a.topcard__org-name-link",
			"span.topcard__flavor a",
			".job-details-jobs-unified-top-card__company-name")
	}
	if posting.Location == "" {
		posting.Location = firstText(doc,
			"span.topcard__flavor--bullet",
			".job-details-jobs-unified-top-card__primary-description-container span")
	}
	if posting.Description == "" {
		posting.Description = cleanText(doc.Find("div.show-more-less-html__markup").First().Text())
	}

	// The criteria list carries seniority, employment type, function and
	// industries as header/value pairs.
	doc.Find("li.description__job-criteria-item").Each(func(_ int, s *goquery.Selection) {
		header := strings.ToLower(cleanText(s.Find("h3.description__job-criteria-subheader").Text()))
		value := cleanText(s.Find("span.description__job-criteria-text").Text())
		if value == "" {
			return
		}
		switch header {
		case "employment type":
			if posting.EmploymentType == "" {
				posting.EmploymentType = value
			}
		case "":
		default:
			posting.Metadata[strings.ReplaceAll(header, " ", "_")] = value
		}
	})

	if posting.ApplyURL == "" {
		if href, ok := doc.Find("a.sign-up-modal__direct-apply-btn, a.top-card-layout__cta").First().Attr("href"); ok {
			posting.ApplyURL = href
		}
	}
	if posting.PostedAt == "" {
		posting.PostedAt = firstText(doc, "span.posted-time-ago__text")
	}
	return posting
}
