package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

func parseInternshala(doc *goquery.Document) *scraper.JobPosting {
	posting := fromJSONLD(doc)
	if posting == nil {
		posting = &scraper.JobPosting{Metadata: map[string]string{}}
	}

	if posting.Title == "" {
		posting.Title = firstText(doc,
			"div.heading_4_5.profile",
			"span.profile_on_detail_page",
			"div.profile")
	}
	if posting.Company == "" {
		posting.Company = firstText(doc,
			"a.link_display_like_text",
			"div.company_name a",
			"div.company_name")
	}
	if posting.Location == "" {
		posting.Location = firstText(doc,
			"#location_names a",
			"#location_names span",
			"p#location_names")
	}
	if posting.Description == "" {
		posting.Description = cleanText(doc.Find("div.internship_details div.text-container").First().Text())
	}
	if posting.Salary == "" {
		posting.Salary = firstText(doc, "span.stipend")
	}

	// Internships list duration and start date in icon-labelled cells.
	doc.Find("div.item_body").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(cleanText(s.Parent().Find("div.item_heading span").Text()))
		value := cleanText(s.Text())
		if label != "" && value != "" {
			posting.Metadata[strings.ReplaceAll(label, " ", "_")] = value
		}
	})

	if posting.Skills == nil {
		doc.Find("div.round_tabs_container span.round_tabs").Each(func(_ int, s *goquery.Selection) {
			if skill := cleanText(s.Text()); skill != "" {
				posting.Skills = append(posting.Skills, skill)
			}
		})
	}
	if posting.EmploymentType == "" && doc.Find("div.profile_container").Length() > 0 {
		posting.EmploymentType = "Internship"
	}
	return posting
}
