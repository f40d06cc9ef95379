package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/mhatretamish/linkedin/internal/scraper"
)

func parseIndeed(doc *goquery.Document) *scraper.JobPosting {
	posting := fromJSONLD(doc)
	if posting == nil {
		posting = &scraper.JobPosting{Metadata: map[string]string{}}
	}

	if posting.Title == "" {
		posting.Title = firstText(doc,
			"h1.jobsearch-JobInfoHeader-title",
			"h1[data-testid='jobsearch-JobInfoHeader-title']")
	}
	if posting.Company == "" {
		posting.Company = firstText(doc,
			"div[data-company-name='true']",
			"div[data-testid='inlineHeader-companyName']",
			"span.companyName")
	}
	if posting.Location == "" {
		posting.Location = firstText(doc,
			"div[data-testid='inlineHeader-companyLocation']",
			"div[data-testid='job-location']",
			"div.companyLocation")
	}
	if posting.Description == "" {
		posting.Description = cleanText(doc.Find("#jobDescriptionText").First().Text())
	}
	if posting.Salary == "" {
		posting.Salary = firstText(doc,
			"div[data-testid='jobsearch-OtherJobDetailsContainer'] span.css-vktqis",
			"#salaryInfoAndJobType span")
	}
	return posting
}
