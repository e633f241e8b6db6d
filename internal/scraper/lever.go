package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/baxromumarov/job-scraper/internal/httpx"
)

type leverPosting struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	HostedURL       string        `json:"hostedUrl"`
	Categories      leverCategory `json:"categories"`
	CreatedAt       int64         `json:"createdAt"`
	Description     string        `json:"descriptionPlain"`
	AdditionalPlain string        `json:"additionalPlain"`
	WorkplaceType   string        `json:"workplaceType"`
	Lists           []leverList   `json:"lists"`
	SalaryRange     *leverSalary  `json:"salaryRange"`
	SalaryDescPlain string        `json:"salaryDescriptionPlain"`
}

type leverCategory struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverList struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

type leverSalary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}

func fetchLever(ctx context.Context, client JSONGetter, base string, target TargetConfig, opts httpx.RequestOptions) ([]RawJob, error) {
	endpoint := httpx.ResolveEndpoint(base, "/v0/postings/%s?mode=json", url.PathEscape(target.ATS.BoardID))

	var postings []leverPosting
	if err := client.GetJSON(ctx, endpoint, opts, &postings); err != nil {
		return nil, err
	}

	jobs := make([]RawJob, 0, len(postings))
	for _, p := range postings {
		title := strings.TrimSpace(p.Text)
		if title == "" {
			continue
		}
		job := RawJob{
			Title:          title,
			Company:        target.CompanyName(),
			Location:       p.Categories.Location,
			Description:    joinParts(p.Description, p.AdditionalPlain),
			EmploymentType: p.Categories.Commitment,
			WorkplaceType:  p.WorkplaceType,
			Department:     firstNonEmpty(p.Categories.Department, p.Categories.Team),
			SalaryText:     p.SalaryDescPlain,
			URL:            p.HostedURL,
		}
		if p.CreatedAt > 0 {
			job.PostedAt = time.UnixMilli(p.CreatedAt).UTC()
		}
		if job.Location == "" && len(p.Categories.AllLocations) > 0 {
			job.Location = p.Categories.AllLocations[0]
		}
		for _, l := range p.Lists {
			heading := strings.ToLower(l.Text)
			if strings.Contains(heading, "require") || strings.Contains(heading, "qualif") || strings.Contains(heading, "looking for") {
				job.Requirements = append(job.Requirements, listItems(l.Content)...)
			}
		}
		if s := p.SalaryRange; s != nil {
			job.SalaryMin = s.Min
			job.SalaryMax = s.Max
			job.SalaryCurrency = s.Currency
			job.SalaryPeriod = leverInterval(s.Interval)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func leverInterval(v string) string {
	switch strings.ToLower(v) {
	case "per-hour-wage":
		return "hourly"
	case "per-day-wage":
		return "daily"
	case "per-week-salary":
		return "weekly"
	case "per-month-salary":
		return "monthly"
	case "per-year-salary", "one-time":
		return "yearly"
	}
	return ""
}

// listItems splits Lever list HTML ("<li>a</li><li>b</li>") into plain items.
func listItems(content string) []string {
	var out []string
	for _, part := range strings.Split(content, "</li>") {
		item := strings.TrimSpace(PlainText(part))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
