package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/httpx"
)

type ashbyBoard struct {
	Jobs []ashbyJob `json:"jobs"`
}

type ashbyJob struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Location         string             `json:"location"`
	Department       string             `json:"department"`
	Team             string             `json:"team"`
	IsListed         *bool              `json:"isListed"`
	IsRemote         bool               `json:"isRemote"`
	WorkplaceType    string             `json:"workplaceType"`
	EmploymentType   string             `json:"employmentType"`
	DescriptionPlain string             `json:"descriptionPlain"`
	DescriptionHTML  string             `json:"descriptionHtml"`
	PublishedAt      string             `json:"publishedAt"`
	JobURL           string             `json:"jobUrl"`
	Compensation     *ashbyCompensation `json:"compensation"`
}

type ashbyCompensation struct {
	Summary    string `json:"compensationTierSummary"`
	Components []struct {
		CompensationType string   `json:"compensationType"`
		Interval         string   `json:"interval"`
		CurrencyCode     string   `json:"currencyCode"`
		MinValue         *float64 `json:"minValue"`
		MaxValue         *float64 `json:"maxValue"`
	} `json:"summaryComponents"`
}

func fetchAshby(ctx context.Context, client JSONGetter, base string, target TargetConfig, opts httpx.RequestOptions) ([]RawJob, error) {
	endpoint := httpx.ResolveEndpoint(base, "/posting-api/job-board/%s?includeCompensation=true", url.PathEscape(target.ATS.BoardID))

	var board ashbyBoard
	if err := client.GetJSON(ctx, endpoint, opts, &board); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	jobs := make([]RawJob, 0, len(board.Jobs))
	for _, p := range board.Jobs {
		if p.IsListed != nil && !*p.IsListed {
			continue
		}
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		if p.ID != "" {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
		}

		desc := p.DescriptionHTML
		if desc == "" {
			desc = p.DescriptionPlain
		}
		workplace := p.WorkplaceType
		if workplace == "" && p.IsRemote {
			workplace = "Remote"
		}
		job := RawJob{
			Title:          title,
			Company:        target.CompanyName(),
			Location:       strings.TrimSpace(p.Location),
			Description:    desc,
			EmploymentType: ashbyEmployment(p.EmploymentType),
			WorkplaceType:  workplace,
			Department:     firstNonEmpty(p.Department, p.Team),
			URL:            p.JobURL,
			PostedAt:       parseDate(p.PublishedAt),
		}
		if c := p.Compensation; c != nil {
			job.SalaryText = c.Summary
			for _, comp := range c.Components {
				if !strings.EqualFold(comp.CompensationType, "salary") {
					continue
				}
				if comp.MinValue != nil {
					job.SalaryMin = *comp.MinValue
				}
				if comp.MaxValue != nil {
					job.SalaryMax = *comp.MaxValue
				}
				job.SalaryCurrency = comp.CurrencyCode
				job.SalaryPeriod = ashbyInterval(comp.Interval)
				break
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ashbyEmployment turns "FullTime" into "full time".
func ashbyEmployment(v string) string {
	switch v {
	case "FullTime":
		return "full time"
	case "PartTime":
		return "part time"
	case "Intern":
		return "internship"
	case "Contract", "Temporary":
		return "contract"
	}
	return v
}

func ashbyInterval(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch {
	case strings.HasSuffix(v, "HOUR"):
		return "hourly"
	case strings.HasSuffix(v, "DAY"):
		return "daily"
	case strings.HasSuffix(v, "WEEK"):
		return "weekly"
	case strings.HasSuffix(v, "MONTH"):
		return "monthly"
	case strings.HasSuffix(v, "YEAR"):
		return "yearly"
	}
	return ""
}
