package scraper

import (
	"context"
	"html"
	"net/url"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/httpx"
)

type greenhouseBoard struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	AbsoluteURL    string `json:"absolute_url"`
	UpdatedAt      string `json:"updated_at"`
	FirstPublished string `json:"first_published"`
	Content        string `json:"content"`
	Location       struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
	Metadata []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	} `json:"metadata"`
}

func fetchGreenhouse(ctx context.Context, client JSONGetter, base string, target TargetConfig, opts httpx.RequestOptions) ([]RawJob, error) {
	endpoint := httpx.ResolveEndpoint(base, "/v1/boards/%s/jobs?content=true", url.PathEscape(target.ATS.BoardID))

	var board greenhouseBoard
	if err := client.GetJSON(ctx, endpoint, opts, &board); err != nil {
		return nil, err
	}

	jobs := make([]RawJob, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		title := strings.TrimSpace(j.Title)
		if title == "" {
			continue
		}
		posted := parseDate(j.FirstPublished)
		if posted.IsZero() {
			posted = parseDate(j.UpdatedAt)
		}
		job := RawJob{
			Title:       title,
			Company:     target.CompanyName(),
			Location:    strings.TrimSpace(j.Location.Name),
			Description: html.UnescapeString(j.Content),
			URL:         j.AbsoluteURL,
			PostedAt:    posted,
		}
		if len(j.Departments) > 0 {
			job.Department = strings.TrimSpace(j.Departments[0].Name)
		}
		for _, m := range j.Metadata {
			val, ok := m.Value.(string)
			if !ok {
				continue
			}
			switch strings.ToLower(m.Name) {
			case "employment type", "employment_type":
				job.EmploymentType = val
			case "workplace type", "location type", "remote":
				job.WorkplaceType = val
			case "salary", "salary range", "compensation":
				job.SalaryText = val
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
