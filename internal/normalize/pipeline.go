// Package normalize maps raw strategy output onto the canonical job schema.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/baxromumarov/job-scraper/internal/scraper"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

const MaxDescriptionLen = 5000

type Pipeline struct {
	now func() time.Time
}

type Option func(*Pipeline)

// WithClock fixes the scraped/updated timestamps, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize maps raw onto the canonical schema. It has no side effects
// besides reading the clock.
func (p *Pipeline) Normalize(raw scraper.RawJob, target scraper.TargetConfig) Job {
	title := NormalizeTitle(raw.Title)
	company := collapse(raw.Company)
	if company == "" {
		company = target.CompanyName()
	}
	description := CleanDescription(raw.Description)
	location := ParseLocation(raw.Location)
	if !location.Remote && workPatternMatch(raw.WorkplaceType) == WorkRemote {
		location = markRemote(location)
	}

	now := p.now().UTC()
	job := Job{
		Title:           title,
		OriginalTitle:   collapse(raw.Title),
		Company:         company,
		Location:        location,
		WorkType:        InferWorkType(raw.WorkplaceType, raw.Title, raw.Location, description),
		EmploymentType:  InferEmploymentType(raw.EmploymentType, raw.Title, description),
		ExperienceLevel: InferExperienceLevel(raw.Title, description),
		Salary:          NormalizeSalary(raw),
		Skills:          CategorizeSkills(append(append([]string{}, raw.Skills...), raw.Requirements...), description),
		Description:     description,
		URL:             strings.TrimSpace(raw.URL),
		Department:      collapse(raw.Department),
		Source:          sourceFor(raw, target),
		PostedAt:        raw.PostedAt,
		ScrapedAt:       now,
		UpdatedAt:       now,
	}
	job.ID = JobHash(job.Title, job.Company, job.Location.Canonical, string(job.EmploymentType))
	return job
}

func sourceFor(raw scraper.RawJob, target scraper.TargetConfig) Source {
	src := Source{
		Type:         SourceCareerPage,
		ScrapeMethod: string(raw.Strategy),
		TargetID:     target.ID,
	}
	if target.ATS != nil && target.ATS.Type != "" {
		src.ATS = strings.ToLower(strings.TrimSpace(target.ATS.Type))
	} else if ats, _ := urlutil.DetectATS(raw.URL); ats != "" {
		src.ATS = ats
	}
	if src.ATS != "" {
		src.Type = SourceATS
	}
	return src
}

// JobHash is the stable identity of a posting: sha256 over the normalized
// title, company, canonical location and employment type.
func JobHash(title, company, location, employmentType string) string {
	h := sha256.New()
	for _, p := range []string{title, company, location, employmentType} {
		p = strings.ToLower(collapse(p))
		// length prefix keeps field boundaries unambiguous
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
