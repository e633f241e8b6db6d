package scraper

import (
	"context"
	"errors"

	"github.com/baxromumarov/job-scraper/internal/ai"
)

const aiTextLimit = 20000

// AIStrategy hands the readable page text to a model extractor. It is the
// most expensive tier, so every failure is final for the run.
type AIStrategy struct {
	fetcher   PageFetcher
	extractor ai.Extractor
	enabled   bool
}

func NewAIStrategy(fetcher PageFetcher, extractor ai.Extractor, enabled bool) *AIStrategy {
	return &AIStrategy{fetcher: fetcher, extractor: extractor, enabled: enabled}
}

func (s *AIStrategy) Kind() StrategyKind { return StrategyAI }

func (s *AIStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	if !s.enabled || s.extractor == nil {
		return nil, final(configError(StrategyAI, "ai extraction disabled"))
	}

	page, err := s.fetcher.Fetch(ctx, target.URL, requestOptions(opts), nil)
	if err != nil {
		return nil, final(Classify(err, StrategyAI))
	}
	text := MainText(page.Body, aiTextLimit)
	if text == "" {
		return nil, final(parseError(StrategyAI, errors.New("page has no readable text")))
	}

	extracted, err := s.extractor.ExtractJobs(ctx, ai.PageData{
		URL:     page.URL,
		Company: target.CompanyName(),
		Text:    text,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, final(Classify(err, StrategyAI))
		}
		return nil, final(parseError(StrategyAI, err))
	}

	jobs := make([]RawJob, 0, len(extracted))
	for _, e := range extracted {
		jobs = append(jobs, RawJob{
			Title:          e.Title,
			Location:       e.Location,
			Description:    e.Description,
			URL:            e.URL,
			Department:     e.Department,
			EmploymentType: e.EmploymentType,
			SalaryText:     e.SalaryText,
			Skills:         e.Skills,
			PostedAt:       parseDate(e.PostedAt),
		})
	}
	return finishPageJobs(jobs, page.URL, target, StrategyAI), nil
}

func final(e *Error) *Error {
	cp := *e
	cp.Final = true
	return &cp
}
