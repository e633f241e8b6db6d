package scraper

import (
	"context"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

// JSONGetter is the transport used by the api strategy.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, opts httpx.RequestOptions, out any) error
}

// Endpoints are the ATS API roots. Tests point them at local servers.
type Endpoints struct {
	Greenhouse string
	Lever      string
	Ashby      string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Greenhouse: "https://boards-api.greenhouse.io",
		Lever:      "https://api.lever.co",
		Ashby:      "https://api.ashbyhq.com",
	}
}

// atsFetcher pulls one board from one ATS.
type atsFetcher func(ctx context.Context, client JSONGetter, base string, target TargetConfig, opts httpx.RequestOptions) ([]RawJob, error)

// APIStrategy reads postings from public ATS job-board endpoints.
type APIStrategy struct {
	client    JSONGetter
	endpoints Endpoints
	fetchers  map[string]atsFetcher
}

func NewAPIStrategy(client JSONGetter, endpoints Endpoints) *APIStrategy {
	def := DefaultEndpoints()
	if endpoints.Greenhouse == "" {
		endpoints.Greenhouse = def.Greenhouse
	}
	if endpoints.Lever == "" {
		endpoints.Lever = def.Lever
	}
	if endpoints.Ashby == "" {
		endpoints.Ashby = def.Ashby
	}
	return &APIStrategy{
		client:    client,
		endpoints: endpoints,
		fetchers: map[string]atsFetcher{
			urlutil.ATSGreenhouse: fetchGreenhouse,
			urlutil.ATSLever:      fetchLever,
			urlutil.ATSAshby:      fetchAshby,
		},
	}
}

func (s *APIStrategy) Kind() StrategyKind { return StrategyAPI }

func (s *APIStrategy) Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error) {
	if target.ATS == nil || strings.TrimSpace(target.ATS.BoardID) == "" {
		return nil, configError(StrategyAPI, "target %q has no ATS binding", target.ID)
	}
	ats := strings.ToLower(strings.TrimSpace(target.ATS.Type))
	fetch, ok := s.fetchers[ats]
	if !ok {
		return nil, configError(StrategyAPI, "unsupported ATS %q", target.ATS.Type)
	}
	if err := ctx.Err(); err != nil {
		return nil, Classify(err, StrategyAPI)
	}

	jobs, err := fetch(ctx, s.client, s.baseFor(ats), target, requestOptions(opts))
	if err != nil {
		return nil, Classify(err, StrategyAPI)
	}
	for i := range jobs {
		jobs[i].Strategy = StrategyAPI
		if jobs[i].Company == "" {
			jobs[i].Company = target.CompanyName()
		}
	}
	return jobs, nil
}

// RequestURL is the endpoint root the strategy calls for target.
func (s *APIStrategy) RequestURL(target TargetConfig) string {
	if target.ATS == nil {
		return target.URL
	}
	if base := s.baseFor(strings.ToLower(strings.TrimSpace(target.ATS.Type))); base != "" {
		return base
	}
	return target.URL
}

func (s *APIStrategy) baseFor(ats string) string {
	switch ats {
	case urlutil.ATSGreenhouse:
		return s.endpoints.Greenhouse
	case urlutil.ATSLever:
		return s.endpoints.Lever
	case urlutil.ATSAshby:
		return s.endpoints.Ashby
	}
	return ""
}

func requestOptions(opts FetchOptions) httpx.RequestOptions {
	return httpx.RequestOptions{
		Headers:       opts.Headers,
		Timeout:       opts.Timeout,
		RespectRobots: opts.RespectRobots,
	}
}
