package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type StrategyKind string

const (
	StrategyAPI     StrategyKind = "api"
	StrategyJSONLD  StrategyKind = "json_ld"
	StrategyIsland  StrategyKind = "data_island"
	StrategyHTML    StrategyKind = "html_parsing"
	StrategyAI      StrategyKind = "ai_extraction"
	StrategyBrowser StrategyKind = "browser_automation"
)

// AllKinds lists every strategy kind in the usual fallback order.
var AllKinds = []StrategyKind{
	StrategyAPI,
	StrategyJSONLD,
	StrategyIsland,
	StrategyHTML,
	StrategyAI,
	StrategyBrowser,
}

func (k StrategyKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

type ATSBinding struct {
	Type    string `yaml:"type" json:"type" validate:"required"`
	BoardID string `yaml:"board_id" json:"board_id" validate:"required"`
}

// Selectors are CSS hints for html_parsing. Empty fields fall back to
// inferred selectors.
type Selectors struct {
	JobCard     string `yaml:"job_card" json:"job_card"`
	Title       string `yaml:"title" json:"title"`
	Location    string `yaml:"location" json:"location"`
	Link        string `yaml:"link" json:"link"`
	Description string `yaml:"description" json:"description"`
	NextPage    string `yaml:"next_page" json:"next_page"`
}

type Pagination struct {
	MaxPages int `yaml:"max_pages" json:"max_pages" validate:"gte=0,lte=50"`
}

// TargetConfig describes one employer career target. It is not modified
// during a scrape.
type TargetConfig struct {
	ID         string         `yaml:"id" json:"id" validate:"required"`
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Company    string         `yaml:"company" json:"company,omitempty"`
	URL        string         `yaml:"url" json:"url" validate:"required,url"`
	ATS        *ATSBinding    `yaml:"ats" json:"ats,omitempty" validate:"omitempty"`
	Strategies []StrategyKind `yaml:"strategies" json:"strategies" validate:"required,min=1,dive,oneof=api json_ld data_island html_parsing ai_extraction browser_automation"`
	Selectors  *Selectors     `yaml:"selectors" json:"selectors,omitempty"`
	Pagination Pagination     `yaml:"pagination" json:"pagination"`
	Priority   int            `yaml:"priority" json:"priority" validate:"gte=0"`
}

// CompanyName is the display name used on extracted jobs.
func (t TargetConfig) CompanyName() string {
	if t.Company != "" {
		return t.Company
	}
	return t.Name
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate reports a malformed target. It is the only error ScrapeTarget
// surfaces to its caller.
func (t TargetConfig) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("target %q: %w", t.ID, err)
	}
	return nil
}

// RawJob is what a strategy extracts, before normalization.
type RawJob struct {
	Title          string
	Company        string
	Location       string
	Description    string
	Skills         []string
	Requirements   []string
	EmploymentType string
	WorkplaceType  string
	Department     string
	SalaryText     string
	SalaryMin      float64
	SalaryMax      float64
	SalaryCurrency string
	SalaryPeriod   string
	URL            string
	PostedAt       time.Time
	Strategy       StrategyKind
}

// FetchOptions is what the engine hands every strategy call.
type FetchOptions struct {
	Headers       http.Header
	Timeout       time.Duration
	RespectRobots bool
	// Throttle is awaited before every request beyond the first one, so
	// multi-page strategies stay inside the rate limit.
	Throttle func(ctx context.Context) error
}

func (o FetchOptions) throttle(ctx context.Context) error {
	if o.Throttle == nil {
		return ctx.Err()
	}
	return o.Throttle(ctx)
}

// Strategy extracts raw jobs from a target. Implementations honor ctx, never
// retry, and return either jobs or an error, not both.
type Strategy interface {
	Kind() StrategyKind
	Extract(ctx context.Context, target TargetConfig, opts FetchOptions) ([]RawJob, error)
}

// RequestURLer is implemented by strategies that call somewhere other than
// the target's entry URL. The engine keys rate limits and headers on it.
type RequestURLer interface {
	RequestURL(target TargetConfig) string
}

// RequestURL is where strategy s sends requests for target.
func RequestURL(s Strategy, target TargetConfig) string {
	if r, ok := s.(RequestURLer); ok {
		return r.RequestURL(target)
	}
	return target.URL
}

// Registry maps strategy kinds to implementations.
type Registry struct {
	strategies map[StrategyKind]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[StrategyKind]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any strategy of the same kind.
func (r *Registry) Register(s Strategy) {
	if s == nil {
		return
	}
	r.strategies[s.Kind()] = s
}

func (r *Registry) Get(kind StrategyKind) (Strategy, bool) {
	s, ok := r.strategies[kind]
	return s, ok
}

func (r *Registry) Kinds() []StrategyKind {
	out := make([]StrategyKind, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
