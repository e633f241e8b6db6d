package engine

import (
	"encoding/json"
	"time"

	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

// Attempt is one strategy call made for a target.
type Attempt struct {
	Strategy scraper.StrategyKind
	Jobs     int
	Duration time.Duration
	Err      *scraper.Error
}

// Outcome is the per-target result of a scrape. Err carries the last error
// seen when no strategy produced jobs.
type Outcome struct {
	TargetID  string
	Success   bool
	Jobs      []normalize.Job
	Started   time.Time
	Duration  time.Duration
	Strategy  scraper.StrategyKind
	Attempts  []Attempt
	Err       *scraper.Error
	Skipped   bool
	FromCache bool
}

func (o *Outcome) record(kind scraper.StrategyKind, jobs int, d time.Duration, err *scraper.Error) {
	o.Attempts = append(o.Attempts, Attempt{Strategy: kind, Jobs: jobs, Duration: d, Err: err})
}

// Retryable reports whether a later run may succeed where this one failed.
func (o Outcome) Retryable() bool {
	return !o.Success && o.Err != nil && o.Err.Retryable()
}

type outcomeJSON struct {
	TargetID   string               `json:"target_id"`
	Success    bool                 `json:"success"`
	Jobs       int                  `json:"jobs"`
	Started    time.Time            `json:"started"`
	DurationMS int64                `json:"duration_ms"`
	Strategy   scraper.StrategyKind `json:"strategy,omitempty"`
	Attempts   []attemptJSON        `json:"attempts,omitempty"`
	ErrorKind  scraper.ErrorKind    `json:"error_kind,omitempty"`
	Error      string               `json:"error,omitempty"`
	Retryable  bool                 `json:"retryable"`
	Skipped    bool                 `json:"skipped,omitempty"`
	FromCache  bool                 `json:"from_cache,omitempty"`
}

type attemptJSON struct {
	Strategy   scraper.StrategyKind `json:"strategy"`
	Jobs       int                  `json:"jobs"`
	DurationMS int64                `json:"duration_ms"`
	ErrorKind  scraper.ErrorKind    `json:"error_kind,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// MarshalJSON reports job counts rather than the jobs themselves.
func (o Outcome) MarshalJSON() ([]byte, error) {
	v := outcomeJSON{
		TargetID:   o.TargetID,
		Success:    o.Success,
		Jobs:       len(o.Jobs),
		Started:    o.Started,
		DurationMS: o.Duration.Milliseconds(),
		Strategy:   o.Strategy,
		Retryable:  o.Retryable(),
		Skipped:    o.Skipped,
		FromCache:  o.FromCache,
	}
	if o.Err != nil {
		v.ErrorKind = o.Err.Kind
		v.Error = o.Err.Error()
	}
	for _, a := range o.Attempts {
		aj := attemptJSON{Strategy: a.Strategy, Jobs: a.Jobs, DurationMS: a.Duration.Milliseconds()}
		if a.Err != nil {
			aj.ErrorKind = a.Err.Kind
			aj.Error = a.Err.Error()
		}
		v.Attempts = append(v.Attempts, aj)
	}
	return json.Marshal(v)
}

// Jobs flattens the jobs of successful outcomes, in outcome order.
func Jobs(outcomes []Outcome) []normalize.Job {
	var out []normalize.Job
	for _, o := range outcomes {
		if o.Success {
			out = append(out, o.Jobs...)
		}
	}
	return out
}

type Summary struct {
	CompaniesAttempted int                          `json:"companies_attempted"`
	Succeeded          int                          `json:"succeeded"`
	Failed             int                          `json:"failed"`
	Skipped            int                          `json:"skipped"`
	FromCache          int                          `json:"from_cache"`
	JobsFound          int                          `json:"jobs_found"`
	ErrorCount         int                          `json:"error_count"`
	ErrorsByKind       map[scraper.ErrorKind]int    `json:"errors_by_kind,omitempty"`
	ByStrategy         map[scraper.StrategyKind]int `json:"by_strategy,omitempty"`
}

// Summarize aggregates outcomes. Skipped targets count as errors but not as
// attempted.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		ErrorsByKind: map[scraper.ErrorKind]int{},
		ByStrategy:   map[scraper.StrategyKind]int{},
	}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			s.Skipped++
		case o.Success:
			s.CompaniesAttempted++
			s.Succeeded++
			s.JobsFound += len(o.Jobs)
			if o.FromCache {
				s.FromCache++
			} else {
				s.ByStrategy[o.Strategy]++
			}
		default:
			s.CompaniesAttempted++
			s.Failed++
		}
		if o.Err != nil && !o.Success {
			s.ErrorCount++
			s.ErrorsByKind[o.Err.Kind]++
		}
	}
	return s
}
