package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baxromumarov/job-scraper/internal/scraper"
)

const topSourcesLimit = 10

type SourceStats struct {
	TargetID  string `json:"target_id"`
	Attempts  uint64 `json:"attempts"`
	Successes uint64 `json:"successes"`
	Jobs      uint64 `json:"jobs"`
}

type Snapshot struct {
	Requests          uint64            `json:"requests"`
	Successes         uint64            `json:"successes"`
	Failures          uint64            `json:"failures"`
	SuccessRate       float64           `json:"success_rate"`
	JobsFound         uint64            `json:"jobs_found"`
	ErrorsTotal       uint64            `json:"errors_total"`
	LatencySecondsAvg float64           `json:"latency_seconds_avg"`
	StrategyWins      map[string]uint64 `json:"strategy_wins,omitempty"`
	ErrorsByType      map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByComponent map[string]uint64 `json:"errors_by_component,omitempty"`
	TopSources        []SourceStats     `json:"top_sources,omitempty"`
	Since             time.Time         `json:"since"`
}

// Metrics aggregates per strategy attempt counters for one engine. The zero
// value is not usable; call NewMetrics.
type Metrics struct {
	requests  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	jobsFound atomic.Uint64

	latencyCount atomic.Uint64
	latencyNanos atomic.Uint64

	mu                sync.Mutex
	since             time.Time
	strategyWins      map[string]uint64
	errorsByType      map[string]uint64
	errorsByComponent map[string]uint64
	sources           map[string]*SourceStats
}

func NewMetrics() *Metrics {
	m := &Metrics{}
	m.Reset()
	return m
}

// RecordAttempt counts one strategy call against target. err is nil for a
// call that produced jobs.
func (m *Metrics) RecordAttempt(target string, strategy scraper.StrategyKind, d time.Duration, jobs int, err error) {
	m.requests.Add(1)
	if d > 0 {
		m.latencyCount.Add(1)
		m.latencyNanos.Add(uint64(d))
	}

	success := err == nil && jobs > 0
	if success {
		m.successes.Add(1)
		m.jobsFound.Add(uint64(jobs))
	} else {
		m.failures.Add(1)
	}

	m.mu.Lock()
	src := m.sources[target]
	if src == nil {
		src = &SourceStats{TargetID: target}
		m.sources[target] = src
	}
	src.Attempts++
	if success {
		src.Successes++
		src.Jobs += uint64(jobs)
		m.strategyWins[string(strategy)]++
	}
	m.mu.Unlock()

	if err != nil {
		m.RecordError(err, string(strategy))
	}
}

// RecordError counts err under its classified kind and the component that
// produced it.
func (m *Metrics) RecordError(err error, component string) {
	if err == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	kind := ErrorType(err)
	m.mu.Lock()
	m.errorsByType[kind]++
	m.errorsByComponent[component]++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	wins := copyMap(m.strategyWins)
	byType := copyMap(m.errorsByType)
	byComponent := copyMap(m.errorsByComponent)
	sources := make([]SourceStats, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, *s)
	}
	since := m.since
	m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Jobs != sources[j].Jobs {
			return sources[i].Jobs > sources[j].Jobs
		}
		return sources[i].TargetID < sources[j].TargetID
	})
	if len(sources) > topSourcesLimit {
		sources = sources[:topSourcesLimit]
	}

	var errorsTotal uint64
	for _, n := range byType {
		errorsTotal += n
	}

	requests := m.requests.Load()
	successes := m.successes.Load()
	rate := 0.0
	if requests > 0 {
		rate = float64(successes) / float64(requests)
	}
	avg := 0.0
	if count := m.latencyCount.Load(); count > 0 {
		avg = float64(m.latencyNanos.Load()) / float64(count) / 1e9
	}

	return Snapshot{
		Requests:          requests,
		Successes:         successes,
		Failures:          m.failures.Load(),
		SuccessRate:       rate,
		JobsFound:         m.jobsFound.Load(),
		ErrorsTotal:       errorsTotal,
		LatencySecondsAvg: avg,
		StrategyWins:      wins,
		ErrorsByType:      byType,
		ErrorsByComponent: byComponent,
		TopSources:        sources,
		Since:             since,
	}
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.requests.Store(0)
	m.successes.Store(0)
	m.failures.Store(0)
	m.jobsFound.Store(0)
	m.latencyCount.Store(0)
	m.latencyNanos.Store(0)

	m.mu.Lock()
	m.since = time.Now().UTC()
	m.strategyWins = map[string]uint64{}
	m.errorsByType = map[string]uint64{}
	m.errorsByComponent = map[string]uint64{}
	m.sources = map[string]*SourceStats{}
	m.mu.Unlock()
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
