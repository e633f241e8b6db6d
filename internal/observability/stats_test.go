package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-scraper/internal/scraper"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordAttempt("acme", scraper.StrategyAPI, 2*time.Second, 0, scraper.NewError(scraper.ErrBlocked, scraper.StrategyAPI, errors.New("403")))
	m.RecordAttempt("acme", scraper.StrategyHTML, time.Second, 4, nil)
	m.RecordAttempt("globex", scraper.StrategyAPI, 3*time.Second, 7, nil)
	m.RecordAttempt("initech", scraper.StrategyJSONLD, 2*time.Second, 0, nil)
	m.RecordError(fmt.Errorf("insert: %w", context.DeadlineExceeded), ComponentStore)

	s := m.Snapshot()
	assert.Equal(t, uint64(4), s.Requests)
	assert.Equal(t, uint64(2), s.Successes)
	assert.Equal(t, uint64(2), s.Failures)
	assert.InDelta(t, 0.5, s.SuccessRate, 1e-9)
	assert.Equal(t, uint64(11), s.JobsFound)
	assert.InDelta(t, 2.0, s.LatencySecondsAvg, 1e-9)
	assert.Equal(t, uint64(2), s.ErrorsTotal)
	assert.Equal(t, map[string]uint64{"blocked": 1, "timeout": 1}, s.ErrorsByType)
	assert.Equal(t, map[string]uint64{"api": 1, ComponentStore: 1}, s.ErrorsByComponent)
	assert.Equal(t, map[string]uint64{"api": 1, "html_parsing": 1}, s.StrategyWins)

	require.Len(t, s.TopSources, 3)
	assert.Equal(t, "globex", s.TopSources[0].TargetID)
	assert.Equal(t, SourceStats{TargetID: "acme", Attempts: 2, Successes: 1, Jobs: 4}, s.TopSources[1])
	assert.Equal(t, "initech", s.TopSources[2].TargetID)
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordAttempt("acme", scraper.StrategyAPI, time.Second, 1, nil)
	m.Reset()

	s := m.Snapshot()
	assert.Zero(t, s.Requests)
	assert.Zero(t, s.SuccessRate)
	assert.Empty(t, s.TopSources)
	assert.Empty(t, s.ErrorsByType)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "unknown", ErrorType(nil))
	assert.Equal(t, "rate_limit", ErrorType(scraper.NewError(scraper.ErrRateLimit, scraper.StrategyAPI, nil)))
	assert.Equal(t, "timeout", ErrorType(context.Canceled))
}
