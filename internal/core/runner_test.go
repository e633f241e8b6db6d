package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-scraper/internal/dedup"
	"github.com/baxromumarov/job-scraper/internal/engine"
	"github.com/baxromumarov/job-scraper/internal/ingest"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

type fakeScraper struct {
	calls    atomic.Int32
	outcomes []engine.Outcome
	block    chan struct{}
	deadline atomic.Bool
}

func (f *fakeScraper) ScrapeAll(ctx context.Context, _ []scraper.TargetConfig) []engine.Outcome {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	if f.block != nil {
		<-f.block
	}
	return f.outcomes
}

type errorLog struct {
	mu         sync.Mutex
	components []string
}

func (e *errorLog) RecordError(_ error, component string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.components = append(e.components, component)
}

func job(id, title, company, url string) normalize.Job {
	return normalize.Job{
		ID:       id,
		Title:    title,
		Company:  company,
		URL:      url,
		Location: normalize.Location{Remote: true, Canonical: "Remote"},
	}
}

func sampleOutcomes() []engine.Outcome {
	return []engine.Outcome{
		{
			TargetID: "acme",
			Success:  true,
			Strategy: scraper.StrategyAPI,
			Jobs: []normalize.Job{
				job("1", "Backend Engineer", "Acme", "https://acme.example/jobs/1"),
				job("2", "Product Designer", "Acme", "https://acme.example/jobs/2"),
			},
		},
		{
			TargetID: "acme-careers",
			Success:  true,
			Strategy: scraper.StrategyJSONLD,
			Jobs:     []normalize.Job{job("1", "Backend Engineer", "Acme", "https://acme.example/jobs/1?utm_source=x")},
		},
		{
			TargetID: "globex",
			Err:      scraper.NewError(scraper.ErrBlocked, scraper.StrategyHTML, errors.New("403")),
		},
	}
}

func TestRunner_RunOnce(t *testing.T) {
	fake := &fakeScraper{outcomes: sampleOutcomes()}
	sink := ingest.NewMemory(1)
	r := NewRunner(fake, dedup.New(dedup.DefaultConfig()), nil, Options{
		RunTimeout: time.Minute,
		Sink:       sink,
	})

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, fake.deadline.Load(), "scrape runs under the run timeout")

	b := report.Batch
	assert.NotEmpty(t, b.RunID)
	assert.Len(t, b.Jobs, 2)
	require.Len(t, b.Duplicates, 1)
	assert.Equal(t, dedup.ReasonExact, b.Duplicates[0].Reason)
	assert.Equal(t, ingest.Stats{CompaniesAttempted: 3, JobsFound: 3, JobsIngested: 2, ErrorCount: 1}, b.Stats)
	assert.False(t, b.FinishedAt.Before(b.StartedAt))

	stored, ok := sink.Latest()
	require.True(t, ok)
	assert.Equal(t, b.RunID, stored.RunID)

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 2, last.Summary.Succeeded)
	assert.Len(t, last.Outcomes, 3)
}

func TestRunner_KeywordFilter(t *testing.T) {
	fake := &fakeScraper{outcomes: sampleOutcomes()}
	r := NewRunner(fake, nil, nil, Options{Keywords: []string{"backend"}})

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	// Without a deduplicator both copies of job 1 survive.
	require.Len(t, report.Batch.Jobs, 2)
	for _, j := range report.Batch.Jobs {
		assert.Equal(t, "Backend Engineer", j.Title)
	}
	assert.Equal(t, 2, report.Batch.Stats.JobsIngested)
}

func TestRunner_SinkError(t *testing.T) {
	boom := errors.New("db down")
	errs := &errorLog{}
	r := NewRunner(&fakeScraper{outcomes: sampleOutcomes()}, nil, nil, Options{
		Sink:    ingest.SinkFunc(func(context.Context, ingest.Batch) error { return boom }),
		Metrics: errs,
	})

	report, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotEmpty(t, report.Batch.RunID)
	assert.Equal(t, []string{observability.ComponentSink}, errs.components)

	_, ok := r.Last()
	assert.True(t, ok, "the report is kept even when ingestion fails")
}

func TestRunner_RejectsConcurrentRuns(t *testing.T) {
	fake := &fakeScraper{block: make(chan struct{})}
	r := NewRunner(fake, nil, nil, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return fake.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(fake.block)
	assert.NoError(t, <-done)
}

type fakePruner struct {
	calls     atomic.Int32
	retention atomic.Int64
}

func (p *fakePruner) DeleteOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	p.calls.Add(1)
	p.retention.Store(int64(olderThan))
	return 3, nil
}

func TestRunner_Start(t *testing.T) {
	fake := &fakeScraper{}
	pruner := &fakePruner{}
	r := NewRunner(fake, nil, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, 5*time.Millisecond, pruner, 30*24*time.Hour)

	assert.Eventually(t, func() bool { return fake.calls.Load() >= 2 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return pruner.calls.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(30*24*time.Hour), pruner.retention.Load())
}

func TestRunner_StartWithoutRetention(t *testing.T) {
	pruner := &fakePruner{}
	fake := &fakeScraper{}
	r := NewRunner(fake, nil, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx, time.Hour, pruner, 0)
	assert.Eventually(t, func() bool { return fake.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.Zero(t, pruner.calls.Load())
}

func TestFilterJobs(t *testing.T) {
	jobs := []normalize.Job{
		job("1", "Backend Engineer", "Acme", ""),
		job("2", "Designer", "Acme", ""),
	}
	jobs[1].Skills = map[normalize.SkillCategory][]string{normalize.SkillLanguages: {"go"}}

	assert.Len(t, FilterJobs(jobs, nil), 2)
	assert.Len(t, FilterJobs(jobs, []string{" ", ""}), 2)
	assert.Equal(t, "1", FilterJobs(jobs, []string{"BACKEND"})[0].ID)
	assert.Equal(t, "2", FilterJobs(jobs, []string{"go"})[0].ID)
	assert.Empty(t, FilterJobs(jobs, []string{"rust"}))
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, MatchesKeywords("Senior Golang Developer", []string{"golang"}))
	assert.False(t, MatchesKeywords("Senior Golang Developer", []string{"python", ""}))
	assert.False(t, MatchesKeywords("anything", nil))
}

func TestRunner_DedupIsPerRun(t *testing.T) {
	fake := &fakeScraper{outcomes: sampleOutcomes()}
	r := NewRunner(fake, dedup.New(dedup.DefaultConfig()), nil, Options{})

	first, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	second, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(first.Batch.Jobs), len(second.Batch.Jobs))
	assert.NotEqual(t, first.Batch.RunID, second.Batch.RunID)
}
