// Package core ties the engine, deduplication and ingestion into scrape runs.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/baxromumarov/job-scraper/internal/dedup"
	"github.com/baxromumarov/job-scraper/internal/engine"
	"github.com/baxromumarov/job-scraper/internal/ingest"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("scrape run already in progress")

type Scraper interface {
	ScrapeAll(ctx context.Context, targets []scraper.TargetConfig) []engine.Outcome
}

type Deduplicator interface {
	Deduplicate(jobs []normalize.Job) dedup.Result
	Clear()
}

// Pruner deletes stored jobs that no run has refreshed recently.
type Pruner interface {
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

type ErrorRecorder interface {
	RecordError(err error, component string)
}

type Options struct {
	// RunTimeout bounds scraping; ingestion runs on the caller's context.
	RunTimeout time.Duration
	Keywords   []string
	Sink       ingest.Sink
	Metrics    ErrorRecorder
	Logger     *slog.Logger
}

// Report is everything one run produced.
type Report struct {
	Batch    ingest.Batch     `json:"batch"`
	Outcomes []engine.Outcome `json:"outcomes"`
	Summary  engine.Summary   `json:"summary"`
}

type Runner struct {
	scraper Scraper
	dedup   Deduplicator
	targets []scraper.TargetConfig
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *Report
}

func NewRunner(s Scraper, d Deduplicator, targets []scraper.TargetConfig, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		scraper: s,
		dedup:   d,
		targets: targets,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// RunOnce scrapes every target, deduplicates and filters the jobs and hands
// the batch to the sink. A sink failure is returned alongside the report.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer r.running.Unlock()

	started := r.now()
	scrapeCtx := ctx
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		scrapeCtx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	outcomes := r.scraper.ScrapeAll(scrapeCtx, r.targets)
	summary := engine.Summarize(outcomes)

	jobs := engine.Jobs(outcomes)
	var result dedup.Result
	if r.dedup != nil {
		// Batches are deduplicated independently of earlier runs.
		r.dedup.Clear()
		result = r.dedup.Deduplicate(jobs)
	} else {
		result = dedup.Result{Unique: jobs}
	}
	kept := FilterJobs(result.Unique, r.opts.Keywords)

	batch := ingest.NewBatch(started)
	batch.FinishedAt = r.now().UTC()
	batch.Jobs = kept
	batch.Duplicates = result.Groups
	batch.Stats = ingest.Stats{
		CompaniesAttempted: summary.CompaniesAttempted,
		JobsFound:          summary.JobsFound,
		JobsIngested:       len(kept),
		ErrorCount:         summary.ErrorCount,
	}

	report := Report{Batch: batch, Outcomes: outcomes, Summary: summary}
	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()

	r.logger.Info("scrape run finished",
		"run_id", batch.RunID,
		"companies", summary.CompaniesAttempted,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"jobs_found", summary.JobsFound,
		"unique", len(result.Unique),
		"ingested", len(kept),
		"errors", summary.ErrorCount,
		"duration", batch.FinishedAt.Sub(batch.StartedAt),
	)

	if r.opts.Sink == nil {
		return report, nil
	}
	if err := r.opts.Sink.Ingest(ctx, batch); err != nil {
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordError(err, observability.ComponentSink)
		}
		return report, fmt.Errorf("ingest run %s: %w", batch.RunID, err)
	}
	return report, nil
}

// Last returns the report of the most recent run.
func (r *Runner) Last() (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

func (r *Runner) Targets() []scraper.TargetConfig {
	return append([]scraper.TargetConfig(nil), r.targets...)
}

// Start runs immediately and then every interval until ctx ends. When pruner
// is set and retention positive, old stored jobs are deleted once a day.
func (r *Runner) Start(ctx context.Context, interval time.Duration, pruner Pruner, retention time.Duration) {
	go r.scrapeLoop(ctx, interval)
	if pruner != nil && retention > 0 {
		go r.cleanupLoop(ctx, pruner, 24*time.Hour, retention)
	}
}

func (r *Runner) scrapeLoop(ctx context.Context, interval time.Duration) {
	r.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("scrape run failed", "error", err)
	}
}

func (r *Runner) cleanupLoop(ctx context.Context, pruner Pruner, interval, retention time.Duration) {
	r.cleanup(ctx, pruner, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup(ctx, pruner, retention)
		}
	}
}

func (r *Runner) cleanup(ctx context.Context, pruner Pruner, retention time.Duration) {
	deleted, err := pruner.DeleteOldJobs(ctx, retention)
	if err != nil {
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordError(err, observability.ComponentStore)
		}
		r.logger.Error("cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		r.logger.Info("cleanup removed expired jobs", "deleted", deleted)
	}
}
