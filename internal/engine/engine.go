// Package engine runs extraction strategies against career targets under a
// shared rate limit and deadline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/job-scraper/internal/antidetect"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/scraper"
	"github.com/baxromumarov/job-scraper/internal/urlutil"
)

type Config struct {
	// RequestTimeout bounds a single strategy call; the caller's deadline
	// still wins when it is earlier.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	BatchSize      int           `yaml:"batch_size" json:"batch_size"`
	BatchPause     time.Duration `yaml:"batch_pause" json:"batch_pause"`
	// DeadlineMargin stops new batches when less than this is left.
	DeadlineMargin time.Duration `yaml:"deadline_margin" json:"deadline_margin"`
	HumanDelay     bool          `yaml:"human_delay" json:"human_delay"`
	RespectRobots  bool          `yaml:"respect_robots" json:"respect_robots"`
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 15 * time.Second,
		BatchSize:      5,
		BatchPause:     time.Second,
		DeadlineMargin: 5 * time.Second,
		HumanDelay:     true,
		RespectRobots:  true,
	}
}

type Limiter interface {
	Acquire(ctx context.Context, domain string) error
}

type HeaderSource interface {
	Headers(rawURL string) http.Header
	APIHeaders(rawURL string) http.Header
	RandomDelay() time.Duration
}

type Normalizer interface {
	Normalize(raw scraper.RawJob, target scraper.TargetConfig) normalize.Job
}

type Recorder interface {
	RecordAttempt(target string, strategy scraper.StrategyKind, d time.Duration, jobs int, err error)
	RecordError(err error, component string)
}

// Cache short-circuits targets scraped recently. Errors are logged and
// otherwise ignored.
type Cache interface {
	Get(ctx context.Context, target scraper.TargetConfig) ([]normalize.Job, bool, error)
	Set(ctx context.Context, target scraper.TargetConfig, jobs []normalize.Job) error
}

type Deps struct {
	Registry   *scraper.Registry
	Limiter    Limiter
	Headers    HeaderSource
	Normalizer Normalizer
	Metrics    Recorder
	Cache      Cache
	Logger     *slog.Logger
	// Sleep waits for the human delay and the batch pause.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Engine struct {
	cfg        Config
	registry   *scraper.Registry
	limiter    Limiter
	headers    HeaderSource
	normalizer Normalizer
	metrics    Recorder
	cache      Cache
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// New fills missing dependencies with working defaults: no rate limit, a
// clock-seeded header generator, the normalize pipeline and fresh metrics.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	if cfg.DeadlineMargin < 0 {
		cfg.DeadlineMargin = 0
	}

	e := &Engine{
		cfg:        cfg,
		registry:   deps.Registry,
		limiter:    deps.Limiter,
		headers:    deps.Headers,
		normalizer: deps.Normalizer,
		metrics:    deps.Metrics,
		cache:      deps.Cache,
		logger:     deps.Logger,
		sleep:      deps.Sleep,
		now:        time.Now,
	}
	if e.registry == nil {
		e.registry = scraper.NewRegistry()
	}
	if e.limiter == nil {
		e.limiter = noLimit{}
	}
	if e.headers == nil {
		e.headers = antidetect.New(nil)
	}
	if e.normalizer == nil {
		e.normalizer = normalize.New()
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	return e
}

// ScrapeTarget tries the target's strategies in order until one returns
// jobs. The error is non-nil only for a target that fails validation; every
// other failure is reported on the outcome.
func (e *Engine) ScrapeTarget(ctx context.Context, target scraper.TargetConfig) (Outcome, error) {
	out := Outcome{TargetID: target.ID, Started: e.now()}
	if err := target.Validate(); err != nil {
		out.Err = scraper.NewError(scraper.ErrConfig, "", err)
		out.Duration = time.Since(out.Started)
		return out, err
	}
	defer func() { out.Duration = time.Since(out.Started) }()

	log := e.logger.With("target", target.ID)

	if e.cache != nil {
		jobs, ok, err := e.cache.Get(ctx, target)
		switch {
		case err != nil:
			e.metrics.RecordError(err, observability.ComponentCache)
			log.Warn("cache lookup failed", "error", err)
		case ok && len(jobs) > 0:
			out.Success = true
			out.FromCache = true
			out.Jobs = jobs
			return out, nil
		}
	}

	var lastDomain string
	for _, kind := range target.Strategies {
		if err := ctx.Err(); err != nil {
			out.Err = scraper.Classify(err, kind)
			break
		}
		strategy, ok := e.registry.Get(kind)
		if !ok {
			serr := scraper.NewError(scraper.ErrConfig, kind, fmt.Errorf("strategy %q is not registered", kind))
			out.record(kind, 0, 0, serr)
			e.metrics.RecordAttempt(target.ID, kind, 0, 0, serr)
			out.Err = serr
			continue
		}

		reqURL := scraper.RequestURL(strategy, target)
		domain := urlutil.Domain(reqURL)
		if e.cfg.HumanDelay && domain == lastDomain {
			if err := e.sleep(ctx, e.headers.RandomDelay()); err != nil {
				out.Err = scraper.Classify(err, kind)
				break
			}
		}
		lastDomain = domain

		if err := e.limiter.Acquire(ctx, domain); err != nil {
			out.Err = scraper.Classify(err, kind)
			break
		}

		start := time.Now()
		raw, serr := e.extract(ctx, strategy, target, reqURL, domain)
		elapsed := time.Since(start)
		if serr != nil {
			out.record(kind, 0, elapsed, serr)
			e.metrics.RecordAttempt(target.ID, kind, elapsed, 0, serr)
			out.Err = serr
			log.Warn("strategy failed",
				"strategy", kind,
				"kind", serr.Kind,
				"status", serr.Status,
				"duration", elapsed,
				"error", serr,
			)
			if serr.Abandons() {
				break
			}
			continue
		}

		out.record(kind, len(raw), elapsed, nil)
		e.metrics.RecordAttempt(target.ID, kind, elapsed, len(raw), nil)
		if len(raw) == 0 {
			log.Debug("strategy found nothing", "strategy", kind, "duration", elapsed)
			continue
		}

		out.Jobs = make([]normalize.Job, 0, len(raw))
		for _, r := range raw {
			out.Jobs = append(out.Jobs, e.normalizer.Normalize(r, target))
		}
		out.Success = true
		out.Strategy = kind
		out.Err = nil
		log.Info("strategy succeeded", "strategy", kind, "jobs", len(out.Jobs), "duration", elapsed)

		if e.cache != nil {
			if err := e.cache.Set(ctx, target, out.Jobs); err != nil {
				e.metrics.RecordError(err, observability.ComponentCache)
				log.Warn("cache store failed", "error", err)
			}
		}
		break
	}
	return out, nil
}

// extract runs one strategy under the composed deadline. Strategies that
// break the jobs-or-error contract have their jobs dropped.
func (e *Engine) extract(ctx context.Context, strategy scraper.Strategy, target scraper.TargetConfig, reqURL, domain string) ([]scraper.RawJob, *scraper.Error) {
	kind := strategy.Kind()
	actx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	headers := e.headers.Headers(reqURL)
	if kind == scraper.StrategyAPI {
		headers = e.headers.APIHeaders(reqURL)
	}
	opts := scraper.FetchOptions{
		Headers:       headers,
		Timeout:       e.cfg.RequestTimeout,
		RespectRobots: e.cfg.RespectRobots,
		Throttle: func(ctx context.Context) error {
			return e.limiter.Acquire(ctx, domain)
		},
	}

	raw, err := strategy.Extract(actx, target, opts)
	if err != nil {
		return nil, scraper.Classify(err, kind)
	}
	return raw, nil
}

// ScrapeAll scrapes targets in priority order, BatchSize at a time. It
// returns one outcome per target in input order. Targets that never started
// because ctx ended or the deadline margin was reached are marked Skipped.
func (e *Engine) ScrapeAll(ctx context.Context, targets []scraper.TargetConfig) []Outcome {
	outcomes := make([]Outcome, len(targets))
	started := make([]bool, len(targets))

	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return targets[order[a]].Priority < targets[order[b]].Priority
	})

	for from := 0; from < len(order); from += e.cfg.BatchSize {
		if from > 0 && e.cfg.BatchPause > 0 {
			if err := e.sleep(ctx, e.cfg.BatchPause); err != nil {
				break
			}
		}
		if !e.canStartBatch(ctx) {
			break
		}

		to := min(from+e.cfg.BatchSize, len(order))
		batch := order[from:to]
		e.logger.Info("scrape batch start", "batch", from/e.cfg.BatchSize+1, "targets", len(batch))

		var g errgroup.Group
		g.SetLimit(e.cfg.BatchSize)
		for _, idx := range batch {
			started[idx] = true
			g.Go(func() error {
				outcomes[idx] = e.safeScrape(ctx, targets[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, ok := range started {
		if ok {
			continue
		}
		outcomes[i] = Outcome{
			TargetID: targets[i].ID,
			Skipped:  true,
			Err:      scraper.NewError(scraper.ErrTimeout, "", errors.New("not started before the deadline")),
		}
	}
	return outcomes
}

func (e *Engine) canStartBatch(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < e.cfg.DeadlineMargin {
		e.logger.Warn("scrape deadline margin reached", "remaining", time.Until(deadline))
		return false
	}
	return true
}

// safeScrape turns a panic or a validation failure into a failed outcome so
// one target cannot take down its batch.
func (e *Engine) safeScrape(ctx context.Context, target scraper.TargetConfig) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error("scrape target panicked", "target", target.ID, "error", err, "stack", string(debug.Stack()))
			e.metrics.RecordError(err, observability.ComponentEngine)
			out = Outcome{
				TargetID: target.ID,
				Started:  e.now(),
				Err:      scraper.NewError(scraper.ErrUnknown, "", err),
			}
		}
	}()

	out, err := e.ScrapeTarget(ctx, target)
	if err != nil {
		e.logger.Error("invalid target", "target", target.ID, "error", err)
		e.metrics.RecordError(err, observability.ComponentEngine)
	}
	return out
}

type noLimit struct{}

func (noLimit) Acquire(ctx context.Context, _ string) error { return ctx.Err() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
