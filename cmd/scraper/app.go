package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/baxromumarov/job-scraper/internal/ai"
	"github.com/baxromumarov/job-scraper/internal/antidetect"
	"github.com/baxromumarov/job-scraper/internal/cache"
	"github.com/baxromumarov/job-scraper/internal/config"
	"github.com/baxromumarov/job-scraper/internal/core"
	"github.com/baxromumarov/job-scraper/internal/dedup"
	"github.com/baxromumarov/job-scraper/internal/engine"
	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/baxromumarov/job-scraper/internal/ingest"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/ratelimit"
	"github.com/baxromumarov/job-scraper/internal/scraper"
	"github.com/baxromumarov/job-scraper/internal/store"
)

const browserSettle = 2 * time.Second

// app holds every long-lived component of one process.
type app struct {
	cfg     config.Config
	targets []scraper.TargetConfig
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	runner  *core.Runner
	memory  *ingest.Memory
	store   *store.Store

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	targets, err := config.LoadTargets(cfg.TargetsPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		targets: targets,
		limiter: ratelimit.New(cfg.RateLimit),
		metrics: observability.NewMetrics(),
		memory:  ingest.NewMemory(5),
	}

	registry, err := a.buildRegistry(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sinks := ingest.MultiSink{a.memory}
	if cfg.OutputPath != "" {
		sinks = append(sinks, ingest.NewJSONFile(cfg.OutputPath))
	}
	if cfg.DatabaseURL != "" {
		st, err := store.NewStore(cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		if err := st.RunMigrations(""); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.store = st
		sinks = append(sinks, st)
	}

	deps := engine.Deps{
		Registry:   registry,
		Limiter:    a.limiter,
		Headers:    antidetect.New(nil),
		Normalizer: normalize.New(),
		Metrics:    a.metrics,
		Logger:     slog.Default(),
	}
	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			// The cache only saves work; run without it.
			a.metrics.RecordError(err, observability.ComponentCache)
			slog.Warn("outcome cache unavailable", "error", err)
		} else {
			a.closers = append(a.closers, c.Close)
			deps.Cache = c
		}
	}

	eng := engine.New(cfg.Engine, deps)
	a.runner = core.NewRunner(eng, dedup.New(cfg.Dedup), targets, core.Options{
		RunTimeout: cfg.RunTimeout,
		Keywords:   cfg.Keywords,
		Sink:       sinks,
		Metrics:    a.metrics,
		Logger:     slog.Default(),
	})
	return a, nil
}

// buildRegistry registers all six strategies. The ai and browser tiers are
// registered disabled when not configured so targets naming them fall
// through with a config error.
func (a *app) buildRegistry(ctx context.Context) (*scraper.Registry, error) {
	cfg := a.cfg

	clientOpts := []httpx.ClientOption{httpx.WithClientTimeout(cfg.Engine.RequestTimeout)}
	if cfg.CloudflareBypass {
		clientOpts = append(clientOpts, httpx.WithClientCloudflareBypass())
	}
	fetcher := httpx.NewCollyFetcher(cfg.UserAgent, fetcherOptions(cfg.Engine.RequestTimeout, cfg.CloudflareBypass)...)
	client := httpx.NewPoliteClient(cfg.UserAgent, clientOpts...)

	extractor, err := ai.NewClient(ctx, cfg.AI, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create ai client: %w", err)
	}
	a.closers = append(a.closers, extractor.Close)

	return scraper.NewRegistry(
		scraper.NewAPIStrategy(client, scraper.DefaultEndpoints()),
		scraper.NewJSONLDStrategy(fetcher),
		scraper.NewDataIslandStrategy(fetcher),
		scraper.NewHTMLStrategy(fetcher),
		scraper.NewAIStrategy(fetcher, extractor, aiEnabled(cfg)),
		scraper.NewBrowserStrategy(scraper.NewChromeRenderer(browserSettle), cfg.BrowserEnabled),
	), nil
}

// aiEnabled needs the feature flag and a client that can answer: a Gemini
// key or the mock provider.
func aiEnabled(cfg config.Config) bool {
	if !cfg.AIEnabled {
		return false
	}
	return cfg.AI.APIKey != "" || strings.EqualFold(strings.TrimSpace(cfg.AI.Provider), ai.ProviderMock)
}

func fetcherOptions(timeout time.Duration, bypass bool) []httpx.FetcherOption {
	opts := []httpx.FetcherOption{httpx.WithTimeout(timeout)}
	if bypass {
		opts = append(opts, httpx.WithCloudflareBypass())
	}
	return opts
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
