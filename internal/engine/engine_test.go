package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-scraper/internal/antidetect"
	"github.com/baxromumarov/job-scraper/internal/httpx"
	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/observability"
	"github.com/baxromumarov/job-scraper/internal/ratelimit"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

var fixedNow = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

type extractFunc func(ctx context.Context, target scraper.TargetConfig, opts scraper.FetchOptions) ([]scraper.RawJob, error)

type fakeStrategy struct {
	kind  scraper.StrategyKind
	fn    extractFunc
	calls atomic.Int32
}

func (f *fakeStrategy) Kind() scraper.StrategyKind { return f.kind }

func (f *fakeStrategy) Extract(ctx context.Context, target scraper.TargetConfig, opts scraper.FetchOptions) ([]scraper.RawJob, error) {
	f.calls.Add(1)
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(ctx, target, opts)
}

func returns(jobs []scraper.RawJob, err error) extractFunc {
	return func(context.Context, scraper.TargetConfig, scraper.FetchOptions) ([]scraper.RawJob, error) {
		return jobs, err
	}
}

func rawJobs(kind scraper.StrategyKind, titles ...string) []scraper.RawJob {
	out := make([]scraper.RawJob, 0, len(titles))
	for i, title := range titles {
		out = append(out, scraper.RawJob{
			Title:    title,
			Location: "Remote",
			URL:      fmt.Sprintf("https://example.com/jobs/%d", i),
			Strategy: kind,
		})
	}
	return out
}

func target(id string, kinds ...scraper.StrategyKind) scraper.TargetConfig {
	return scraper.TargetConfig{
		ID:         id,
		Name:       id,
		URL:        "https://" + id + ".example/careers",
		Strategies: kinds,
	}
}

func testConfig() Config {
	return Config{RequestTimeout: 5 * time.Second, BatchSize: 2}
}

func testDeps(strategies ...scraper.Strategy) Deps {
	return Deps{
		Registry:   scraper.NewRegistry(strategies...),
		Headers:    antidetect.New(rand.New(rand.NewSource(7))),
		Normalizer: normalize.New(normalize.WithClock(func() time.Time { return fixedNow })),
		Metrics:    observability.NewMetrics(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

const greenhouseJSON = `{"jobs":[
 {"id":1,"title":"Senior Backend Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/1","location":{"name":"Remote"},"content":"Go"},
 {"id":2,"title":"Product Designer","absolute_url":"https://boards.greenhouse.io/acme/jobs/2","location":{"name":"Berlin, Germany"},"content":"Figma"},
 {"id":3,"title":"Data Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/3","location":{"name":"New York, NY"},"content":"SQL"}
]}`

func TestScrapeTarget_GreenhouseEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/boards/acme/jobs" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(greenhouseJSON))
	}))
	defer srv.Close()

	api := scraper.NewAPIStrategy(httpx.NewPoliteClient("test-agent"), scraper.Endpoints{Greenhouse: srv.URL})
	deps := testDeps(api)
	deps.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	e := New(testConfig(), deps)

	tgt := scraper.TargetConfig{
		ID:         "acme",
		Name:       "Acme",
		URL:        "https://acme.example/careers",
		Strategies: []scraper.StrategyKind{scraper.StrategyAPI},
		ATS:        &scraper.ATSBinding{Type: "greenhouse", BoardID: "acme"},
	}
	out, err := e.ScrapeTarget(context.Background(), tgt)
	require.NoError(t, err)

	require.True(t, out.Success, "outcome error: %v", out.Err)
	assert.Equal(t, scraper.StrategyAPI, out.Strategy)
	require.Len(t, out.Jobs, 3)
	ids := map[string]bool{}
	for _, job := range out.Jobs {
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "api", job.Source.ScrapeMethod)
		assert.Equal(t, "greenhouse", job.Source.ATS)
		assert.Equal(t, "Acme", job.Company)
		ids[job.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Nil(t, out.Err)
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, 3, out.Attempts[0].Jobs)
}

func TestScrapeTarget_BlockedStopsFallback(t *testing.T) {
	api := &fakeStrategy{kind: scraper.StrategyAPI, fn: returns(nil, scraper.NewError(scraper.ErrBlocked, scraper.StrategyAPI, errors.New("403")))}
	jsonld := &fakeStrategy{kind: scraper.StrategyJSONLD, fn: returns(rawJobs(scraper.StrategyJSONLD, "Engineer"), nil)}
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: returns(rawJobs(scraper.StrategyHTML, "Engineer"), nil)}
	e := New(testConfig(), testDeps(api, jsonld, html))

	out, err := e.ScrapeTarget(context.Background(),
		target("acme", scraper.StrategyAPI, scraper.StrategyJSONLD, scraper.StrategyHTML))
	require.NoError(t, err)

	assert.False(t, out.Success)
	require.NotNil(t, out.Err)
	assert.Equal(t, scraper.ErrBlocked, out.Err.Kind)
	assert.Len(t, out.Attempts, 1)
	assert.Equal(t, int32(1), api.calls.Load())
	assert.Zero(t, jsonld.calls.Load())
	assert.Zero(t, html.calls.Load())
	assert.False(t, out.Retryable())
}

func TestScrapeTarget_RateLimitAbandonsButIsRetryable(t *testing.T) {
	api := &fakeStrategy{kind: scraper.StrategyAPI, fn: returns(nil, &httpx.FetchError{Status: http.StatusTooManyRequests, Err: errors.New("status 429")})}
	html := &fakeStrategy{kind: scraper.StrategyHTML}
	e := New(testConfig(), testDeps(api, html))

	out, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyAPI, scraper.StrategyHTML))
	require.NoError(t, err)

	require.NotNil(t, out.Err)
	assert.Equal(t, scraper.ErrRateLimit, out.Err.Kind)
	assert.Equal(t, http.StatusTooManyRequests, out.Err.Status)
	assert.Zero(t, html.calls.Load())
	assert.True(t, out.Retryable())
}

func TestScrapeTarget_FallsThroughTiers(t *testing.T) {
	api := &fakeStrategy{kind: scraper.StrategyAPI, fn: returns(nil, scraper.NewError(scraper.ErrParse, scraper.StrategyAPI, errors.New("bad json")))}
	jsonld := &fakeStrategy{kind: scraper.StrategyJSONLD}
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: returns(rawJobs(scraper.StrategyHTML, "Backend Engineer", "Designer"), nil)}
	ai := &fakeStrategy{kind: scraper.StrategyAI, fn: returns(rawJobs(scraper.StrategyAI, "Ignored"), nil)}
	e := New(testConfig(), testDeps(api, jsonld, html, ai))

	out, err := e.ScrapeTarget(context.Background(),
		target("acme", scraper.StrategyAPI, scraper.StrategyJSONLD, scraper.StrategyHTML, scraper.StrategyAI))
	require.NoError(t, err)

	require.True(t, out.Success)
	assert.Equal(t, scraper.StrategyHTML, out.Strategy)
	assert.Nil(t, out.Err)
	require.Len(t, out.Jobs, 2)
	assert.Equal(t, "backend engineer", out.Jobs[0].Title)
	assert.Equal(t, "html_parsing", out.Jobs[0].Source.ScrapeMethod)
	assert.Equal(t, fixedNow, out.Jobs[0].ScrapedAt)
	assert.Len(t, out.Attempts, 3)
	assert.Zero(t, ai.calls.Load())
}

func TestScrapeTarget_UnregisteredStrategy(t *testing.T) {
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: returns(rawJobs(scraper.StrategyHTML, "Engineer"), nil)}
	e := New(testConfig(), testDeps(html))

	out, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyBrowser, scraper.StrategyHTML))
	require.NoError(t, err)

	assert.True(t, out.Success)
	require.Len(t, out.Attempts, 2)
	require.NotNil(t, out.Attempts[0].Err)
	assert.Equal(t, scraper.ErrConfig, out.Attempts[0].Err.Kind)
}

func TestScrapeTarget_AllEmpty(t *testing.T) {
	e := New(testConfig(), testDeps(&fakeStrategy{kind: scraper.StrategyJSONLD}))

	out, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyJSONLD))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Nil(t, out.Err)
	assert.Empty(t, out.Jobs)
}

func TestScrapeTarget_InvalidTarget(t *testing.T) {
	e := New(testConfig(), testDeps())

	out, err := e.ScrapeTarget(context.Background(), scraper.TargetConfig{ID: "broken"})
	require.Error(t, err)
	assert.Equal(t, "broken", out.TargetID)
	require.NotNil(t, out.Err)
	assert.Equal(t, scraper.ErrConfig, out.Err.Kind)
}

func TestScrapeTarget_CancelledBeforeStart(t *testing.T) {
	html := &fakeStrategy{kind: scraper.StrategyHTML}
	e := New(testConfig(), testDeps(html))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := e.ScrapeTarget(ctx, target("acme", scraper.StrategyHTML))
	require.NoError(t, err)
	require.NotNil(t, out.Err)
	assert.Equal(t, scraper.ErrTimeout, out.Err.Kind)
	assert.Zero(t, html.calls.Load())
}

func TestScrapeTarget_ComposesRequestDeadline(t *testing.T) {
	var deadline time.Time
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: func(ctx context.Context, _ scraper.TargetConfig, _ scraper.FetchOptions) ([]scraper.RawJob, error) {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	e := New(cfg, testDeps(html))

	start := time.Now()
	out, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyHTML))
	require.NoError(t, err)

	assert.WithinDuration(t, start.Add(20*time.Millisecond), deadline, time.Second)
	require.NotNil(t, out.Err)
	assert.Equal(t, scraper.ErrTimeout, out.Err.Kind)
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) Acquire(ctx context.Context, domain string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[domain]++
	return ctx.Err()
}

func TestScrapeTarget_ThrottleUsesLimiter(t *testing.T) {
	var ua string
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: func(ctx context.Context, _ scraper.TargetConfig, opts scraper.FetchOptions) ([]scraper.RawJob, error) {
		ua = opts.Headers.Get("User-Agent")
		for i := 0; i < 2; i++ {
			if err := opts.Throttle(ctx); err != nil {
				return nil, err
			}
		}
		return rawJobs(scraper.StrategyHTML, "Engineer"), nil
	}}
	lim := &countingLimiter{}
	deps := testDeps(html)
	deps.Limiter = lim
	e := New(testConfig(), deps)

	out, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyHTML))
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.NotEmpty(t, ua)
	assert.Equal(t, map[string]int{"acme.example": 3}, lim.counts)
}

func TestScrapeTarget_HumanDelayBetweenSameOriginAttempts(t *testing.T) {
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	deps := testDeps(&fakeStrategy{kind: scraper.StrategyJSONLD}, &fakeStrategy{kind: scraper.StrategyHTML})
	deps.Sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	cfg := testConfig()
	cfg.HumanDelay = true
	e := New(cfg, deps)

	_, err := e.ScrapeTarget(context.Background(), target("acme", scraper.StrategyJSONLD, scraper.StrategyHTML))
	require.NoError(t, err)

	require.Len(t, delays, 1)
	assert.GreaterOrEqual(t, delays[0], time.Second)
	assert.LessOrEqual(t, delays[0], 10*time.Second)
}

type memoryCache struct {
	mu   sync.Mutex
	jobs map[string][]normalize.Job
}

func (c *memoryCache) Get(_ context.Context, t scraper.TargetConfig) ([]normalize.Job, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs, ok := c.jobs[t.ID]
	return jobs, ok, nil
}

func (c *memoryCache) Set(_ context.Context, t scraper.TargetConfig, jobs []normalize.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobs == nil {
		c.jobs = map[string][]normalize.Job{}
	}
	c.jobs[t.ID] = jobs
	return nil
}

func TestScrapeTarget_Cache(t *testing.T) {
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: returns(rawJobs(scraper.StrategyHTML, "Engineer"), nil)}
	deps := testDeps(html)
	deps.Cache = &memoryCache{}
	e := New(testConfig(), deps)
	tgt := target("acme", scraper.StrategyHTML)

	first, err := e.ScrapeTarget(context.Background(), tgt)
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.False(t, first.FromCache)

	second, err := e.ScrapeTarget(context.Background(), tgt)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Jobs, second.Jobs)
	assert.Equal(t, int32(1), html.calls.Load())
}

func TestScrapeAll_CancellationMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: func(_ context.Context, tgt scraper.TargetConfig, _ scraper.FetchOptions) ([]scraper.RawJob, error) {
		if tgt.ID == "t1" {
			cancel()
		}
		return rawJobs(scraper.StrategyHTML, "Engineer at "+tgt.ID), nil
	}}
	cfg := testConfig()
	cfg.BatchSize = 1
	e := New(cfg, testDeps(html))

	outcomes := e.ScrapeAll(ctx, []scraper.TargetConfig{
		target("t1", scraper.StrategyHTML),
		target("t2", scraper.StrategyHTML),
		target("t3", scraper.StrategyHTML),
	})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Success)
	assert.Len(t, outcomes[0].Jobs, 1)
	for _, o := range outcomes[1:] {
		assert.True(t, o.Skipped, o.TargetID)
		require.NotNil(t, o.Err)
		assert.Equal(t, scraper.ErrTimeout, o.Err.Kind)
	}
	assert.Equal(t, int32(1), html.calls.Load())
}

func TestScrapeAll_DeadlineMargin(t *testing.T) {
	html := &fakeStrategy{kind: scraper.StrategyHTML}
	cfg := testConfig()
	cfg.DeadlineMargin = time.Minute
	e := New(cfg, testDeps(html))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcomes := e.ScrapeAll(ctx, []scraper.TargetConfig{target("t1", scraper.StrategyHTML)})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Zero(t, html.calls.Load())
}

func TestScrapeAll_PriorityOrderAndIsolation(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	html := &fakeStrategy{kind: scraper.StrategyHTML, fn: func(_ context.Context, tgt scraper.TargetConfig, _ scraper.FetchOptions) ([]scraper.RawJob, error) {
		mu.Lock()
		order = append(order, tgt.ID)
		mu.Unlock()
		if tgt.ID == "boom" {
			panic("selector exploded")
		}
		return rawJobs(scraper.StrategyHTML, "Engineer at "+tgt.ID), nil
	}}
	cfg := testConfig()
	cfg.BatchSize = 1
	e := New(cfg, testDeps(html))

	low := target("low", scraper.StrategyHTML)
	low.Priority = 2
	boom := target("boom", scraper.StrategyHTML)
	boom.Priority = 1
	high := target("high", scraper.StrategyHTML)
	invalid := scraper.TargetConfig{ID: "invalid", Priority: 3}

	outcomes := e.ScrapeAll(context.Background(), []scraper.TargetConfig{low, boom, high, invalid})

	assert.Equal(t, []string{"high", "boom", "low"}, order)
	require.Len(t, outcomes, 4)
	assert.Equal(t, "low", outcomes[0].TargetID)
	assert.True(t, outcomes[0].Success)

	assert.Equal(t, "boom", outcomes[1].TargetID)
	assert.False(t, outcomes[1].Success)
	require.NotNil(t, outcomes[1].Err)
	assert.Equal(t, scraper.ErrUnknown, outcomes[1].Err.Kind)

	assert.True(t, outcomes[2].Success)
	assert.False(t, outcomes[3].Success)
	require.NotNil(t, outcomes[3].Err)
	assert.Equal(t, scraper.ErrConfig, outcomes[3].Err.Kind)
}

func TestSummarizeAndJobs(t *testing.T) {
	ok := Outcome{TargetID: "a", Success: true, Strategy: scraper.StrategyAPI, Jobs: make([]normalize.Job, 3)}
	cached := Outcome{TargetID: "b", Success: true, FromCache: true, Jobs: make([]normalize.Job, 1)}
	failed := Outcome{TargetID: "c", Err: scraper.NewError(scraper.ErrBlocked, scraper.StrategyHTML, nil)}
	skipped := Outcome{TargetID: "d", Skipped: true, Err: scraper.NewError(scraper.ErrTimeout, "", nil)}

	outcomes := []Outcome{ok, cached, failed, skipped}
	s := Summarize(outcomes)
	assert.Equal(t, 3, s.CompaniesAttempted)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.FromCache)
	assert.Equal(t, 4, s.JobsFound)
	assert.Equal(t, 2, s.ErrorCount)
	assert.Equal(t, map[scraper.ErrorKind]int{scraper.ErrBlocked: 1, scraper.ErrTimeout: 1}, s.ErrorsByKind)
	assert.Equal(t, map[scraper.StrategyKind]int{scraper.StrategyAPI: 1}, s.ByStrategy)

	assert.Len(t, Jobs(outcomes), 4)
}

func TestOutcome_MarshalJSON(t *testing.T) {
	o := Outcome{
		TargetID: "acme",
		Jobs:     make([]normalize.Job, 2),
		Duration: 1500 * time.Millisecond,
		Attempts: []Attempt{{Strategy: scraper.StrategyAPI, Err: scraper.NewError(scraper.ErrNetwork, scraper.StrategyAPI, errors.New("reset"))}},
		Err:      scraper.NewError(scraper.ErrNetwork, scraper.StrategyAPI, errors.New("reset")),
	}
	raw, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "acme", got["target_id"])
	assert.Equal(t, float64(2), got["jobs"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Equal(t, "network", got["error_kind"])
	assert.Equal(t, true, got["retryable"])
	assert.Len(t, got["attempts"], 1)
}
