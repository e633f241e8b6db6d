package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func acme() scraper.TargetConfig {
	return scraper.TargetConfig{
		ID:         "Acme",
		Name:       "Acme",
		URL:        "https://acme.example/careers",
		Strategies: []scraper.StrategyKind{scraper.StrategyJSONLD},
	}
}

func TestCache_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	c := &Cache{client: fake, ttl: time.Hour}
	ctx := context.Background()

	jobs, ok, err := c.Get(ctx, acme())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, jobs)

	want := []normalize.Job{{ID: "1", Title: "Engineer", Company: "Acme"}}
	require.NoError(t, c.Set(ctx, acme(), want))

	got, ok, err := c.Get(ctx, acme())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	for key, ttl := range fake.ttls {
		assert.True(t, strings.HasPrefix(key, "jobscraper:target:acme:"))
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestCache_SkipsEmpty(t *testing.T) {
	fake := newFakeRedis()
	c := &Cache{client: fake, ttl: time.Hour}
	require.NoError(t, c.Set(context.Background(), acme(), nil))
	assert.Empty(t, fake.data)
}

func TestCache_GetErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.getErr = errors.New("connection refused")
	c := &Cache{client: fake}
	_, ok, err := c.Get(context.Background(), acme())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")

	fake = newFakeRedis()
	fake.data[buildKey(acme())] = "not json"
	c = &Cache{client: fake}
	_, ok, err = c.Get(context.Background(), acme())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "decode")
}

func TestBuildKey(t *testing.T) {
	base := acme()
	assert.Equal(t, buildKey(base), buildKey(base))

	reprioritized := acme()
	reprioritized.Priority = 4
	assert.Equal(t, buildKey(base), buildKey(reprioritized))

	edited := acme()
	edited.Strategies = []scraper.StrategyKind{scraper.StrategyHTML}
	assert.NotEqual(t, buildKey(base), buildKey(edited))

	moved := acme()
	moved.URL = "https://acme.example/jobs"
	assert.NotEqual(t, buildKey(base), buildKey(moved))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-redis-url", time.Minute)
	assert.ErrorContains(t, err, "invalid redis URL")
}
