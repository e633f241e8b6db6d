// Package cache keeps recent per-target scrape results in Redis so a re-run
// inside the TTL skips the network.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baxromumarov/job-scraper/internal/normalize"
	"github.com/baxromumarov/job-scraper/internal/scraper"
)

const keyPrefix = "jobscraper:target"

// store is the slice of the redis client the cache uses.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Cache struct {
	client store
	closer func() error
	ttl    time.Duration
}

// New connects to Redis at the given URL.
// URL format: redis://localhost:6379/0
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &Cache{client: client, closer: client.Close, ttl: ttl}, nil
}

// Get returns the jobs cached for target. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, target scraper.TargetConfig) ([]normalize.Job, bool, error) {
	data, err := c.client.Get(ctx, buildKey(target)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", target.ID, err)
	}

	var jobs []normalize.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", target.ID, err)
	}
	if len(jobs) == 0 {
		return nil, false, nil
	}
	return jobs, true, nil
}

// Set stores jobs for target with the configured TTL.
func (c *Cache) Set(ctx context.Context, target scraper.TargetConfig, jobs []normalize.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("cache: marshal error: %w", err)
	}
	return c.client.Set(ctx, buildKey(target), data, c.ttl).Err()
}

func (c *Cache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// buildKey hashes everything about a target that changes what a scrape
// returns, so an edited target misses the cache.
func buildKey(t scraper.TargetConfig) string {
	t.Priority = 0
	raw, _ := json.Marshal(t)
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%s:%x", keyPrefix, strings.ToLower(t.ID), hash[:8])
}
