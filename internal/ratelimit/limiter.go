package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket describes one token bucket: how many tokens it holds at most and
// how many it regains per minute.
type Bucket struct {
	Capacity        int     `yaml:"capacity" json:"capacity"`
	RefillPerMinute float64 `yaml:"refill_per_minute" json:"refill_per_minute"`
}

type Config struct {
	Global    Bucket `yaml:"global" json:"global"`
	PerDomain Bucket `yaml:"per_domain" json:"per_domain"`
	// Overrides replaces PerDomain for specific hosts (ATS APIs tolerate more).
	Overrides map[string]Bucket `yaml:"overrides" json:"overrides,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Global:    Bucket{Capacity: 100, RefillPerMinute: 100},
		PerDomain: Bucket{Capacity: 10, RefillPerMinute: 10},
	}
}

// Status is a read-only view of the buckets serving a domain.
type Status struct {
	Domain         string  `json:"domain"`
	DomainTokens   float64 `json:"domain_tokens"`
	DomainCapacity int     `json:"domain_capacity"`
	GlobalTokens   float64 `json:"global_tokens"`
	GlobalCapacity int     `json:"global_capacity"`
}

// Limiter admits a request only when both the global bucket and the bucket
// of the target domain hold a token; one token is taken from each.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	global  *rate.Limiter
	domains map[string]*rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Limiter)

// WithClock replaces the wall clock and the sleeper, for deterministic tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

func New(cfg Config, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.Global.Capacity <= 0 {
		cfg.Global = def.Global
	}
	if cfg.PerDomain.Capacity <= 0 {
		cfg.PerDomain = def.PerDomain
	}
	cfg.Global = withRefill(cfg.Global)
	cfg.PerDomain = withRefill(cfg.PerDomain)
	if len(cfg.Overrides) > 0 {
		overrides := make(map[string]Bucket, len(cfg.Overrides))
		for host, b := range cfg.Overrides {
			overrides[domainKey(host)] = b
		}
		cfg.Overrides = overrides
	}
	l := &Limiter{
		cfg:     cfg,
		domains: make(map[string]*rate.Limiter),
		now:     time.Now,
		sleep:   sleepWithContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.global = newBucket(cfg.Global)
	return l
}

// Acquire blocks until a token is available for domain or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	key := domainKey(domain)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, ok := l.tryTake(key)
		if ok {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire takes a token without waiting and reports whether it did.
func (l *Limiter) TryAcquire(domain string) bool {
	_, ok := l.tryTake(domainKey(domain))
	return ok
}

func (l *Limiter) tryTake(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dom := l.domainLocked(key)
	domTokens := dom.TokensAt(now)
	globalTokens := l.global.TokensAt(now)
	if domTokens >= 1 && globalTokens >= 1 {
		dom.AllowN(now, 1)
		l.global.AllowN(now, 1)
		return 0, true
	}

	wait := waitFor(dom, domTokens)
	if w := waitFor(l.global, globalTokens); w > wait {
		wait = w
	}
	return wait, false
}

// Status reports the current token counts without consuming any.
func (l *Limiter) Status(domain string) Status {
	key := domainKey(domain)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dom := l.domainLocked(key)
	return Status{
		Domain:         key,
		DomainTokens:   clampTokens(dom.TokensAt(now), dom.Burst()),
		DomainCapacity: dom.Burst(),
		GlobalTokens:   clampTokens(l.global.TokensAt(now), l.global.Burst()),
		GlobalCapacity: l.global.Burst(),
	}
}

// Clear forgets every domain bucket and refills the global one.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domains = make(map[string]*rate.Limiter)
	l.global = newBucket(l.cfg.Global)
}

func (l *Limiter) domainLocked(key string) *rate.Limiter {
	if lim, ok := l.domains[key]; ok {
		return lim
	}
	b := l.cfg.PerDomain
	if o, ok := l.cfg.Overrides[key]; ok && o.Capacity > 0 {
		b = withRefill(o)
	}
	lim := newBucket(b)
	l.domains[key] = lim
	return lim
}

func newBucket(b Bucket) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(b.RefillPerMinute/60), b.Capacity)
}

// withRefill defaults a missing refill rate to one full bucket per minute.
func withRefill(b Bucket) Bucket {
	if b.RefillPerMinute <= 0 {
		b.RefillPerMinute = float64(b.Capacity)
	}
	return b
}

func waitFor(lim *rate.Limiter, tokens float64) time.Duration {
	if tokens >= 1 {
		return 0
	}
	perSec := float64(lim.Limit())
	secs := (1 - tokens) / perSec
	d := time.Duration(math.Ceil(secs * float64(time.Second)))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func clampTokens(tokens float64, capacity int) float64 {
	if tokens < 0 {
		return 0
	}
	if tokens > float64(capacity) {
		return float64(capacity)
	}
	return tokens
}

func domainKey(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	if d == "" {
		return "default"
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
