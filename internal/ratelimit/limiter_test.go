package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func newTestLimiter(clock *fakeClock, cfg Config) *Limiter {
	return New(cfg, WithClock(clock.Now, clock.Sleep))
}

func TestTryAcquire_DomainCapacity(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 100, RefillPerMinute: 100},
		PerDomain: Bucket{Capacity: 5, RefillPerMinute: 5},
	})

	for i := 0; i < 5; i++ {
		require.True(t, l.TryAcquire("acme.com"), "request %d", i)
	}
	assert.False(t, l.TryAcquire("acme.com"))

	// other domains have their own bucket
	assert.True(t, l.TryAcquire("other.com"))

	// one token every 12s at 5/min
	clock.Advance(12 * time.Second)
	assert.True(t, l.TryAcquire("acme.com"))
	assert.False(t, l.TryAcquire("acme.com"))
}

func TestTryAcquire_GlobalBucketSharedAcrossDomains(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 3, RefillPerMinute: 3},
		PerDomain: Bucket{Capacity: 10, RefillPerMinute: 10},
	})

	assert.True(t, l.TryAcquire("a.com"))
	assert.True(t, l.TryAcquire("b.com"))
	assert.True(t, l.TryAcquire("c.com"))
	assert.False(t, l.TryAcquire("d.com"))

	// a refused request takes nothing from the domain bucket
	st := l.Status("d.com")
	assert.Equal(t, 10.0, st.DomainTokens)
}

func TestAcquire_WaitsForScarcerBucket(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 100, RefillPerMinute: 100},
		PerDomain: Bucket{Capacity: 1, RefillPerMinute: 6},
	})
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "acme.com"))
	require.NoError(t, l.Acquire(ctx, "acme.com"))

	require.NotEmpty(t, clock.sleeps)
	var total time.Duration
	for _, d := range clock.sleeps {
		total += d
	}
	// 6/min refills one token in 10s
	assert.InDelta(t, float64(10*time.Second), float64(total), float64(5*time.Millisecond))
}

func TestAcquire_ContextCancelled(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 1, RefillPerMinute: 1},
		PerDomain: Bucket{Capacity: 1, RefillPerMinute: 1},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx, "acme.com")
	assert.ErrorIs(t, err, context.Canceled)
	// nothing consumed
	assert.Equal(t, 1.0, l.Status("acme.com").DomainTokens)
}

func TestAcquire_RealSleepHonorsDeadline(t *testing.T) {
	l := New(Config{
		Global:    Bucket{Capacity: 1, RefillPerMinute: 1},
		PerDomain: Bucket{Capacity: 1, RefillPerMinute: 1},
	})
	require.True(t, l.TryAcquire("acme.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Acquire(ctx, "acme.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdmissionsBoundedByCapacityPerWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 50, RefillPerMinute: 50},
		PerDomain: Bucket{Capacity: 8, RefillPerMinute: 8},
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("acme.com") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, admitted)
}

func TestOverrides(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 100, RefillPerMinute: 100},
		PerDomain: Bucket{Capacity: 2, RefillPerMinute: 2},
		Overrides: map[string]Bucket{"WWW.Boards-API.greenhouse.io": {Capacity: 30}},
	})

	st := l.Status("boards-api.greenhouse.io")
	assert.Equal(t, 30, st.DomainCapacity)
	assert.Equal(t, 2, l.Status("acme.com").DomainCapacity)
}

func TestStatusIsReadOnlyAndClearRefills(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, Config{
		Global:    Bucket{Capacity: 10, RefillPerMinute: 10},
		PerDomain: Bucket{Capacity: 3, RefillPerMinute: 3},
	})

	require.True(t, l.TryAcquire("acme.com"))
	first := l.Status("acme.com")
	second := l.Status("acme.com")
	assert.Equal(t, first, second)
	assert.InDelta(t, 2.0, first.DomainTokens, 1e-9)
	assert.InDelta(t, 9.0, first.GlobalTokens, 1e-9)

	l.Clear()
	st := l.Status("acme.com")
	assert.Equal(t, 3.0, st.DomainTokens)
	assert.Equal(t, 10.0, st.GlobalTokens)
}

func TestEmptyDomainUsesDefaultKey(t *testing.T) {
	l := newTestLimiter(newFakeClock(), DefaultConfig())
	assert.Equal(t, "default", l.Status("").Domain)
}
