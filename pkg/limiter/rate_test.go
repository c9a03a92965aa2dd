package limiter_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/limiter"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mirror = "aleph.gutenberg.org"

func newLimiter(base time.Duration) *limiter.ConcurrentRateLimiter {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(base)
	rl.SetJitter(0)
	rl.SetRandomSeed(42)
	return rl
}

func TestNewConcurrentRateLimiter_Defaults(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()

	assert.Equal(t, time.Duration(0), rl.BaseDelay())
	assert.Equal(t, time.Duration(0), rl.Jitter())
	assert.NotNil(t, rl.RNG())
	assert.Empty(t, rl.HostTimings())
}

func TestRateLimiter_BackoffGrowsExponentially(t *testing.T) {
	rl := newLimiter(time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, expected := range want {
		rl.Backoff(mirror)
		timing := rl.HostTimings()[mirror]
		assert.Equal(t, i+1, timing.BackoffCount())
		assert.Equal(t, expected, timing.BackoffDelay(), "backoff #%d", i+1)
	}
}

func TestRateLimiter_SetBackoffParam(t *testing.T) {
	rl := newLimiter(0)
	rl.SetBackoffParam(timeutil.NewBackoffParam(2*time.Second, 3.0, 20*time.Second))

	rl.Backoff(mirror)
	assert.Equal(t, 2*time.Second, rl.HostTimings()[mirror].BackoffDelay())
	rl.Backoff(mirror)
	assert.Equal(t, 6*time.Second, rl.HostTimings()[mirror].BackoffDelay())
	rl.Backoff(mirror)
	assert.Equal(t, 18*time.Second, rl.HostTimings()[mirror].BackoffDelay())
	rl.Backoff(mirror)
	assert.Equal(t, 20*time.Second, rl.HostTimings()[mirror].BackoffDelay())
}

func TestRateLimiter_ResetBackoff(t *testing.T) {
	rl := newLimiter(0)
	rl.Backoff(mirror)
	rl.Backoff(mirror)
	rl.SetHostDelay(mirror, 5*time.Second)

	rl.ResetBackoff(mirror)

	timing := rl.HostTimings()[mirror]
	assert.Equal(t, 0, timing.BackoffCount())
	assert.Equal(t, time.Duration(0), timing.BackoffDelay())
	assert.Equal(t, time.Duration(0), timing.HostDelay())

	rl.Backoff(mirror)
	assert.Equal(t, 1, rl.HostTimings()[mirror].BackoffCount())
}

func TestRateLimiter_ResetBackoff_UnknownHostIsNoop(t *testing.T) {
	rl := newLimiter(0)
	rl.ResetBackoff(mirror)
	assert.Empty(t, rl.HostTimings())
}

func TestRateLimiter_ResolveDelay(t *testing.T) {
	tests := []struct {
		name      string
		base      time.Duration
		hostDelay time.Duration
		backoff   bool
		min       time.Duration
		max       time.Duration
	}{
		{name: "base delay only", base: 500 * time.Millisecond, min: 450 * time.Millisecond, max: 500 * time.Millisecond},
		{name: "host delay overrides base", base: 100 * time.Millisecond, hostDelay: 500 * time.Millisecond, min: 450 * time.Millisecond, max: 500 * time.Millisecond},
		{name: "backoff takes precedence", base: 100 * time.Millisecond, hostDelay: 200 * time.Millisecond, backoff: true, min: 950 * time.Millisecond, max: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newLimiter(tt.base)
			if tt.hostDelay > 0 {
				rl.SetHostDelay(mirror, tt.hostDelay)
			}
			if tt.backoff {
				rl.Backoff(mirror)
			}
			rl.MarkLastFetchAsNow(mirror)

			delay := rl.ResolveDelay(mirror)
			assert.GreaterOrEqual(t, delay, tt.min)
			assert.LessOrEqual(t, delay, tt.max)
		})
	}
}

func TestRateLimiter_ResolveDelay_UnregisteredHost(t *testing.T) {
	rl := newLimiter(time.Second)
	assert.Equal(t, time.Duration(0), rl.ResolveDelay("unregistered.example"))
}

func TestRateLimiter_ResolveDelay_ElapsedTime(t *testing.T) {
	rl := newLimiter(50 * time.Millisecond)
	rl.MarkLastFetchAsNow(mirror)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, time.Duration(0), rl.ResolveDelay(mirror))
}

func TestRateLimiter_ResolveDelay_JitterWithinBounds(t *testing.T) {
	rl := newLimiter(100 * time.Millisecond)
	rl.SetJitter(50 * time.Millisecond)
	rl.MarkLastFetchAsNow(mirror)

	delay := rl.ResolveDelay(mirror)
	assert.Greater(t, delay, 90*time.Millisecond)
	assert.Less(t, delay, 150*time.Millisecond)
}

func TestRateLimiter_NilRNGIsReplaced(t *testing.T) {
	rl := newLimiter(0)
	rl.SetJitter(10 * time.Millisecond)
	rl.SetRNG(nil)

	rl.MarkLastFetchAsNow(mirror)
	_ = rl.ResolveDelay(mirror)

	assert.NotNil(t, rl.RNG())
}

func TestRateLimiter_SetRNG(t *testing.T) {
	rl := newLimiter(0)
	rng := rand.New(rand.NewSource(7))
	rl.SetRNG(rng)
	assert.Same(t, rng, rl.RNG())
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("returns immediately for a fresh host", func(t *testing.T) {
		rl := newLimiter(time.Hour)
		require.NoError(t, rl.Wait(context.Background(), mirror))
	})

	t.Run("waits for the remaining delay", func(t *testing.T) {
		rl := newLimiter(30 * time.Millisecond)
		rl.MarkLastFetchAsNow(mirror)

		start := time.Now()
		require.NoError(t, rl.Wait(context.Background(), mirror))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		rl := newLimiter(time.Hour)
		rl.MarkLastFetchAsNow(mirror)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, rl.Wait(ctx, mirror), context.Canceled)
	})
}

// Run with -race to detect data races.
func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(10 * time.Millisecond)
	rl.SetJitter(5 * time.Millisecond)
	hosts := []string{"aleph.gutenberg.org", "www.gutenberg.org", "gutenberg.pglaf.org"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id)))
			for j := 0; j < 200; j++ {
				h := hosts[r.Intn(len(hosts))]
				switch r.Intn(7) {
				case 0:
					rl.SetHostDelay(h, time.Duration(r.Intn(100))*time.Millisecond)
				case 1:
					rl.Backoff(h)
				case 2:
					rl.ResetBackoff(h)
				case 3:
					rl.MarkLastFetchAsNow(h)
				case 4:
					rl.SetRandomSeed(int64(r.Intn(1000)))
				case 5:
					_ = rl.HostTimings()
				default:
					_ = rl.ResolveDelay(h)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.NotNil(t, rl.HostTimings())
}
