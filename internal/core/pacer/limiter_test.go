package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core"
)

// fakeTime drives a limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeTime struct {
	now   time.Time
	slept time.Duration
}

func (f *fakeTime) install(l *Limiter) {
	l.clock = func() time.Time { return f.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.now = f.now.Add(d)
		f.slept += d
		return nil
	}
	l.lastRefill = f.now
}

func newTestLimiter(t *testing.T, cfg core.RateConfig) (*Limiter, *fakeTime) {
	t.Helper()

	limiter, err := NewLimiter(cfg)
	require.NoError(t, err)

	ft := &fakeTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ft.install(limiter)
	return limiter, ft
}

func TestNewLimiterRejectsInvalidConfig(t *testing.T) {
	_, err := NewLimiter(core.RateConfig{Name: "bad", InitialRate: 0, MinRate: 0.1, MaxRate: 1, IncreaseStep: 0.1, DecreaseFactor: 0.5})
	require.Error(t, err)

	_, err = NewLimiter(core.RateConfig{Name: "bad", InitialRate: 1, MinRate: 0.1, MaxRate: 1, IncreaseStep: 0.1, DecreaseFactor: 1.5})
	require.Error(t, err)
}

func TestLimiterAdditiveIncreaseClampsAtMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    7,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	expected := []float64{8, 9, 10, 10}
	for _, want := range expected {
		limiter.OnSuccess()
		require.Equal(t, want, limiter.Snapshot().CurrentRate)
	}
}

func TestLimiterMultiplicativeDecreaseClampsAtMin(t *testing.T) {
	limiter, _ := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    10,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	limiter.OnBackoff(0)
	require.Equal(t, 5.0, limiter.Snapshot().CurrentRate)

	previous := 5.0
	for i := 0; i < 20; i++ {
		limiter.OnBackoff(0)
		rate := limiter.Snapshot().CurrentRate
		require.LessOrEqual(t, rate, previous)
		require.GreaterOrEqual(t, rate, 0.1)
		previous = rate
	}
	require.Equal(t, 0.1, previous)
}

func TestLimiterBackoffSetsCooldownFromRetryAfter(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    5,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	start := ft.now
	limiter.OnBackoff(5 * time.Second)
	require.Equal(t, start.Add(5*time.Second), limiter.Snapshot().CooldownUntil)

	// Acquire must not return before the cooldown has fully elapsed, even
	// though tokens are available.
	require.NoError(t, limiter.Acquire(context.Background()))
	require.False(t, ft.now.Before(start.Add(5*time.Second)))
}

func TestLimiterCooldownFallbackUsesReducedRate(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:               "test",
		InitialRate:        4,
		MinRate:            0.1,
		MaxRate:            10,
		IncreaseStep:       1,
		DecreaseFactor:     0.5,
		CooldownMultiplier: 1,
	})

	start := ft.now
	limiter.OnBackoff(0)

	// New rate is 2.0, so the conservative cooldown is 1/2.0 = 500ms.
	require.Equal(t, start.Add(500*time.Millisecond), limiter.Snapshot().CooldownUntil)
}

func TestLimiterCooldownNeverShortened(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    5,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	start := ft.now
	limiter.OnBackoff(10 * time.Second)
	limiter.OnBackoff(1 * time.Second)
	require.Equal(t, start.Add(10*time.Second), limiter.Snapshot().CooldownUntil)
}

func TestLimiterAcquireConsumesTokenWithoutWaiting(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    5,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	before := limiter.Snapshot().Tokens
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Zero(t, ft.slept)
	require.Equal(t, before-1, limiter.Snapshot().Tokens)
}

func TestLimiterAcquireWaitsForNextToken(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    1,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	// The bucket starts with one second worth of tokens (1 token at 1 rps).
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Zero(t, ft.slept)

	require.NoError(t, limiter.Acquire(context.Background()))
	require.GreaterOrEqual(t, ft.slept, 900*time.Millisecond)
}

func TestLimiterTokensNeverExceedBurstCap(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    5,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
		BurstSeconds:   2,
	})

	// A long idle period accrues at most burstSeconds worth of tokens.
	ft.now = ft.now.Add(time.Hour)
	require.NoError(t, limiter.Acquire(context.Background()))

	snap := limiter.Snapshot()
	require.LessOrEqual(t, snap.Tokens, snap.CurrentRate*2)
	require.GreaterOrEqual(t, snap.Tokens, 0.0)
}

func TestLimiterBackoffClampsStaleBurst(t *testing.T) {
	limiter, ft := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    10,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
		BurstSeconds:   2,
	})

	// Fill the bucket to the old cap, then drop the rate.
	ft.now = ft.now.Add(time.Minute)
	limiter.mu.Lock()
	limiter.refill(ft.now)
	limiter.mu.Unlock()

	limiter.OnBackoff(0)
	snap := limiter.Snapshot()
	require.LessOrEqual(t, snap.Tokens, snap.CurrentRate*2)
}

func TestLimiterSnapshotIsIdempotent(t *testing.T) {
	limiter, _ := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    3,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	first := limiter.Snapshot()
	second := limiter.Snapshot()
	require.Equal(t, first, second)
}

func TestLimiterAcquireHonorsCancellation(t *testing.T) {
	limiter, _ := newTestLimiter(t, core.RateConfig{
		Name:           "test",
		InitialRate:    5,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
