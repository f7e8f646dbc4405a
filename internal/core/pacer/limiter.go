// Package pacer implements adaptive client-side admission control for
// rate-limited upstream APIs: a token-bucket limiter tuned by an
// Additive-Increase/Multiplicative-Decrease (AIMD) loop, a circuit breaker,
// and the request execution loop that feeds them.
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/ratepacer/ratepacer/internal/core"
)

// minAcquireWait bounds how tightly Acquire polls when the next token is
// imminent, so a very high rate cannot degenerate into a busy loop.
const minAcquireWait = 10 * time.Millisecond

// Limiter is an adaptive token-bucket rate limiter with AIMD tuning.
//
// Thread safety: all state is guarded by a single mutex. The mutex is only
// held while reading or mutating state, never across a sleep, so concurrent
// callers can make progress (and observe snapshots) while one caller waits
// for a token or for a cooldown to expire.
type Limiter struct {
	mu sync.Mutex

	minRate            float64
	maxRate            float64
	increaseStep       float64
	decreaseFactor     float64
	cooldownMultiplier float64
	burstSeconds       float64

	currentRate   float64
	tokens        float64
	lastRefill    time.Time
	cooldownUntil time.Time

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter builds a limiter from a validated, normalized rate config.
func NewLimiter(cfg core.RateConfig) (*Limiter, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		minRate:            cfg.MinRate,
		maxRate:            cfg.MaxRate,
		increaseStep:       cfg.IncreaseStep,
		decreaseFactor:     cfg.DecreaseFactor,
		cooldownMultiplier: cfg.CooldownMultiplier,
		burstSeconds:       cfg.BurstSeconds,
		currentRate:        cfg.InitialRate,
		clock:              func() time.Time { return time.Now() },
		sleep:              sleepWithContext,
	}

	// Start with one second worth of tokens so the first burst does not
	// have to wait out a cold bucket.
	l.tokens = l.currentRate
	l.lastRefill = l.clock()

	return l, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire blocks until a request permit is available and any active cooldown
// has expired. Cooldown takes strict precedence over token availability. The
// context aborts a pending wait; this is the only cancellation path, since
// cooldown windows can be long-lived.
func (l *Limiter) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock()

		var wait time.Duration
		if now.Before(l.cooldownUntil) {
			wait = l.cooldownUntil.Sub(now)
		} else {
			l.refill(now)
			if l.tokens >= 1 {
				l.tokens--
				l.mu.Unlock()
				return nil
			}

			missing := 1 - l.tokens
			wait = time.Duration(missing / l.currentRate * float64(time.Second))
			if wait < minAcquireWait {
				wait = minAcquireWait
			}
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// OnSuccess applies the additive-increase step, clamped to the configured
// maximum rate.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentRate = min(l.maxRate, l.currentRate+l.increaseStep)
	if limit := l.burstCap(); l.tokens > limit {
		l.tokens = limit
	}
}

// OnBackoff applies the multiplicative decrease and opens a cooldown window.
// retryAfter carries the upstream Retry-After hint; zero means the hint was
// absent, in which case the cooldown falls back to the inverse of the new,
// reduced rate scaled by the cooldown multiplier. An already-later cooldown
// is never shortened.
func (l *Limiter) OnBackoff(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentRate = max(l.minRate, l.currentRate*l.decreaseFactor)

	now := l.clock()
	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = time.Duration(1 / l.currentRate * l.cooldownMultiplier * float64(time.Second))
	}
	if until := now.Add(cooldown); until.After(l.cooldownUntil) {
		l.cooldownUntil = until
	}

	// A sudden rate drop must not leave a stale oversized burst allowance.
	if limit := l.burstCap(); l.tokens > limit {
		l.tokens = limit
	}
}

// Snapshot returns the current limiter internals without advancing the token
// clock, so polling it is side-effect-free.
func (l *Limiter) Snapshot() core.LimiterSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return core.LimiterSnapshot{
		CurrentRate:   l.currentRate,
		Tokens:        l.tokens,
		CooldownUntil: l.cooldownUntil,
	}
}

// refill accrues tokens for the elapsed time at the current rate. Caller
// must hold l.mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	l.tokens += elapsed * l.currentRate
	if limit := l.burstCap(); l.tokens > limit {
		l.tokens = limit
	}
	l.lastRefill = now
}

func (l *Limiter) burstCap() float64 {
	return l.currentRate * l.burstSeconds
}
