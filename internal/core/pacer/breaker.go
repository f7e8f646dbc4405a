package pacer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
)

// Breaker is a three-state circuit breaker guarding one upstream target.
//
// Thread safety: a single mutex serializes Permit and Record so that state
// transitions are linearizable across concurrent callers.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openInterval     time.Duration

	state        core.BreakerState
	failureCount int
	openedAt     time.Time

	// probing is true while the single half-open trial call is in flight.
	probing bool

	clock  func() time.Time
	logger *zap.Logger
}

// NewBreaker builds a closed breaker. A non-positive threshold or interval
// falls back to the documented defaults.
func NewBreaker(failureThreshold int, openInterval time.Duration, logger *zap.Logger) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = core.DefaultFailureThreshold
	}
	if openInterval <= 0 {
		openInterval = core.DefaultOpenInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		failureThreshold: failureThreshold,
		openInterval:     openInterval,
		state:            core.BreakerClosed,
		clock:            func() time.Time { return time.Now() },
		logger:           logger,
	}
}

// Permit reports whether a call may proceed. While open, it denies
// immediately until the open interval has elapsed, then transitions to
// half-open and admits exactly one trial call. The transition is lazy; no
// timer drives it.
func (b *Breaker) Permit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()

	switch b.state {
	case core.BreakerClosed:
		return nil

	case core.BreakerOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.openInterval {
			return &CircuitOpenError{RetryIn: b.openInterval - elapsed}
		}
		b.state = core.BreakerHalfOpen
		b.probing = true
		b.logger.Info("circuit breaker half-open, admitting trial call")
		return nil

	case core.BreakerHalfOpen:
		if b.probing {
			return &CircuitOpenError{RetryIn: 0}
		}
		b.probing = true
		return nil

	default:
		return &CircuitOpenError{RetryIn: b.openInterval}
	}
}

// Record feeds one call outcome into the state machine.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case core.BreakerClosed:
		if success {
			b.failureCount = 0
			return
		}
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.trip()
		}

	case core.BreakerHalfOpen:
		b.probing = false
		if success {
			b.state = core.BreakerClosed
			b.failureCount = 0
			b.logger.Info("circuit breaker closed after successful trial")
			return
		}
		b.trip()

	case core.BreakerOpen:
		// A call admitted before the trip finished late; the breaker is
		// already open, nothing to account.
	}
}

// AbortTrial discards an in-flight half-open trial without recording an
// outcome, re-admitting the next trial caller. Used when a call was
// abandoned before the upstream could be judged. In any other state it is a
// no-op, leaving the consecutive failure count untouched.
func (b *Breaker) AbortTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == core.BreakerHalfOpen && b.probing {
		b.probing = false
		b.logger.Info("circuit breaker trial aborted before completion")
	}
}

// trip opens the breaker with a fresh interval. Caller must hold b.mu.
func (b *Breaker) trip() {
	b.state = core.BreakerOpen
	b.openedAt = b.clock()
	b.failureCount = 0
	b.logger.Warn("circuit breaker opened",
		zap.Duration("open_interval", b.openInterval))
}

// State returns the current breaker state without side effects.
func (b *Breaker) State() core.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count while closed.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
