package pacer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core"
)

func newTestBreaker(threshold int, interval time.Duration) (*Breaker, *time.Time) {
	breaker := NewBreaker(threshold, interval, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker.clock = func() time.Time { return now }
	return breaker, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)
	require.Equal(t, core.BreakerClosed, breaker.State())
	require.NoError(t, breaker.Permit())
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	breaker.Record(false)
	breaker.Record(false)
	require.Equal(t, core.BreakerClosed, breaker.State())
	require.Equal(t, 2, breaker.FailureCount())

	breaker.Record(false)
	require.Equal(t, core.BreakerOpen, breaker.State())
	require.Zero(t, breaker.FailureCount())

	err := breaker.Permit()
	var denied *CircuitOpenError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, time.Minute, denied.RetryIn)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	breaker.Record(false)
	breaker.Record(false)
	breaker.Record(true)
	require.Zero(t, breaker.FailureCount())

	breaker.Record(false)
	breaker.Record(false)
	require.Equal(t, core.BreakerClosed, breaker.State())
}

func TestBreakerHalfOpenAfterIntervalThenReopens(t *testing.T) {
	breaker, now := newTestBreaker(3, 60*time.Second)
	start := *now

	// Failures at t=0, t=1, t=2 trip the breaker at t=2.
	breaker.Record(false)
	*now = start.Add(1 * time.Second)
	breaker.Record(false)
	*now = start.Add(2 * time.Second)
	breaker.Record(false)
	require.Equal(t, core.BreakerOpen, breaker.State())

	// Still open before the interval has elapsed.
	*now = start.Add(61 * time.Second)
	require.Error(t, breaker.Permit())

	// At t=62 the interval from openedAt=2 has elapsed: half-open, one
	// trial admitted.
	*now = start.Add(62 * time.Second)
	require.NoError(t, breaker.Permit())
	require.Equal(t, core.BreakerHalfOpen, breaker.State())

	// The failing trial re-opens with a fresh interval.
	breaker.Record(false)
	require.Equal(t, core.BreakerOpen, breaker.State())
	require.Equal(t, start.Add(62*time.Second), breaker.openedAt)

	*now = start.Add(121 * time.Second)
	require.Error(t, breaker.Permit())
	*now = start.Add(122 * time.Second)
	require.NoError(t, breaker.Permit())
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	breaker, now := newTestBreaker(1, time.Minute)
	start := *now

	breaker.Record(false)
	require.Equal(t, core.BreakerOpen, breaker.State())

	*now = start.Add(time.Minute)
	require.NoError(t, breaker.Permit())

	// A second caller is denied while the trial is in flight.
	err := breaker.Permit()
	var denied *CircuitOpenError
	require.ErrorAs(t, err, &denied)

	// A successful trial closes the breaker and resets the count.
	breaker.Record(true)
	require.Equal(t, core.BreakerClosed, breaker.State())
	require.Zero(t, breaker.FailureCount())
	require.NoError(t, breaker.Permit())
}

func TestBreakerAbortTrialReadmitsNextCaller(t *testing.T) {
	breaker, now := newTestBreaker(1, time.Minute)
	start := *now

	breaker.Record(false)
	*now = start.Add(time.Minute)
	require.NoError(t, breaker.Permit())
	require.Equal(t, core.BreakerHalfOpen, breaker.State())

	// Abandoning the trial re-arms it instead of recording an outcome.
	breaker.AbortTrial()
	require.Equal(t, core.BreakerHalfOpen, breaker.State())
	require.NoError(t, breaker.Permit())

	breaker.Record(true)
	require.Equal(t, core.BreakerClosed, breaker.State())
}

func TestBreakerAbortTrialIsNoOpWhileClosed(t *testing.T) {
	breaker, _ := newTestBreaker(3, time.Minute)

	breaker.Record(false)
	breaker.AbortTrial()
	require.Equal(t, core.BreakerClosed, breaker.State())
	require.Equal(t, 1, breaker.FailureCount())
}

func TestBreakerDefaultsAppliedForZeroConfig(t *testing.T) {
	breaker := NewBreaker(0, 0, nil)
	require.Equal(t, core.DefaultFailureThreshold, breaker.failureThreshold)
	require.Equal(t, core.DefaultOpenInterval, breaker.openInterval)
}
