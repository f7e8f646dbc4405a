package pacer

import (
	"fmt"
	"time"
)

// CircuitOpenError is returned before any transport attempt when the breaker
// denies a call. It is always recoverable by the caller.
type CircuitOpenError struct {
	// RetryIn is how long until the breaker will admit a trial call. Zero
	// means a half-open trial is already in flight.
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryIn > 0 {
		return fmt.Sprintf("circuit open, retry in %s", e.RetryIn.Round(time.Millisecond))
	}
	return "circuit open, trial call in flight"
}

// RetriesExhaustedError is returned when backoff retries exceed the
// configured bound for one logical request. The limiter's internal state is
// unaffected; the caller may give up or escalate.
type RetriesExhaustedError struct {
	Attempts   int
	MaxRetries int
	StatusCode int
	Method     string
	Path       string
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("exceeded max retries on backoff (%d) for %s %s (last status %d)",
		e.MaxRetries, e.Method, e.Path, e.StatusCode)
}
