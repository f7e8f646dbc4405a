package pacer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core"
)

// scriptedTransport replays a fixed sequence of responses.
type scriptedTransport struct {
	responses []*Response
	errs      []error
	calls     int
}

func (s *scriptedTransport) Send(ctx context.Context, req Request) (*Response, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	if s.errs != nil && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.responses[idx], nil
}

func statusResponse(code int, header http.Header) *Response {
	return &Response{StatusCode: code, Header: header}
}

func testRateConfig() core.RateConfig {
	return core.RateConfig{
		Name:           "test",
		BaseURL:        "https://api.example.com",
		InitialRate:    8,
		MinRate:        0.1,
		MaxRate:        10,
		IncreaseStep:   1,
		DecreaseFactor: 0.5,
	}
}

func newTestExecutor(t *testing.T, cfg core.RateConfig, transport Transport) (*Executor, *fakeTime) {
	t.Helper()

	limiter, err := NewLimiter(cfg)
	require.NoError(t, err)
	ft := &fakeTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ft.install(limiter)

	return NewExecutor(limiter, transport, cfg, nil), ft
}

func TestExecutorSuccessFeedsLimiter(t *testing.T) {
	transport := &scriptedTransport{responses: []*Response{statusResponse(200, nil)}}
	executor, _ := newTestExecutor(t, testRateConfig(), transport)

	resp, err := executor.Do(context.Background(), Request{Method: "GET", Path: "/v1/items"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, transport.calls)
	require.Equal(t, 9.0, executor.Limiter().Snapshot().CurrentRate)
}

func TestExecutorRetriesOnBackoffThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{responses: []*Response{
		statusResponse(429, nil),
		statusResponse(429, nil),
		statusResponse(200, nil),
	}}
	executor, _ := newTestExecutor(t, testRateConfig(), transport)

	resp, err := executor.Do(context.Background(), Request{Method: "GET", Path: "/v1/items"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 3, transport.calls)

	// 8 halved twice then increased once: 8 -> 4 -> 2 -> 3.
	require.Equal(t, 3.0, executor.Limiter().Snapshot().CurrentRate)
}

func TestExecutorRetriesExhausted(t *testing.T) {
	cfg := testRateConfig()
	cfg.BackoffStatusCodes = []int{429, 503}
	cfg.MaxRetriesOnBackoff = 2

	transport := &scriptedTransport{responses: []*Response{statusResponse(429, nil)}}
	executor, _ := newTestExecutor(t, cfg, transport)

	_, err := executor.Do(context.Background(), Request{Method: "GET", Path: "/v1/items"})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 2, exhausted.MaxRetries)
	require.Equal(t, 429, exhausted.StatusCode)

	// Three attempts were sent and the limiter backed off on every one of
	// them: 8 -> 4 -> 2 -> 1.
	require.Equal(t, 3, transport.calls)
	require.Equal(t, 1.0, executor.Limiter().Snapshot().CurrentRate)
}

func TestExecutorCustomBackoffCodesExactMembership(t *testing.T) {
	cfg := testRateConfig()
	cfg.BackoffStatusCodes = []int{429, 503}

	transport := &scriptedTransport{responses: []*Response{
		statusResponse(503, nil),
		statusResponse(500, nil),
	}}
	executor, _ := newTestExecutor(t, cfg, transport)

	// 503 is a backoff signal; 500 is not in the set, so it is returned to
	// the caller as a terminal response.
	resp, err := executor.Do(context.Background(), Request{Method: "POST", Path: "/v1/items"})
	require.NoError(t, err)
	require.Equal(t, 500, resp.StatusCode)
	require.Equal(t, 2, transport.calls)
}

func TestExecutorTransportFailurePropagatesWithoutRetry(t *testing.T) {
	sendErr := errors.New("connection reset")
	transport := &scriptedTransport{
		responses: []*Response{nil},
		errs:      []error{sendErr},
	}
	executor, _ := newTestExecutor(t, testRateConfig(), transport)

	before := executor.Limiter().Snapshot().CurrentRate
	_, err := executor.Do(context.Background(), Request{Method: "GET", Path: "/v1/items"})
	require.ErrorIs(t, err, sendErr)
	require.Equal(t, 1, transport.calls)

	// The limiter received no feedback for a transport failure.
	require.Equal(t, before, executor.Limiter().Snapshot().CurrentRate)
}

func TestExecutorHonorsRetryAfterHeader(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")

	transport := &scriptedTransport{responses: []*Response{
		statusResponse(429, header),
		statusResponse(200, nil),
	}}
	executor, ft := newTestExecutor(t, testRateConfig(), transport)

	start := ft.now
	resp, err := executor.Do(context.Background(), Request{Method: "GET", Path: "/v1/items"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	// The second acquire waited out the full Retry-After window.
	require.False(t, ft.now.Before(start.Add(7*time.Second)))
}

func TestRetryAfterSeconds(t *testing.T) {
	header := http.Header{}
	require.Zero(t, retryAfterSeconds(nil))
	require.Zero(t, retryAfterSeconds(header))

	header.Set("Retry-After", "2.5")
	require.Equal(t, 2500*time.Millisecond, retryAfterSeconds(header))

	header.Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
	require.Zero(t, retryAfterSeconds(header))

	header.Set("Retry-After", "-3")
	require.Zero(t, retryAfterSeconds(header))
}
