package pacer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core"
)

func newTestGuard(t *testing.T, cfg core.RateConfig, transport Transport) (*Guard, *fakeTime, *[]core.RequestEvent) {
	t.Helper()

	limiter, err := NewLimiter(cfg)
	require.NoError(t, err)
	ft := &fakeTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ft.install(limiter)

	breaker := NewBreaker(cfg.FailureThreshold, cfg.OpenInterval, nil)
	breaker.clock = func() time.Time { return ft.now }

	events := &[]core.RequestEvent{}
	guard := &Guard{
		Name:     cfg.Name,
		TenantID: "acme",
		Executor: NewExecutor(limiter, transport, cfg, nil),
		Breaker:  breaker,
		Handlers: []EventHandler{func(e core.RequestEvent) { *events = append(*events, e) }},
		Clock:    func() time.Time { return ft.now },
	}
	return guard, ft, events
}

func TestGuardSuccessEmitsOneEvent(t *testing.T) {
	transport := &scriptedTransport{responses: []*Response{statusResponse(200, nil)}}
	guard, _, events := newTestGuard(t, testRateConfig(), transport)

	resp, err := guard.DoWithContext(context.Background(), Request{Method: "GET", Path: "/v1/users"}, map[string]any{"job": "sync-42"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	require.Len(t, *events, 1)
	event := (*events)[0]
	require.NotEmpty(t, event.EventID)
	require.Equal(t, "test", event.Integration)
	require.Equal(t, "acme", event.TenantID)
	require.Equal(t, "GET", event.Method)
	require.Equal(t, "/v1/users", event.Path)
	require.Equal(t, 200, event.StatusCode)
	require.Empty(t, event.Error)
	require.Equal(t, "sync-42", event.Context["job"])
	require.Equal(t, guard.Snapshot().CurrentRate, event.Snapshot.CurrentRate)
	require.Equal(t, core.BreakerClosed, guard.BreakerState())
}

func TestGuardFailsFastWhileOpen(t *testing.T) {
	cfg := testRateConfig()
	cfg.FailureThreshold = 1
	cfg.OpenInterval = time.Minute

	transport := &scriptedTransport{responses: []*Response{statusResponse(500, nil)}}
	guard, _, events := newTestGuard(t, cfg, transport)

	// One server error trips the breaker.
	resp, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, 500, resp.StatusCode)
	require.Equal(t, core.BreakerOpen, guard.BreakerState())

	// The next call is denied before the transport is touched, and the
	// denial still produces an event.
	_, err = guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	var denied *CircuitOpenError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, 1, transport.calls)

	require.Len(t, *events, 2)
	require.Contains(t, (*events)[1].Error, "circuit open")
	require.Equal(t, core.ErrorKindCircuitOpen, (*events)[1].ErrorKind)
	require.Zero(t, (*events)[1].StatusCode)
}

func TestGuardHalfOpenTrialRecovers(t *testing.T) {
	cfg := testRateConfig()
	cfg.FailureThreshold = 1
	cfg.OpenInterval = time.Minute

	transport := &scriptedTransport{responses: []*Response{
		statusResponse(500, nil),
		statusResponse(200, nil),
	}}
	guard, ft, _ := newTestGuard(t, cfg, transport)

	_, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, core.BreakerOpen, guard.BreakerState())

	ft.now = ft.now.Add(2 * time.Minute)
	resp, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, core.BreakerClosed, guard.BreakerState())
}

func TestGuardCancelledTrialDoesNotCloseBreaker(t *testing.T) {
	cfg := testRateConfig()
	cfg.FailureThreshold = 1
	cfg.OpenInterval = time.Minute

	transport := &scriptedTransport{responses: []*Response{
		statusResponse(500, nil),
		statusResponse(200, nil),
	}}
	guard, ft, events := newTestGuard(t, cfg, transport)

	_, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, core.BreakerOpen, guard.BreakerState())

	// The trial caller abandons the request before any upstream attempt is
	// made. The breaker must not treat that as a successful trial.
	ft.now = ft.now.Add(2 * time.Minute)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = guard.Do(cancelled, Request{Method: "GET", Path: "/v1/users"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, transport.calls)
	require.Equal(t, core.BreakerHalfOpen, guard.BreakerState())

	require.Len(t, *events, 2)
	require.Equal(t, core.ErrorKindCancelled, (*events)[1].ErrorKind)

	// The next caller gets the re-armed trial; its success closes the
	// breaker through the normal path.
	resp, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, core.BreakerClosed, guard.BreakerState())
}

func TestGuardCancellationPreservesFailureCount(t *testing.T) {
	cfg := testRateConfig()
	cfg.FailureThreshold = 2

	transport := &scriptedTransport{responses: []*Response{
		statusResponse(500, nil),
		statusResponse(500, nil),
	}}
	guard, _, _ := newTestGuard(t, cfg, transport)

	_, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, 1, guard.Breaker.FailureCount())

	// A cancelled call in between must not reset the consecutive count.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = guard.Do(cancelled, Request{Method: "GET", Path: "/v1/users"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, guard.Breaker.FailureCount())

	_, err = guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, core.BreakerOpen, guard.BreakerState())
}

func TestGuardRetriesExhaustedCountsAsFailure(t *testing.T) {
	cfg := testRateConfig()
	cfg.FailureThreshold = 1
	cfg.MaxRetriesOnBackoff = 1

	transport := &scriptedTransport{responses: []*Response{statusResponse(429, nil)}}
	guard, _, events := newTestGuard(t, cfg, transport)

	_, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, core.BreakerOpen, guard.BreakerState())

	require.Len(t, *events, 1)
	require.NotEmpty(t, (*events)[0].Error)
	require.Equal(t, core.ErrorKindRetriesExhausted, (*events)[0].ErrorKind)
}

func TestGuardHandlerPanicDoesNotFailRequest(t *testing.T) {
	transport := &scriptedTransport{responses: []*Response{statusResponse(200, nil)}}
	guard, _, events := newTestGuard(t, testRateConfig(), transport)
	guard.Handlers = append([]EventHandler{func(core.RequestEvent) { panic("handler bug") }}, guard.Handlers...)

	resp, err := guard.Do(context.Background(), Request{Method: "GET", Path: "/v1/users"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Len(t, *events, 1)
}

func TestDefaultFailureClassifier(t *testing.T) {
	require.False(t, DefaultFailureClassifier(statusResponse(200, nil), nil))
	require.False(t, DefaultFailureClassifier(statusResponse(404, nil), nil))
	require.True(t, DefaultFailureClassifier(statusResponse(500, nil), nil))
	require.True(t, DefaultFailureClassifier(statusResponse(503, nil), nil))
	require.True(t, DefaultFailureClassifier(nil, errors.New("dial tcp: refused")))
	require.False(t, DefaultFailureClassifier(nil, context.Canceled))
	require.False(t, DefaultFailureClassifier(nil, context.DeadlineExceeded))
}
