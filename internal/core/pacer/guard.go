package pacer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
)

// EventHandler receives one RequestEvent per guarded logical request.
// Handlers are fire-and-forget: panics are recovered and a slow or failing
// handler never fails the request.
type EventHandler func(event core.RequestEvent)

// FailureClassifier decides whether an outcome counts as a failure for the
// circuit breaker. resp may be nil when err is non-nil.
type FailureClassifier func(resp *Response, err error) bool

// Guard composes the executor with a circuit breaker: it fails fast while
// the breaker is open, records every outcome, and emits one observability
// event per logical request. It performs no retries of its own.
type Guard struct {
	Name       string
	TenantID   string
	Executor   *Executor
	Breaker    *Breaker
	Handlers   []EventHandler
	Classifier FailureClassifier
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Do runs one guarded logical request. A breaker denial surfaces as a
// CircuitOpenError before the limiter or transport are touched.
func (g *Guard) Do(ctx context.Context, req Request) (*Response, error) {
	return g.DoWithContext(ctx, req, nil)
}

// DoWithContext is Do with extra caller fields (correlation IDs, job
// identifiers) attached to the emitted event.
func (g *Guard) DoWithContext(ctx context.Context, req Request, fields map[string]any) (*Response, error) {
	if err := g.Breaker.Permit(); err != nil {
		g.emit(core.RequestEvent{
			EventID:     uuid.New().String(),
			Integration: g.Name,
			TenantID:    g.TenantID,
			Method:      req.Method,
			Path:        req.Path,
			Error:       err.Error(),
			ErrorKind:   core.ErrorKindCircuitOpen,
			Snapshot:    g.Executor.Limiter().Snapshot(),
			Context:     fields,
			CompletedAt: g.now(),
		})
		return nil, err
	}

	start := g.now()
	resp, err := g.Executor.Do(ctx, req)
	elapsed := g.now().Sub(start)

	// Caller cancellation says nothing about upstream health: the breaker
	// records no outcome, and an interrupted half-open trial is re-armed.
	if isCancellation(err) {
		g.Breaker.AbortTrial()
	} else {
		failure := g.classify(resp, err)
		g.Breaker.Record(!failure)
	}

	event := core.RequestEvent{
		EventID:     uuid.New().String(),
		Integration: g.Name,
		TenantID:    g.TenantID,
		Method:      req.Method,
		Path:        req.Path,
		Elapsed:     elapsed,
		Snapshot:    g.Executor.Limiter().Snapshot(),
		Context:     fields,
		CompletedAt: g.now(),
	}
	if resp != nil {
		event.StatusCode = resp.StatusCode
	}
	if err != nil {
		event.Error = err.Error()
		event.ErrorKind = errorKind(err)
	}
	g.emit(event)

	return resp, err
}

// Snapshot exposes the underlying limiter snapshot.
func (g *Guard) Snapshot() core.LimiterSnapshot {
	return g.Executor.Limiter().Snapshot()
}

// BreakerState exposes the current breaker state.
func (g *Guard) BreakerState() core.BreakerState {
	return g.Breaker.State()
}

func (g *Guard) classify(resp *Response, err error) bool {
	if g.Classifier != nil {
		return g.Classifier(resp, err)
	}
	return DefaultFailureClassifier(resp, err)
}

// DefaultFailureClassifier counts transport failures, exhausted retries, and
// server-error statuses against the breaker. Caller-initiated cancellation is
// not an upstream failure. A backoff signal that eventually resolved into a
// success has already been classified as a success.
func DefaultFailureClassifier(resp *Response, err error) bool {
	if err != nil {
		return !isCancellation(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

func errorKind(err error) string {
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return core.ErrorKindRetriesExhausted
	}
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return core.ErrorKindCircuitOpen
	}
	if isCancellation(err) {
		return core.ErrorKindCancelled
	}
	return core.ErrorKindTransport
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (g *Guard) emit(event core.RequestEvent) {
	for _, handler := range g.Handlers {
		if handler == nil {
			continue
		}
		g.safeEmit(handler, event)
	}
}

func (g *Guard) safeEmit(handler EventHandler, event core.RequestEvent) {
	defer func() {
		if r := recover(); r != nil && g.Logger != nil {
			g.Logger.Warn("request event handler panicked",
				zap.Any("panic", r),
				zap.String("integration", g.Name))
		}
	}()
	handler(event)
}

func (g *Guard) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}
