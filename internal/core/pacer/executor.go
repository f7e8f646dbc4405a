package pacer

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/metrics"
)

// Request describes one outbound call for the transport capability.
type Request struct {
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the transport-level result descriptor. The executor only
// inspects the status code and headers; the body is carried through for the
// caller.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport is the send capability consumed by the executor. Implementations
// own connections, TLS, and serialization; the executor never constructs
// connections itself.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Executor runs one logical request through the acquire → send → classify →
// feedback loop, retrying on backoff signals up to a bound. Transport-level
// failures are propagated immediately and never retried at this layer.
type Executor struct {
	name         string
	limiter      *Limiter
	transport    Transport
	backoffCodes map[int]struct{}
	maxRetries   int
	logger       *zap.Logger
}

// NewExecutor wires a limiter and transport under the given rate config.
// The backoff status code set is consulted by exact membership.
func NewExecutor(limiter *Limiter, transport Transport, cfg core.RateConfig, logger *zap.Logger) *Executor {
	cfg = cfg.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	codes := make(map[int]struct{}, len(cfg.BackoffStatusCodes))
	for _, code := range cfg.BackoffStatusCodes {
		codes[code] = struct{}{}
	}

	return &Executor{
		name:         cfg.Name,
		limiter:      limiter,
		transport:    transport,
		backoffCodes: codes,
		maxRetries:   cfg.MaxRetriesOnBackoff,
		logger:       logger,
	}
}

// Limiter exposes the executor's limiter for snapshotting.
func (e *Executor) Limiter() *Limiter {
	return e.limiter
}

// Do executes one logical request. The retry counter is local to this call
// and the limiter receives exactly one feedback signal per attempt: either
// OnSuccess or OnBackoff, never both.
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	retries := 0
	for {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		resp, err := e.transport.Send(ctx, req)
		if err != nil {
			// Transport failures pass through unmodified; retrying them
			// is the caller's concern, not this loop's.
			return nil, err
		}

		if _, backoff := e.backoffCodes[resp.StatusCode]; !backoff {
			e.limiter.OnSuccess()
			return resp, nil
		}

		retries++
		retryAfter := retryAfterSeconds(resp.Header)
		e.limiter.OnBackoff(retryAfter)
		metrics.RecordBackoff(e.name)

		e.logger.Warn("backoff signal from upstream",
			zap.Int("status", resp.StatusCode),
			zap.Duration("retry_after", retryAfter),
			zap.Int("attempt", retries),
			zap.String("method", req.Method),
			zap.String("path", req.Path))

		if retries > e.maxRetries {
			return nil, &RetriesExhaustedError{
				Attempts:   retries,
				MaxRetries: e.maxRetries,
				StatusCode: resp.StatusCode,
				Method:     req.Method,
				Path:       req.Path,
			}
		}
	}
}

// retryAfterSeconds parses a numeric Retry-After header as seconds. Absent
// or non-numeric values yield zero, which the limiter treats as no hint.
func retryAfterSeconds(header http.Header) time.Duration {
	if header == nil {
		return 0
	}

	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
