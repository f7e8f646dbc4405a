// Package transport implements the outbound HTTP send capability and the
// client factory that assembles a fully guarded pacer for an integration.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/pacer"
	"github.com/ratepacer/ratepacer/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPTransport sends requests against a single base URL. It owns the
// connection pool and serialization; pacing and retries live above it.
type HTTPTransport struct {
	BaseURL   string
	Client    *http.Client
	Headers   http.Header
	UserAgent string
}

// Send performs one HTTP exchange. Network and protocol errors are returned
// unmodified so the caller can inspect them.
func (t *HTTPTransport) Send(ctx context.Context, req pacer.Request) (*pacer.Response, error) {
	if t == nil || strings.TrimSpace(t.BaseURL) == "" {
		return nil, errors.New("http transport is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := url.Parse(strings.TrimRight(t.BaseURL, "/"))
	if err != nil {
		return nil, err
	}
	target := base.JoinPath(strings.TrimLeft(req.Path, "/")).String()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target, body)
	if err != nil {
		return nil, err
	}
	for key, values := range t.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if t.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &pacer.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       payload,
	}, nil
}

// ClientOptions tune the assembly performed by NewClient. The zero value is
// usable.
type ClientOptions struct {
	TenantID   string
	HTTPClient *http.Client
	Headers    http.Header
	UserAgent  string
	Handlers   []pacer.EventHandler
	Classifier pacer.FailureClassifier
	Logger     *zap.Logger
}

// NewClient assembles a guarded client for cfg: limiter, breaker, executor,
// and HTTP transport wired together. The returned guard is safe for
// concurrent use.
func NewClient(cfg core.RateConfig, opts ClientOptions) (*pacer.Guard, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("rate config base_url is required")
	}

	limiter, err := pacer.NewLimiter(cfg)
	if err != nil {
		return nil, err
	}

	cfg = cfg.Normalize()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpTransport := &HTTPTransport{
		BaseURL:   cfg.BaseURL,
		Client:    opts.HTTPClient,
		Headers:   opts.Headers,
		UserAgent: opts.UserAgent,
	}

	guard := &pacer.Guard{
		Name:       cfg.Name,
		TenantID:   opts.TenantID,
		Executor:   pacer.NewExecutor(limiter, httpTransport, cfg, logger.Named(cfg.Name)),
		Breaker:    pacer.NewBreaker(cfg.FailureThreshold, cfg.OpenInterval, logger.Named(cfg.Name)),
		Handlers:   opts.Handlers,
		Classifier: opts.Classifier,
		Logger:     logger,
	}

	// Metrics are a no-op until telemetry is initialized, so every guard can
	// carry the observer.
	guard.Handlers = append(guard.Handlers, metrics.GuardObserver(guard.BreakerState))

	return guard, nil
}
