package metrics

import (
	"strconv"
	"time"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Outbound request metrics
	OutboundRequestsTotal   = "pacer_requests_total"
	OutboundRequestDuration = "pacer_request_duration_ms"

	// Pacing metrics
	BackoffsTotal   = "pacer_backoffs_total"
	CurrentRate     = "pacer_current_rate"
	CooldownActive  = "pacer_cooldown_active"
	RetriesExceeded = "pacer_retries_exhausted_total"

	// Circuit breaker metrics
	BreakerDenialsTotal = "pacer_breaker_denials_total"
	BreakerState        = "pacer_breaker_state"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordOutboundRequest records one guarded outbound request outcome.
func RecordOutboundRequest(integration string, statusCode int, elapsed time.Duration, failed bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	if failed {
		status = "failure"
	}

	labels := map[string]string{
		"integration": integration,
		"status":      status,
	}
	if statusCode != 0 {
		labels["http_status"] = strconv.Itoa(statusCode)
	}

	_ = observability.TelemetrySystem.Counter(OutboundRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(
		OutboundRequestDuration,
		elapsed,
		map[string]string{"integration": integration},
	)
}

// RecordBackoff records a backoff signal from an upstream.
func RecordBackoff(integration string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BackoffsTotal,
			1,
			map[string]string{"integration": integration},
		)
	}
}

// RecordRetriesExhausted records an aborted request whose backoff retries
// exceeded the bound.
func RecordRetriesExhausted(integration string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetriesExceeded,
			1,
			map[string]string{"integration": integration},
		)
	}
}

// RecordBreakerDenial records a fail-fast denial while the circuit is open.
func RecordBreakerDenial(integration string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerDenialsTotal,
			1,
			map[string]string{"integration": integration},
		)
	}
}

// SetPacerSnapshot publishes the limiter snapshot gauges for an integration.
func SetPacerSnapshot(integration string, snapshot core.LimiterSnapshot, now time.Time) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{"integration": integration}
	_ = observability.TelemetrySystem.Gauge(CurrentRate, snapshot.CurrentRate, labels)

	cooldown := 0.0
	if snapshot.InCooldown(now) {
		cooldown = 1.0
	}
	_ = observability.TelemetrySystem.Gauge(CooldownActive, cooldown, labels)
}

// SetBreakerState publishes the circuit state gauge for an integration.
// Closed is 0, open is 1, half-open is 2.
func SetBreakerState(integration string, state core.BreakerState) {
	if observability.TelemetrySystem == nil {
		return
	}

	value := 0.0
	switch state {
	case core.BreakerOpen:
		value = 1.0
	case core.BreakerHalfOpen:
		value = 2.0
	}

	_ = observability.TelemetrySystem.Gauge(
		BreakerState,
		value,
		map[string]string{"integration": integration},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
