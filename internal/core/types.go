package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied by RateConfig.Normalize when a field is unset.
const (
	DefaultBurstSeconds        = 2.0
	DefaultCooldownMultiplier  = 1.0
	DefaultMaxRetriesOnBackoff = 20
	DefaultFailureThreshold    = 5
	DefaultOpenInterval        = 30 * time.Second
)

// RateConfig is the pacing configuration for a single upstream integration.
// All values are resolved once at construction; components never consult a
// process-wide registry at request time.
type RateConfig struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	InitialRate        float64 `json:"initial_rate" yaml:"initial_rate" mapstructure:"initial_rate"`
	MinRate            float64 `json:"min_rate" yaml:"min_rate" mapstructure:"min_rate"`
	MaxRate            float64 `json:"max_rate" yaml:"max_rate" mapstructure:"max_rate"`
	IncreaseStep       float64 `json:"increase_step" yaml:"increase_step" mapstructure:"increase_step"`
	DecreaseFactor     float64 `json:"decrease_factor" yaml:"decrease_factor" mapstructure:"decrease_factor"`
	CooldownMultiplier float64 `json:"cooldown_multiplier,omitempty" yaml:"cooldown_multiplier,omitempty" mapstructure:"cooldown_multiplier"`
	BurstSeconds       float64 `json:"burst_seconds,omitempty" yaml:"burst_seconds,omitempty" mapstructure:"burst_seconds"`

	BackoffStatusCodes  []int         `json:"backoff_status_codes,omitempty" yaml:"backoff_status_codes,omitempty" mapstructure:"backoff_status_codes"`
	MaxRetriesOnBackoff int           `json:"max_retries_on_backoff,omitempty" yaml:"max_retries_on_backoff,omitempty" mapstructure:"max_retries_on_backoff"`
	FailureThreshold    int           `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty" mapstructure:"failure_threshold"`
	OpenInterval        time.Duration `json:"open_interval,omitempty" yaml:"open_interval,omitempty" mapstructure:"open_interval"`

	// DocumentedLimitDesc is free text describing the vendor's documented
	// limits or how this configuration was chosen.
	DocumentedLimitDesc string `json:"documented_limit_desc,omitempty" yaml:"documented_limit_desc,omitempty" mapstructure:"documented_limit_desc"`
}

// Validate reports configuration errors that would make the pacer misbehave.
func (c RateConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("rate config name is required")
	}
	if c.InitialRate <= 0 {
		return fmt.Errorf("rate config %q: initial_rate must be > 0", c.Name)
	}
	if c.MinRate <= 0 {
		return fmt.Errorf("rate config %q: min_rate must be > 0", c.Name)
	}
	if c.MaxRate < c.MinRate {
		return fmt.Errorf("rate config %q: max_rate must be >= min_rate", c.Name)
	}
	if c.IncreaseStep <= 0 {
		return fmt.Errorf("rate config %q: increase_step must be > 0", c.Name)
	}
	if c.DecreaseFactor <= 0 || c.DecreaseFactor > 1 {
		return fmt.Errorf("rate config %q: decrease_factor must be in (0, 1]", c.Name)
	}
	if c.BurstSeconds < 0 {
		return fmt.Errorf("rate config %q: burst_seconds must be >= 0", c.Name)
	}
	return nil
}

// Normalize returns a copy with documented defaults filled in for unset
// optional fields.
func (c RateConfig) Normalize() RateConfig {
	if c.BurstSeconds == 0 {
		c.BurstSeconds = DefaultBurstSeconds
	}
	if c.CooldownMultiplier == 0 {
		c.CooldownMultiplier = DefaultCooldownMultiplier
	}
	if len(c.BackoffStatusCodes) == 0 {
		c.BackoffStatusCodes = []int{429}
	}
	if c.MaxRetriesOnBackoff == 0 {
		c.MaxRetriesOnBackoff = DefaultMaxRetriesOnBackoff
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.OpenInterval == 0 {
		c.OpenInterval = DefaultOpenInterval
	}
	return c
}

// BreakerState identifies a circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// LimiterSnapshot is a side-effect-free projection of limiter internals,
// intended for metrics and logging.
type LimiterSnapshot struct {
	CurrentRate   float64   `json:"current_rate"`
	Tokens        float64   `json:"tokens"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// InCooldown reports whether the snapshot shows an active cooldown at now.
func (s LimiterSnapshot) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// Kinds of request failure carried on RequestEvent.ErrorKind.
const (
	ErrorKindCircuitOpen      = "circuit_open"
	ErrorKindRetriesExhausted = "retries_exhausted"
	ErrorKindTransport        = "transport"
	ErrorKindCancelled        = "cancelled"
)

// RequestEvent describes one guarded logical request. Exactly one event is
// emitted per request, including fail-fast denials.
type RequestEvent struct {
	EventID     string          `json:"event_id"`
	Integration string          `json:"integration"`
	TenantID    string          `json:"tenant_id,omitempty"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	StatusCode  int             `json:"status_code,omitempty"`
	Elapsed     time.Duration   `json:"elapsed"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Snapshot    LimiterSnapshot `json:"rate_snapshot"`
	Context     map[string]any  `json:"context,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// PacerState is the persisted projection of one integration's pacer, written
// opportunistically for operator inspection. Pacing decisions are always made
// from the in-memory state, never from this record.
type PacerState struct {
	CurrentRate   float64      `json:"current_rate"`
	Tokens        float64      `json:"tokens"`
	CooldownUntil *time.Time   `json:"cooldown_until,omitempty"`
	BreakerState  BreakerState `json:"breaker_state"`
	FailureCount  int          `json:"failure_count"`
	LastBackoffAt *time.Time   `json:"last_backoff_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
