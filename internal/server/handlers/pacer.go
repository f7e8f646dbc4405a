package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/registry"
	"github.com/ratepacer/ratepacer/internal/core/store"
	apperrors "github.com/ratepacer/ratepacer/internal/errors"
)

// PacerDeps are the dependencies of the pacer inspection endpoints, injected
// at server construction.
type PacerDeps struct {
	Registry *registry.Registry
	Store    *store.Store
}

var pacerDeps PacerDeps

// SetPacerDeps injects the registry and store used by the pacer endpoints.
func SetPacerDeps(deps PacerDeps) {
	pacerDeps = deps
}

// IntegrationEntry is one row of the integrations listing.
type IntegrationEntry struct {
	Name                string  `json:"name"`
	BaseURL             string  `json:"base_url"`
	InitialRate         float64 `json:"initial_rate"`
	MinRate             float64 `json:"min_rate"`
	MaxRate             float64 `json:"max_rate"`
	DocumentedLimitDesc string  `json:"documented_limit_desc,omitempty"`
}

// IntegrationsResponse wraps the integrations listing.
type IntegrationsResponse struct {
	Integrations []IntegrationEntry `json:"integrations"`
	Count        int                `json:"count"`
}

// PacerIntegrationsHandler lists the configured integrations.
func PacerIntegrationsHandler(w http.ResponseWriter, r *http.Request) {
	if pacerDeps.Registry == nil {
		respondWithError(w, r, apperrors.NewInternalError("integration registry is not configured"))
		return
	}

	configs := pacerDeps.Registry.List()
	entries := make([]IntegrationEntry, 0, len(configs))
	for _, cfg := range configs {
		entries = append(entries, IntegrationEntry{
			Name:                cfg.Name,
			BaseURL:             cfg.BaseURL,
			InitialRate:         cfg.InitialRate,
			MinRate:             cfg.MinRate,
			MaxRate:             cfg.MaxRate,
			DocumentedLimitDesc: cfg.DocumentedLimitDesc,
		})
	}

	writeJSON(w, IntegrationsResponse{Integrations: entries, Count: len(entries)})
}

// PacerStateEntry is one row of the persisted pacer state listing.
type PacerStateEntry struct {
	Integration   string     `json:"integration"`
	TenantID      string     `json:"tenant_id,omitempty"`
	CurrentRate   float64    `json:"current_rate"`
	Tokens        float64    `json:"tokens"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	BreakerState  string     `json:"breaker_state"`
	FailureCount  int        `json:"failure_count"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PacerStateResponse wraps the persisted pacer state listing.
type PacerStateResponse struct {
	States []PacerStateEntry `json:"states"`
	Count  int               `json:"count"`
}

// PacerStateHandler lists persisted pacer state, filterable by integration
// or prefix. Without a filter it lists everything.
func PacerStateHandler(w http.ResponseWriter, r *http.Request) {
	if pacerDeps.Store == nil {
		respondWithError(w, r, apperrors.NewInternalError("pacer state store is not configured"))
		return
	}

	query := store.PacerQuery{
		Integration: strings.TrimSpace(r.URL.Query().Get("integration")),
		Prefix:      strings.TrimSpace(r.URL.Query().Get("prefix")),
	}
	if query.Integration == "" && query.Prefix == "" {
		query.All = true
	}

	entries, err := pacerDeps.Store.ListPacerStates(r.Context(), query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list pacer state"))
		return
	}

	rows := make([]PacerStateEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, PacerStateEntry{
			Integration:   entry.Integration,
			TenantID:      entry.TenantID,
			CurrentRate:   entry.State.CurrentRate,
			Tokens:        entry.State.Tokens,
			CooldownUntil: entry.State.CooldownUntil,
			BreakerState:  string(entry.State.BreakerState),
			FailureCount:  entry.State.FailureCount,
			UpdatedAt:     entry.State.UpdatedAt,
		})
	}

	writeJSON(w, PacerStateResponse{States: rows, Count: len(rows)})
}

// PacerEventsResponse wraps the recent request events listing.
type PacerEventsResponse struct {
	Integration string              `json:"integration"`
	Events      []core.RequestEvent `json:"events"`
	Count       int                 `json:"count"`
}

// PacerEventsHandler lists the most recent request events for one
// integration.
func PacerEventsHandler(w http.ResponseWriter, r *http.Request) {
	if pacerDeps.Store == nil {
		respondWithError(w, r, apperrors.NewInternalError("pacer state store is not configured"))
		return
	}

	integration := strings.TrimSpace(r.URL.Query().Get("integration"))
	if integration == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("integration query parameter is required"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	events, err := pacerDeps.Store.RecentRequestEvents(r.Context(), integration, limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list request events"))
		return
	}

	writeJSON(w, PacerEventsResponse{Integration: integration, Events: events, Count: len(events)})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
