package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core/registry"
)

func TestPacerIntegrationsHandler(t *testing.T) {
	SetPacerDeps(PacerDeps{Registry: registry.Builtin()})
	t.Cleanup(func() { SetPacerDeps(PacerDeps{}) })

	req := httptest.NewRequest(http.MethodGet, "/pacer/integrations", nil)
	rec := httptest.NewRecorder()
	PacerIntegrationsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body IntegrationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 3, body.Count)
	require.Equal(t, "fieldguide", body.Integrations[0].Name)
	require.Equal(t, "notion", body.Integrations[1].Name)
	require.Equal(t, "https://api.notion.com/v1", body.Integrations[1].BaseURL)
}

func TestPacerIntegrationsHandlerUnconfigured(t *testing.T) {
	SetPacerDeps(PacerDeps{})

	req := httptest.NewRequest(http.MethodGet, "/pacer/integrations", nil)
	rec := httptest.NewRecorder()
	PacerIntegrationsHandler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPacerEventsHandlerRequiresIntegration(t *testing.T) {
	SetPacerDeps(PacerDeps{Registry: registry.Builtin()})
	t.Cleanup(func() { SetPacerDeps(PacerDeps{}) })

	req := httptest.NewRequest(http.MethodGet, "/pacer/events", nil)
	rec := httptest.NewRecorder()
	PacerEventsHandler(rec, req)

	// Missing store reports unavailability before parameter validation.
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
