package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/core"
	"github.com/ratepacer/ratepacer/internal/core/store"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("  JSON ")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("markdown")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	_, err = ParseFormat("yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported output format")
}

func TestTableFormatterIntegrations(t *testing.T) {
	configs := []core.RateConfig{
		{
			Name:                "notion",
			BaseURL:             "https://api.notion.com/v1",
			InitialRate:         2.0,
			MinRate:             0.3,
			MaxRate:             3.5,
			DocumentedLimitDesc: "Average 3 requests per second per integration",
		},
	}

	rendered, err := (&TableFormatter{}).FormatIntegrations(configs)
	require.NoError(t, err)
	require.Contains(t, rendered, "notion")
	require.Contains(t, rendered, "https://api.notion.com/v1")
	require.Contains(t, rendered, "2.00 rps")
	require.Contains(t, rendered, "1 integration(s)")
}

func TestTableFormatterStates(t *testing.T) {
	cooldown := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []store.PacerEntry{
		{
			Integration: "vanta",
			State: core.PacerState{
				CurrentRate:   1.5,
				Tokens:        0.75,
				CooldownUntil: &cooldown,
				BreakerState:  core.BreakerOpen,
				FailureCount:  5,
				UpdatedAt:     cooldown,
			},
		},
	}

	rendered, err := (&TableFormatter{}).FormatStates(entries)
	require.NoError(t, err)
	require.Contains(t, rendered, "vanta")
	require.Contains(t, rendered, "1.50 rps")
	require.Contains(t, rendered, "open")
	require.Contains(t, rendered, "2026-03-01T12:00:00Z")
}

func TestJSONFormatterEvents(t *testing.T) {
	events := []core.RequestEvent{
		{
			EventID:     "evt-1",
			Integration: "notion",
			Method:      "GET",
			Path:        "/users",
			StatusCode:  200,
			Snapshot:    core.LimiterSnapshot{CurrentRate: 2.5},
			CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	rendered, err := (&JSONFormatter{Indent: true}).FormatEvents(events)
	require.NoError(t, err)

	var decoded []core.RequestEvent
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, "evt-1", decoded[0].EventID)
	require.Equal(t, 2.5, decoded[0].Snapshot.CurrentRate)
}

func TestMarkdownFormatterIntegrations(t *testing.T) {
	configs := []core.RateConfig{
		{Name: "fieldguide", BaseURL: "https://api.fieldguide.io", InitialRate: 2.0, MinRate: 0.5, MaxRate: 5.0},
	}

	rendered, err := (&MarkdownFormatter{}).FormatIntegrations(configs)
	require.NoError(t, err)
	require.Contains(t, rendered, "| fieldguide ")
	require.Contains(t, rendered, "| Name ")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "long te...", truncate("long text that keeps going", 10))
}
