//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ratepacer/ratepacer/internal/config"
	"github.com/ratepacer/ratepacer/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMemoryStore(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, "libsql", s.Driver())
}

func TestPacerStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	missing, err := s.GetPacerState(ctx, "notion", "")
	require.NoError(t, err)
	require.Nil(t, missing)

	cooldown := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	state := &core.PacerState{
		CurrentRate:   1.5,
		Tokens:        2.25,
		CooldownUntil: &cooldown,
		BreakerState:  core.BreakerOpen,
		FailureCount:  3,
		UpdatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertPacerState(ctx, "notion", "acme", state))

	got, err := s.GetPacerState(ctx, "notion", "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1.5, got.CurrentRate)
	require.Equal(t, 2.25, got.Tokens)
	require.Equal(t, core.BreakerOpen, got.BreakerState)
	require.Equal(t, 3, got.FailureCount)
	require.NotNil(t, got.CooldownUntil)
	require.Equal(t, cooldown, *got.CooldownUntil)

	// Upsert replaces the existing row.
	state.CurrentRate = 0.75
	state.BreakerState = core.BreakerClosed
	state.CooldownUntil = nil
	require.NoError(t, s.UpsertPacerState(ctx, "notion", "acme", state))

	got, err = s.GetPacerState(ctx, "notion", "acme")
	require.NoError(t, err)
	require.Equal(t, 0.75, got.CurrentRate)
	require.Equal(t, core.BreakerClosed, got.BreakerState)
	require.Nil(t, got.CooldownUntil)
}

func TestRequestEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	event := core.RequestEvent{
		EventID:     "evt-1",
		Integration: "vanta",
		TenantID:    "acme",
		Method:      "GET",
		Path:        "/v1/users",
		StatusCode:  200,
		Elapsed:     125 * time.Millisecond,
		Snapshot:    core.LimiterSnapshot{CurrentRate: 2.2},
		Context:     map[string]any{"job": "sync-42"},
		CompletedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.InsertRequestEvent(ctx, event))

	denied := core.RequestEvent{
		EventID:     "evt-2",
		Integration: "vanta",
		Method:      "GET",
		Path:        "/v1/users",
		Error:       "circuit open, retry in 30s",
		ErrorKind:   core.ErrorKindCircuitOpen,
		Snapshot:    core.LimiterSnapshot{CurrentRate: 0.5},
		CompletedAt: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
	}
	require.NoError(t, s.InsertRequestEvent(ctx, denied))

	events, err := s.RecentRequestEvents(ctx, "vanta", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Most recent first.
	require.Equal(t, "evt-2", events[0].EventID)
	require.Equal(t, "circuit open, retry in 30s", events[0].Error)
	require.Equal(t, core.ErrorKindCircuitOpen, events[0].ErrorKind)
	require.Zero(t, events[0].StatusCode)

	require.Equal(t, "evt-1", events[1].EventID)
	require.Equal(t, 200, events[1].StatusCode)
	require.Equal(t, 125*time.Millisecond, events[1].Elapsed)
	require.Equal(t, "sync-42", events[1].Context["job"])
	require.Equal(t, 2.2, events[1].Snapshot.CurrentRate)
}

func TestPacerAdminQueries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{"notion", "vanta", "fieldguide"} {
		require.NoError(t, s.UpsertPacerState(ctx, name, "", &core.PacerState{
			CurrentRate:  2,
			Tokens:       1,
			BreakerState: core.BreakerClosed,
			UpdatedAt:    now,
		}))
	}

	count, err := s.CountPacerStates(ctx, PacerQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	entries, err := s.ListPacerStates(ctx, PacerQuery{Prefix: "no"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "notion", entries[0].Integration)

	affected, err := s.ResetPacerStates(ctx, PacerQuery{Integration: "vanta"})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	count, err = s.CountPacerStates(ctx, PacerQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = s.ListPacerStates(ctx, PacerQuery{})
	require.Error(t, err)
}

func TestEventRecorderPersistsProjection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	recorder := s.EventRecorder(nil, func() core.BreakerState { return core.BreakerHalfOpen })
	recorder(core.RequestEvent{
		EventID:     "evt-3",
		Integration: "notion",
		Method:      "GET",
		Path:        "/v1/pages",
		StatusCode:  200,
		Snapshot:    core.LimiterSnapshot{CurrentRate: 2.1, Tokens: 1.5},
		CompletedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	state, err := s.GetPacerState(ctx, "notion", "")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, 2.1, state.CurrentRate)
	require.Equal(t, core.BreakerHalfOpen, state.BreakerState)

	events, err := s.RecentRequestEvents(ctx, "notion", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
