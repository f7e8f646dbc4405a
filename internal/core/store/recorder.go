package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ratepacer/ratepacer/internal/core"
)

const recorderTimeout = 5 * time.Second

// EventRecorder returns a request event handler that persists each event and
// refreshes the integration's pacer state projection. breakerState, when
// non-nil, supplies the current circuit state for the projection. Persistence
// failures are logged and swallowed; a broken store must never fail a request.
func (s *Store) EventRecorder(logger *zap.Logger, breakerState func() core.BreakerState) func(core.RequestEvent) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(event core.RequestEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
		defer cancel()

		if err := s.InsertRequestEvent(ctx, event); err != nil {
			logger.Warn("persist request event failed",
				zap.String("integration", event.Integration),
				zap.Error(err))
		}

		state := &core.PacerState{
			CurrentRate:  event.Snapshot.CurrentRate,
			Tokens:       event.Snapshot.Tokens,
			BreakerState: core.BreakerClosed,
			UpdatedAt:    event.CompletedAt,
		}
		if breakerState != nil {
			state.BreakerState = breakerState()
		}
		if !event.Snapshot.CooldownUntil.IsZero() {
			cooldown := event.Snapshot.CooldownUntil
			state.CooldownUntil = &cooldown
		}

		if err := s.UpsertPacerState(ctx, event.Integration, event.TenantID, state); err != nil {
			logger.Warn("persist pacer state failed",
				zap.String("integration", event.Integration),
				zap.Error(err))
		}
	}
}
