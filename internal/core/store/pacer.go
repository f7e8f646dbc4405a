package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ratepacer/ratepacer/internal/core"
)

// GetPacerState returns the persisted pacer state for an integration and
// tenant, or nil when no record exists.
func (s *Store) GetPacerState(ctx context.Context, integration, tenantID string) (*core.PacerState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	integration = strings.TrimSpace(integration)
	if integration == "" {
		return nil, errors.New("integration is required")
	}

	var (
		currentRate   float64
		tokens        float64
		cooldownUntil sql.NullInt64
		breakerState  string
		failureCount  int
		lastBackoffAt sql.NullInt64
		updatedAt     int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT current_rate, tokens, cooldown_until, breaker_state, failure_count, last_backoff_at, updated_at
		FROM pacer_state
		WHERE integration = ? AND tenant_id = ?
	`, integration, tenantID)

	if err := row.Scan(&currentRate, &tokens, &cooldownUntil, &breakerState, &failureCount, &lastBackoffAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch pacer state: %w", err)
	}

	state := &core.PacerState{
		CurrentRate:  currentRate,
		Tokens:       tokens,
		BreakerState: core.BreakerState(breakerState),
		FailureCount: failureCount,
		UpdatedAt:    time.Unix(updatedAt, 0).UTC(),
	}

	if cooldownUntil.Valid {
		value := time.Unix(cooldownUntil.Int64, 0).UTC()
		state.CooldownUntil = &value
	}
	if lastBackoffAt.Valid {
		value := time.Unix(lastBackoffAt.Int64, 0).UTC()
		state.LastBackoffAt = &value
	}

	return state, nil
}

// UpsertPacerState persists the pacer state for an integration and tenant.
// This record is an operator-facing projection; pacing decisions never read
// it back.
func (s *Store) UpsertPacerState(ctx context.Context, integration, tenantID string, state *core.PacerState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	integration = strings.TrimSpace(integration)
	if integration == "" {
		return errors.New("integration is required")
	}
	if state == nil {
		return errors.New("pacer state is required")
	}

	var cooldownUntil sql.NullInt64
	if state.CooldownUntil != nil {
		cooldownUntil = sql.NullInt64{Int64: state.CooldownUntil.UTC().Unix(), Valid: true}
	}

	var lastBackoffAt sql.NullInt64
	if state.LastBackoffAt != nil {
		lastBackoffAt = sql.NullInt64{Int64: state.LastBackoffAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pacer_state (integration, tenant_id, current_rate, tokens, cooldown_until, breaker_state, failure_count, last_backoff_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(integration, tenant_id) DO UPDATE SET
			current_rate = excluded.current_rate,
			tokens = excluded.tokens,
			cooldown_until = excluded.cooldown_until,
			breaker_state = excluded.breaker_state,
			failure_count = excluded.failure_count,
			last_backoff_at = excluded.last_backoff_at,
			updated_at = excluded.updated_at
	`, integration, tenantID, state.CurrentRate, state.Tokens, cooldownUntil,
		string(state.BreakerState), state.FailureCount, lastBackoffAt, state.UpdatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store pacer state: %w", err)
	}

	return nil
}

// InsertRequestEvent appends one request event record.
func (s *Store) InsertRequestEvent(ctx context.Context, event core.RequestEvent) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(event.EventID) == "" {
		return errors.New("event id is required")
	}

	var contextJSON sql.NullString
	if len(event.Context) > 0 {
		payload, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("encode event context: %w", err)
		}
		contextJSON = sql.NullString{String: string(payload), Valid: true}
	}

	var statusCode sql.NullInt64
	if event.StatusCode != 0 {
		statusCode = sql.NullInt64{Int64: int64(event.StatusCode), Valid: true}
	}

	var errText sql.NullString
	if event.Error != "" {
		errText = sql.NullString{String: event.Error, Valid: true}
	}

	var errKind sql.NullString
	if event.ErrorKind != "" {
		errKind = sql.NullString{String: event.ErrorKind, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO request_events (event_id, integration, tenant_id, method, path, status_code, elapsed_ms, error, error_kind, current_rate, context, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.EventID, event.Integration, event.TenantID, event.Method, event.Path,
		statusCode, event.Elapsed.Milliseconds(), errText, errKind, event.Snapshot.CurrentRate,
		contextJSON, event.CompletedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store request event: %w", err)
	}

	return nil
}

// RecentRequestEvents returns the newest events for an integration, most
// recent first. A zero limit defaults to 50.
func (s *Store) RecentRequestEvents(ctx context.Context, integration string, limit int) ([]core.RequestEvent, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, integration, tenant_id, method, path, status_code, elapsed_ms, error, error_kind, current_rate, context, completed_at
		FROM request_events
		WHERE integration = ?
		ORDER BY completed_at DESC, event_id
		LIMIT ?
	`, strings.TrimSpace(integration), limit)
	if err != nil {
		return nil, fmt.Errorf("list request events: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	events := []core.RequestEvent{}
	for rows.Next() {
		var (
			event       core.RequestEvent
			tenantID    sql.NullString
			statusCode  sql.NullInt64
			elapsedMS   int64
			errText     sql.NullString
			errKind     sql.NullString
			contextJSON sql.NullString
			completedAt int64
		)
		if err := rows.Scan(&event.EventID, &event.Integration, &tenantID, &event.Method, &event.Path,
			&statusCode, &elapsedMS, &errText, &errKind, &event.Snapshot.CurrentRate, &contextJSON, &completedAt); err != nil {
			return nil, fmt.Errorf("scan request events: %w", err)
		}

		event.TenantID = tenantID.String
		if statusCode.Valid {
			event.StatusCode = int(statusCode.Int64)
		}
		event.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		event.Error = errText.String
		event.ErrorKind = errKind.String
		event.CompletedAt = time.Unix(completedAt, 0).UTC()
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &event.Context); err != nil {
				return nil, fmt.Errorf("decode event context: %w", err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list request events: %w", err)
	}

	return events, nil
}
