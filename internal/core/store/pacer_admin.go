package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ratepacer/ratepacer/internal/core"
)

type PacerEntry struct {
	Integration string
	TenantID    string
	State       core.PacerState
}

type PacerQuery struct {
	All         bool
	Integration string
	Prefix      string
}

func (q PacerQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Integration) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --integration, or --prefix")
}

func (q PacerQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if integration := strings.TrimSpace(q.Integration); integration != "" {
		return "WHERE integration = ?", []any{integration}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE integration LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListPacerStates(ctx context.Context, q PacerQuery) ([]PacerEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT integration, tenant_id, current_rate, tokens, cooldown_until, breaker_state, failure_count, last_backoff_at, updated_at
		FROM pacer_state
		%s
		ORDER BY integration, tenant_id
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list pacer states: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []PacerEntry{}
	for rows.Next() {
		var (
			entry         PacerEntry
			cooldownUntil sql.NullInt64
			breakerState  string
			lastBackoffAt sql.NullInt64
			updatedAt     int64
		)
		if err := rows.Scan(&entry.Integration, &entry.TenantID, &entry.State.CurrentRate, &entry.State.Tokens,
			&cooldownUntil, &breakerState, &entry.State.FailureCount, &lastBackoffAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pacer states: %w", err)
		}

		entry.State.BreakerState = core.BreakerState(breakerState)
		entry.State.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if cooldownUntil.Valid {
			value := time.Unix(cooldownUntil.Int64, 0).UTC()
			entry.State.CooldownUntil = &value
		}
		if lastBackoffAt.Valid {
			value := time.Unix(lastBackoffAt.Int64, 0).UTC()
			entry.State.LastBackoffAt = &value
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pacer states: %w", err)
	}

	return entries, nil
}

func (s *Store) CountPacerStates(ctx context.Context, q PacerQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM pacer_state
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pacer states: %w", err)
	}
	return count, nil
}

func (s *Store) ResetPacerStates(ctx context.Context, q PacerQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM pacer_state
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset pacer states: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset pacer states: %w", err)
	}
	return affected, nil
}
