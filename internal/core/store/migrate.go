package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pacer_state (
		integration TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		current_rate REAL NOT NULL,
		tokens REAL NOT NULL,
		cooldown_until INTEGER,
		breaker_state TEXT NOT NULL DEFAULT 'closed',
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_backoff_at INTEGER,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (integration, tenant_id)
	);`,
	`CREATE TABLE IF NOT EXISTS request_events (
		event_id TEXT PRIMARY KEY,
		integration TEXT NOT NULL,
		tenant_id TEXT,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		error_kind TEXT,
		current_rate REAL NOT NULL,
		context TEXT,
		completed_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_request_events_integration ON request_events(integration, completed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_request_events_completed ON request_events(completed_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
