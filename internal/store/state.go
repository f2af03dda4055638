package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Keys in the sync_state table.
const (
	stateLastSyncAt = "last_sync_at"
)

// LastSyncAt returns the timestamp of the last completed sync cycle, or the
// zero time when no cycle has ever completed.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	var raw string
	row := s.conn.QueryRowContext(ctx, "SELECT value FROM sync_state WHERE key = ?", stateLastSyncAt)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync time: %w", err)
	}
	return t, nil
}

// SetLastSyncAt records the completion time of a sync cycle.
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	query := `
	INSERT INTO sync_state (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, stateLastSyncAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to store last sync time: %w", err)
	}
	return nil
}
