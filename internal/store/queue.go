package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// enqueueMutation records one sync-queue entry for a local mutation, in the
// same transaction as the mutation itself. Delete entries carry no payload.
func (s *Store) enqueueMutation(ctx context.Context, tx *sql.Tx, rec schema.Record, op schema.Operation) error {
	var payload []byte
	if op != schema.OpDelete {
		p, err := schema.SyncablePayload(rec)
		if err != nil {
			return err
		}
		payload = p
	}

	meta := rec.Meta()
	query := `
	INSERT INTO sync_queue (id, record_id, entity_table, operation, data, created_at, retry_count)
	VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	_, err := tx.ExecContext(ctx, query,
		uuid.NewString(),
		meta.ID,
		rec.Table(),
		string(op),
		nullableString(string(payload)),
		s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for %s/%s: %w", op, rec.Table(), meta.ID, err)
	}
	return nil
}

// ListQueue returns all pending sync queue items in submission order.
func (s *Store) ListQueue(ctx context.Context) ([]*schema.SyncQueueItem, error) {
	query := `
	SELECT id, record_id, entity_table, operation, data, created_at, retry_count, last_retry_at, error_message
	FROM sync_queue
	ORDER BY created_at, id
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []*schema.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return items, nil
}

// QueueLen returns the number of pending queue items.
func (s *Store) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

// RecordFailure increments a queue item's retry counter and stores the
// error message. Returns the new retry count.
func (s *Store) RecordFailure(ctx context.Context, itemID, message string) (int, error) {
	query := `
	UPDATE sync_queue
	SET retry_count = retry_count + 1, last_retry_at = ?, error_message = ?
	WHERE id = ?
	`
	if _, err := s.conn.ExecContext(ctx, query,
		s.now().Format(time.RFC3339Nano), message, itemID); err != nil {
		return 0, fmt.Errorf("failed to record queue failure: %w", err)
	}

	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT retry_count FROM sync_queue WHERE id = ?", itemID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, schema.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

// RemoveQueueItem deletes a queue item. Idempotent.
func (s *Store) RemoveQueueItem(ctx context.Context, itemID string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", itemID); err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*schema.SyncQueueItem, error) {
	var (
		item      schema.SyncQueueItem
		recordID  string
		data      sql.NullString
		createdAt string
		lastRetry sql.NullString
		errMsg    sql.NullString
	)
	err := row.Scan(&item.ID, &recordID, &item.Table, &item.Operation,
		&data, &createdAt, &item.RetryCount, &lastRetry, &errMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}

	// The queue item id is its own row id; the record id rides in Data's
	// payload as well, but callers need it without parsing JSON.
	item.RecordID = recordID
	if data.Valid {
		item.Data = []byte(data.String)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = t
	}
	item.LastRetryAt = nullStringToTime(lastRetry)
	if errMsg.Valid {
		item.ErrorMessage = errMsg.String
	}
	return &item, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
