package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create persists a new record: an id is assigned if absent, the sync
// envelope is initialized (version 1, unsynced), and a create entry is
// enqueued in the same transaction.
func (s *Store) Create(ctx context.Context, rec schema.Record) error {
	meta := rec.Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	meta.SyncVersion = 1
	meta.IsSynced = false
	meta.LocalUpdatedAt = s.now()
	meta.DeletedAt = nil

	if err := rec.Validate(); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err := s.enqueueMutation(ctx, tx, rec, schema.OpCreate); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit create: %w", err)
	}
	return nil
}

// Get retrieves a record by id. Soft-deleted records are returned; callers
// check Meta().IsDeleted() if lifecycle matters. Returns schema.ErrNotFound
// when no row exists.
func (s *Store) Get(ctx context.Context, table, id string) (schema.Record, error) {
	if !schema.KnownTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	var data string
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table)
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schema.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, id, err)
	}

	return decodeRecord(table, data)
}

// Update loads a record, applies the mutation, bumps the sync envelope,
// and enqueues an update entry. Returns the mutated record, or
// schema.ErrNotFound when the id does not exist.
func (s *Store) Update(ctx context.Context, table, id string, mutate func(schema.Record) error) (schema.Record, error) {
	rec, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(rec); err != nil {
		return nil, err
	}
	rec.Meta().Touch(s.now())

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := s.enqueueMutation(ctx, tx, rec, schema.OpUpdate); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return rec, nil
}

// SoftDelete marks a record deleted, bumps the envelope, and enqueues a
// delete entry. Calling it on an already soft-deleted record is a no-op.
// Returns schema.ErrNotFound when the id does not exist.
func (s *Store) SoftDelete(ctx context.Context, table, id string) error {
	rec, err := s.Get(ctx, table, id)
	if err != nil {
		return err
	}
	meta := rec.Meta()
	if meta.IsDeleted() {
		return nil
	}

	now := s.now()
	meta.DeletedAt = &now
	meta.Touch(now)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err := s.enqueueMutation(ctx, tx, rec, schema.OpDelete); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit soft delete: %w", err)
	}
	return nil
}

// Restore clears a soft-delete marker. Returns false when the record is
// missing or not currently soft-deleted.
func (s *Store) Restore(ctx context.Context, table, id string) (bool, error) {
	rec, err := s.Get(ctx, table, id)
	if errors.Is(err, schema.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	meta := rec.Meta()
	if !meta.IsDeleted() {
		return false, nil
	}

	meta.DeletedAt = nil
	meta.Touch(s.now())

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRecord(ctx, tx, rec); err != nil {
		return false, err
	}
	// The queued delete must not outlive the restore, or the next drain
	// would purge the record anyway.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE entity_table = ? AND record_id = ? AND operation = 'delete'",
		table, id); err != nil {
		return false, fmt.Errorf("failed to clear queued delete for %s/%s: %w", table, id, err)
	}
	// The remote must learn the record is live again.
	if err := s.enqueueMutation(ctx, tx, rec, schema.OpUpdate); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit restore: %w", err)
	}
	return true, nil
}

// HardDelete physically removes a record and any queue entries that still
// reference it. Idempotent: returns false when no row existed.
func (s *Store) HardDelete(ctx context.Context, table, id string) (bool, error) {
	if !schema.KnownTable(table) {
		return false, fmt.Errorf("unknown table %q", table)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return false, fmt.Errorf("failed to hard delete %s/%s: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE entity_table = ? AND record_id = ? AND operation != 'delete'",
		table, id); err != nil {
		return false, fmt.Errorf("failed to clear queue for %s/%s: %w", table, id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit hard delete: %w", err)
	}
	return affected > 0, nil
}

// MarkSynced stamps a record as confirmed by the remote service. Only the
// sync flag and version stamp change; lifecycle state is untouched.
// Non-delete queue entries for the record are cleared.
func (s *Store) MarkSynced(ctx context.Context, table, id string, version int) error {
	rec, err := s.Get(ctx, table, id)
	if err != nil {
		return err
	}
	meta := rec.Meta()
	meta.IsSynced = true
	if version > meta.SyncVersion {
		meta.SyncVersion = version
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRecord(ctx, tx, rec); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE entity_table = ? AND record_id = ? AND operation != 'delete'",
		table, id); err != nil {
		return fmt.Errorf("failed to clear queue for %s/%s: %w", table, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark synced: %w", err)
	}
	return nil
}

// ApplyRemote writes a record that was resolved during pull. The record's
// envelope is stored as-is (the resolver has already marked it synced);
// no queue entry is created, since the remote is the source of the change.
func (s *Store) ApplyRemote(ctx context.Context, rec schema.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return writeRecord(ctx, s.conn, rec)
}

// ListByOwner returns all active (not soft-deleted) records for an owner.
func (s *Store) ListByOwner(ctx context.Context, table, ownerID string) ([]schema.Record, error) {
	if !schema.KnownTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf(
		"SELECT data FROM %s WHERE owner_id = ? AND deleted_at IS NULL ORDER BY date_key, id", table)
	return s.queryRecords(ctx, table, query, ownerID)
}

// ListByDateRange returns active records for an owner whose date falls in
// [from, to] inclusive. Dates are "2006-01-02" strings.
func (s *Store) ListByDateRange(ctx context.Context, table, ownerID, from, to string) ([]schema.Record, error) {
	if !schema.KnownTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf(`
		SELECT data FROM %s
		WHERE owner_id = ? AND deleted_at IS NULL AND date_key >= ? AND date_key <= ?
		ORDER BY date_key, id`, table)
	return s.queryRecords(ctx, table, query, ownerID, from, to)
}

// ListUnsynced returns active records with pending local changes.
// Soft-deleted unsynced records are not included; their deltas travel
// through the sync queue instead.
func (s *Store) ListUnsynced(ctx context.Context, table string) ([]schema.Record, error) {
	if !schema.KnownTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf(
		"SELECT data FROM %s WHERE is_synced = 0 AND deleted_at IS NULL ORDER BY local_updated_at", table)
	return s.queryRecords(ctx, table, query)
}

// ListSoftDeleted returns every soft-deleted record across all entity
// tables. Used to rebuild the pending delete queue after a restart.
func (s *Store) ListSoftDeleted(ctx context.Context) ([]schema.Record, error) {
	var out []schema.Record
	for _, table := range entityTables {
		query := fmt.Sprintf(
			"SELECT data FROM %s WHERE deleted_at IS NOT NULL ORDER BY deleted_at", table)
		recs, err := s.queryRecords(ctx, table, query)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// queryRecords runs a single-column data query and decodes each row.
func (s *Store) queryRecords(ctx context.Context, table, query string, args ...any) ([]schema.Record, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []schema.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		rec, err := decodeRecord(table, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", table, err)
	}
	return out, nil
}

// writeRecord upserts the record row, mirroring envelope fields into the
// indexed columns and storing the full document as JSON.
func writeRecord(ctx context.Context, q execer, rec schema.Record) error {
	meta := rec.Meta()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", rec.Table(), err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, owner_id, date_key, sync_version, is_synced, local_updated_at, deleted_at, data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		date_key = excluded.date_key,
		sync_version = excluded.sync_version,
		is_synced = excluded.is_synced,
		local_updated_at = excluded.local_updated_at,
		deleted_at = excluded.deleted_at,
		data = excluded.data
	`, rec.Table())

	_, err = q.ExecContext(ctx, query,
		meta.ID,
		meta.OwnerID,
		rec.DateKey(),
		meta.SyncVersion,
		boolToInt(meta.IsSynced),
		meta.LocalUpdatedAt.Format(time.RFC3339Nano),
		timeToNullString(meta.DeletedAt),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", rec.Table(), meta.ID, err)
	}
	return nil
}

// decodeRecord unmarshals a stored JSON document into its concrete type.
func decodeRecord(table, data string) (schema.Record, error) {
	rec, err := schema.NewRecord(table)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
