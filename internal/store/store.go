// Package store provides the local persistence layer for the Gaply engine.
//
// The store is an embedded SQLite database (via ncruces/go-sqlite3) opened
// in WAL mode for concurrent reads. Each syncable entity type gets its own
// table with the sync envelope extracted into indexed columns and the full
// record stored as a JSON document, plus a durable sync_queue table holding
// one row per unconfirmed local mutation.
//
// Lifecycle per record: Active -> SoftDeleted -> Purged, with
// SoftDeleted -> Active permitted via Restore before the purge. Soft-deleted
// rows are excluded from list queries but remain retrievable by id.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// SchemaVersion is stamped into the schema_meta record on initialization.
const SchemaVersion = 1

// entityTables are the record tables managed by the store, in sync order.
var entityTables = []string{
	schema.TableTasks,
	schema.TableGaps,
	schema.TablePreferences,
	schema.TableProfile,
	schema.TableScheduled,
	schema.TableCompletions,
}

// EntityTables returns the record tables in the order sync phases visit
// them.
func EntityTables() []string {
	out := make([]string, len(entityTables))
	copy(out, entityTables)
	return out
}

// Store wraps the SQLite connection with entity and queue operations.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	// now is replaceable in tests for deterministic timestamps.
	now func() time.Time
}

// Open creates or opens the engine database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// The caller owns the handle and MUST call Close() when done; there is no
// process-wide instance.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection for integration with
// other libraries.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates all tables and indexes if they don't exist and stamps
// the schema metadata record. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	for _, table := range entityTables {
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			date_key TEXT,
			sync_version INTEGER NOT NULL DEFAULT 1,
			is_synced INTEGER NOT NULL DEFAULT 0,
			local_updated_at TEXT NOT NULL,
			deleted_at TEXT,
			data TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s(owner_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_date ON %[1]s(date_key);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_synced ON %[1]s(is_synced);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_deleted ON %[1]s(deleted_at);
		`, table)

		if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	queueDDL := `
	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		entity_table TEXT NOT NULL,
		operation TEXT NOT NULL,
		data TEXT,
		created_at TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TEXT,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_queue_record ON sync_queue(entity_table, record_id);
	CREATE INDEX IF NOT EXISTS idx_queue_created ON sync_queue(created_at);

	CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL,
		migrated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.conn.ExecContext(ctx, queueDDL); err != nil {
		return fmt.Errorf("failed to create sync_queue: %w", err)
	}

	stamp := `
	INSERT INTO schema_meta (id, schema_version, migrated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		schema_version = excluded.schema_version,
		migrated_at = excluded.migrated_at
	`
	if _, err := s.conn.ExecContext(ctx, stamp, SchemaVersion, s.now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to stamp schema metadata: %w", err)
	}

	return nil
}

// SchemaInfo returns the stored schema version and migration timestamp.
func (s *Store) SchemaInfo(ctx context.Context) (version int, migratedAt time.Time, err error) {
	var stamp string
	row := s.conn.QueryRowContext(ctx, "SELECT schema_version, migrated_at FROM schema_meta WHERE id = 1")
	if err := row.Scan(&version, &stamp); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read schema metadata: %w", err)
	}
	migratedAt, err = time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to parse migration timestamp: %w", err)
	}
	return version, migratedAt, nil
}

// Maintenance checkpoints the WAL and lets SQLite refresh its query
// planner statistics. Run periodically by the engine.
func (s *Store) Maintenance(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}
	return nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
