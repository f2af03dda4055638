// Package schema defines the syncable entity types for the Gaply engine.
//
// Every entity carries a common sync envelope (SyncMeta) with a per-record
// monotonic version counter and last-write-wins friendly timestamps. Each
// field is flat and JSON-tagged so records round-trip unchanged between the
// local store and the remote service.
package schema

import (
	"fmt"
	"time"
)

// Table names for syncable entities. These match both the local store
// tables and the remote service resource paths.
const (
	TableTasks       = "tasks"
	TableGaps        = "gaps"
	TablePreferences = "preferences"
	TableProfile     = "profile"
	TableScheduled   = "scheduled_gaps"
	TableCompletions = "activity_completions"
)

// ProtectedTables lists entity tables that must never be deleted through
// the safe-delete lifecycle. Preferences and profile records are singletons
// per user; deleting them would orphan every derived computation.
var ProtectedTables = map[string]bool{
	TablePreferences: true,
	TableProfile:     true,
}

// KnownTable reports whether name is a syncable entity table.
func KnownTable(name string) bool {
	switch name {
	case TableTasks, TableGaps, TablePreferences, TableProfile, TableScheduled, TableCompletions:
		return true
	}
	return false
}

// SyncMeta is the common sync envelope embedded in every syncable entity.
//
// SyncVersion starts at 1 on creation and increases by exactly 1 on every
// local mutation. It is never decreased. IsSynced flips to false on every
// local mutation and back to true once the remote service has confirmed
// the record (or the record was adopted from the remote during pull).
type SyncMeta struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	SyncVersion    int        `json:"sync_version"`
	IsSynced       bool       `json:"is_synced"`
	LocalUpdatedAt time.Time  `json:"local_updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Meta returns the envelope itself so embedding types satisfy Record.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// IsDeleted reports whether the record is soft-deleted.
func (m *SyncMeta) IsDeleted() bool { return m.DeletedAt != nil }

// Touch records a local mutation: the version is bumped, the record is
// marked unsynced, and the local mutation timestamp is set to now.
func (m *SyncMeta) Touch(now time.Time) {
	m.SyncVersion++
	m.IsSynced = false
	m.LocalUpdatedAt = now
}

// ValidateMeta checks the envelope invariants shared by all entities.
func (m *SyncMeta) ValidateMeta() error {
	if m.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if m.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if m.SyncVersion < 1 {
		return &ValidationError{Field: "sync_version", Reason: fmt.Sprintf("must be >= 1 (got %d)", m.SyncVersion)}
	}
	return nil
}

// Record is implemented by every syncable entity.
//
// RemoteUpdatedAt returns the server-side modification timestamp used for
// conflict resolution: updated_at for tasks, last_modified_at for gaps.
// DateKey returns the date the record belongs to ("2006-01-02") or "" for
// entities without a date dimension.
type Record interface {
	Meta() *SyncMeta
	Table() string
	RemoteUpdatedAt() time.Time
	DateKey() string
	Validate() error
}

// NewRecord allocates an empty record for the given table. Used when
// decoding remote payloads or store rows whose concrete type is only known
// by table name.
func NewRecord(table string) (Record, error) {
	switch table {
	case TableTasks:
		return &Task{}, nil
	case TableGaps:
		return &TimeGap{}, nil
	case TablePreferences:
		return &UserPreferences{}, nil
	case TableProfile:
		return &UserProfile{}, nil
	case TableScheduled:
		return &ScheduledGap{}, nil
	case TableCompletions:
		return &ActivityCompletion{}, nil
	}
	return nil, fmt.Errorf("unknown table %q", table)
}
