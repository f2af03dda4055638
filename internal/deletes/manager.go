// Package deletes implements the safe-delete lifecycle: records are
// soft-deleted locally first, queued for remote confirmation, and only
// purged once the remote service has acknowledged the delete. A record can
// be restored at any point before the purge.
package deletes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
	"github.com/jayminstro/gaplyv2-sub004/internal/store"
)

// Delete phases reported in results.
const (
	PhaseSoftDelete   = "soft_delete"
	PhaseRemoteDelete = "remote_delete"
	PhasePurge        = "purge"
	PhaseRestore      = "restore"
)

// Result reports the outcome of one safe-delete request.
type Result struct {
	Success  bool   `json:"success"`
	Phase    string `json:"phase"`
	Table    string `json:"table"`
	RecordID string `json:"record_id"`
	Error    string `json:"error,omitempty"`
}

// Remote is the slice of the API client the manager needs. *remote.Client
// satisfies it.
type Remote interface {
	DeleteRecord(ctx context.Context, table, id string) error
}

// Config controls delete housekeeping.
type Config struct {
	// MaxPendingAge is how long a pending delete may wait for remote
	// confirmation before housekeeping drops it from the in-memory queue.
	// The record stays soft-deleted; a restart re-enqueues it.
	MaxPendingAge time.Duration

	Logger *log.Logger
}

// DefaultConfig returns the standard delete manager tuning.
func DefaultConfig() Config {
	return Config{MaxPendingAge: 24 * time.Hour}
}

// Manager owns the pending-delete queue. The queue itself is in memory;
// durability comes from the soft-delete markers in the store, from which
// the queue is rebuilt at startup.
type Manager struct {
	store  *store.Store
	remote Remote
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*schema.DeleteOperation

	now func() time.Time
}

// NewManager creates a delete manager. remote may be nil; ProcessQueue
// then only reconciles restored records and leaves confirmation to the
// sync queue drain.
func NewManager(st *store.Store, rem Remote, cfg Config) *Manager {
	if cfg.MaxPendingAge <= 0 {
		cfg.MaxPendingAge = DefaultConfig().MaxPendingAge
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[deletes] ", log.LstdFlags)
	}
	return &Manager{
		store:   st,
		remote:  rem,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*schema.DeleteOperation),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func pendingKey(table, id string) string {
	return table + "/" + id
}

// SetMaxPendingAge changes the housekeeping age at runtime. A zero or
// negative value is ignored.
func (m *Manager) SetMaxPendingAge(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.MaxPendingAge = d
	m.mu.Unlock()
}

// SafeDelete soft-deletes a record and queues it for remote confirmation.
// Protected tables (preferences, profile) are rejected outright.
func (m *Manager) SafeDelete(ctx context.Context, table, id, reason string) *Result {
	res := &Result{Phase: PhaseSoftDelete, Table: table, RecordID: id}

	if schema.ProtectedTables[table] {
		res.Error = fmt.Sprintf("%s records cannot be deleted", table)
		return res
	}
	if !schema.KnownTable(table) {
		res.Error = fmt.Sprintf("unknown table %q", table)
		return res
	}

	rec, err := m.store.Get(ctx, table, id)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if err := m.store.SoftDelete(ctx, table, id); err != nil {
		res.Error = err.Error()
		return res
	}

	m.enqueue(&schema.DeleteOperation{
		ID:        id,
		Table:     table,
		Timestamp: m.now(),
		OwnerID:   rec.Meta().OwnerID,
		Reason:    reason,
	})

	m.logger.Printf("Soft-deleted %s/%s (%s)", table, id, reason)
	res.Success = true
	return res
}

// RestoreItem undoes a pending delete: the record becomes live again and
// the pending operation is dropped. Returns false when there was nothing
// to restore.
func (m *Manager) RestoreItem(ctx context.Context, table, id string) (*Result, error) {
	res := &Result{Phase: PhaseRestore, Table: table, RecordID: id}

	restored, err := m.store.Restore(ctx, table, id)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	if !restored {
		res.Error = "record is not deleted"
		return res, nil
	}

	m.dequeue(table, id)
	m.logger.Printf("Restored %s/%s", table, id)
	res.Success = true
	return res, nil
}

// ConfirmRemoteDeletion purges a record whose delete the remote service
// has acknowledged. Safe to call for records another path already purged.
func (m *Manager) ConfirmRemoteDeletion(ctx context.Context, table, id string) error {
	if _, err := m.store.HardDelete(ctx, table, id); err != nil {
		return fmt.Errorf("failed to purge %s/%s: %w", table, id, err)
	}
	m.dequeue(table, id)
	return nil
}

// ProcessQueue walks the pending deletes: operations whose record was
// restored (locally or by a pulled remote copy) are dropped, the rest are
// confirmed against the remote when a client is available. Returns how
// many deletes were confirmed.
func (m *Manager) ProcessQueue(ctx context.Context) (int, error) {
	confirmed := 0
	for _, op := range m.snapshot() {
		rec, err := m.store.Get(ctx, op.Table, op.ID)
		if errors.Is(err, schema.ErrNotFound) {
			// Already purged elsewhere (sync queue drain).
			m.dequeue(op.Table, op.ID)
			continue
		}
		if err != nil {
			return confirmed, err
		}

		if !rec.Meta().IsDeleted() {
			m.logger.Printf("Dropping pending delete for restored %s/%s", op.Table, op.ID)
			m.dequeue(op.Table, op.ID)
			continue
		}

		if m.remote == nil {
			continue
		}
		if err := m.remote.DeleteRecord(ctx, op.Table, op.ID); err != nil {
			m.logger.Printf("WARNING: remote delete of %s/%s failed: %v", op.Table, op.ID, err)
			continue
		}
		if err := m.ConfirmRemoteDeletion(ctx, op.Table, op.ID); err != nil {
			return confirmed, err
		}
		confirmed++
	}
	return confirmed, nil
}

// Housekeeping drops pending operations older than MaxPendingAge. The
// records stay soft-deleted, so a later RebuildFromStore re-enqueues them
// rather than losing the delete.
func (m *Manager) Housekeeping() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.MaxPendingAge)

	dropped := 0
	for key, op := range m.pending {
		if op.Timestamp.Before(cutoff) {
			delete(m.pending, key)
			dropped++
		}
	}
	if dropped > 0 {
		m.logger.Printf("Housekeeping dropped %d stale pending deletes", dropped)
	}
	return dropped
}

// RebuildFromStore repopulates the pending queue from soft-deleted rows.
// Called once at engine start.
func (m *Manager) RebuildFromStore(ctx context.Context) (int, error) {
	records, err := m.store.ListSoftDeleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list soft-deleted records: %w", err)
	}

	added := 0
	for _, rec := range records {
		meta := rec.Meta()
		at := m.now()
		if meta.DeletedAt != nil {
			at = *meta.DeletedAt
		}
		if m.enqueue(&schema.DeleteOperation{
			ID:        meta.ID,
			Table:     rec.Table(),
			Timestamp: at,
			OwnerID:   meta.OwnerID,
			Reason:    "rebuilt from store",
		}) {
			added++
		}
	}

	if added > 0 {
		m.logger.Printf("Rebuilt %d pending deletes from store", added)
	}
	return added, nil
}

// PendingCount returns the number of deletes awaiting confirmation.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// enqueue adds the operation unless one is already pending for the record.
func (m *Manager) enqueue(op *schema.DeleteOperation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pendingKey(op.Table, op.ID)
	if _, ok := m.pending[key]; ok {
		return false
	}
	m.pending[key] = op
	return true
}

func (m *Manager) dequeue(table, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pendingKey(table, id))
}

// snapshot copies the pending set so ProcessQueue can iterate without
// holding the lock across store and network calls.
func (m *Manager) snapshot() []*schema.DeleteOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*schema.DeleteOperation, 0, len(m.pending))
	for _, op := range m.pending {
		out = append(out, op)
	}
	return out
}
