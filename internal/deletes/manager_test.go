package deletes

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
	"github.com/jayminstro/gaplyv2-sub004/internal/store"
)

type fakeRemote struct {
	deleted []string
	err     error
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, table, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, table+"/"+id)
	return nil
}

func testManager(t *testing.T, rem Remote) (*Manager, *store.Store) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	st, err := store.Open(filepath.Join(t.TempDir(), "gaply.db"), logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Logger = logger
	return NewManager(st, rem, cfg), st
}

func createTask(t *testing.T, st *store.Store, title string) *schema.Task {
	t.Helper()
	task := &schema.Task{Title: title, Status: schema.TaskStatusPending}
	task.OwnerID = "user-1"
	if err := st.Create(context.Background(), task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return task
}

func TestSafeDelete_SoftDeletesAndQueues(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t, &fakeRemote{})
	task := createTask(t, st, "old errand")

	res := m.SafeDelete(ctx, schema.TableTasks, task.ID, "user request")
	if !res.Success || res.Phase != PhaseSoftDelete {
		t.Fatalf("result = %+v, want soft_delete success", res)
	}

	rec, err := st.Get(ctx, schema.TableTasks, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.Meta().IsDeleted() {
		t.Error("record should be soft-deleted")
	}
	if m.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", m.PendingCount())
	}
}

func TestSafeDelete_RejectsProtectedTables(t *testing.T) {
	m, _ := testManager(t, &fakeRemote{})

	for _, table := range []string{schema.TablePreferences, schema.TableProfile} {
		res := m.SafeDelete(context.Background(), table, "prefs-user-1", "")
		if res.Success {
			t.Errorf("SafeDelete(%s) succeeded, want rejection", table)
		}
		if res.Phase != PhaseSoftDelete {
			t.Errorf("Phase = %q, want %q", res.Phase, PhaseSoftDelete)
		}
		if res.Error == "" {
			t.Error("rejection should carry an error message")
		}
	}
}

func TestSafeDelete_MissingRecord(t *testing.T) {
	m, _ := testManager(t, &fakeRemote{})

	res := m.SafeDelete(context.Background(), schema.TableTasks, "nope", "")
	if res.Success {
		t.Fatal("deleting a missing record should fail")
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", m.PendingCount())
	}
}

func TestProcessQueue_ConfirmsAndPurges(t *testing.T) {
	ctx := context.Background()
	rem := &fakeRemote{}
	m, st := testManager(t, rem)
	task := createTask(t, st, "done with this")

	m.SafeDelete(ctx, schema.TableTasks, task.ID, "")

	confirmed, err := m.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if confirmed != 1 {
		t.Errorf("confirmed = %d, want 1", confirmed)
	}
	if len(rem.deleted) != 1 {
		t.Errorf("remote deletes = %v, want one", rem.deleted)
	}

	if _, err := st.Get(ctx, schema.TableTasks, task.ID); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("record should be purged, got err=%v", err)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", m.PendingCount())
	}
}

func TestProcessQueue_DropsRestoredRecords(t *testing.T) {
	ctx := context.Background()
	rem := &fakeRemote{}
	m, st := testManager(t, rem)
	task := createTask(t, st, "changed my mind")

	m.SafeDelete(ctx, schema.TableTasks, task.ID, "")
	if _, err := st.Restore(ctx, schema.TableTasks, task.ID); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	confirmed, err := m.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if confirmed != 0 {
		t.Errorf("confirmed = %d, want 0", confirmed)
	}
	if len(rem.deleted) != 0 {
		t.Errorf("remote deletes = %v, want none for a restored record", rem.deleted)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want restored record dequeued", m.PendingCount())
	}
}

func TestProcessQueue_KeepsItemOnRemoteFailure(t *testing.T) {
	ctx := context.Background()
	rem := &fakeRemote{err: errors.New("service unavailable")}
	m, st := testManager(t, rem)
	task := createTask(t, st, "stubborn delete")

	m.SafeDelete(ctx, schema.TableTasks, task.ID, "")

	confirmed, err := m.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if confirmed != 0 {
		t.Errorf("confirmed = %d, want 0", confirmed)
	}
	if m.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want item kept for retry", m.PendingCount())
	}

	rec, err := st.Get(ctx, schema.TableTasks, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.Meta().IsDeleted() {
		t.Error("record should stay soft-deleted until confirmed")
	}
}

func TestRestoreItem(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t, &fakeRemote{})
	task := createTask(t, st, "back from the dead")

	m.SafeDelete(ctx, schema.TableTasks, task.ID, "")

	res, err := m.RestoreItem(ctx, schema.TableTasks, task.ID)
	if err != nil {
		t.Fatalf("RestoreItem failed: %v", err)
	}
	if !res.Success || res.Phase != PhaseRestore {
		t.Fatalf("result = %+v, want restore success", res)
	}
	if m.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", m.PendingCount())
	}

	got, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.IsDeleted() {
		t.Error("record should be live after restore")
	}

	// Restoring a live record is a no-op failure, not an error.
	res, err = m.RestoreItem(ctx, schema.TableTasks, task.ID)
	if err != nil {
		t.Fatalf("second RestoreItem errored: %v", err)
	}
	if res.Success {
		t.Error("restoring a live record should report failure")
	}
}

func TestHousekeeping_DropsStaleOperationsOnly(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t, &fakeRemote{})
	oldTask := createTask(t, st, "ancient")
	newTask := createTask(t, st, "recent")

	base := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base.Add(-25 * time.Hour) }
	m.SafeDelete(ctx, schema.TableTasks, oldTask.ID, "")

	m.now = func() time.Time { return base }
	m.SafeDelete(ctx, schema.TableTasks, newTask.ID, "")

	if dropped := m.Housekeeping(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if m.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", m.PendingCount())
	}

	// The dropped record stays soft-deleted for the next rebuild.
	rec, err := st.Get(ctx, schema.TableTasks, oldTask.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.Meta().IsDeleted() {
		t.Error("housekeeping must not restore or purge the record")
	}
}

func TestRebuildFromStore(t *testing.T) {
	ctx := context.Background()
	_, st := testManager(t, &fakeRemote{})
	task := createTask(t, st, "survives restart")

	if err := st.SoftDelete(ctx, schema.TableTasks, task.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	// Simulates a fresh manager after restart.
	fresh := NewManager(st, &fakeRemote{}, Config{Logger: log.New(io.Discard, "", 0)})
	added, err := fresh.RebuildFromStore(ctx)
	if err != nil {
		t.Fatalf("RebuildFromStore failed: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if fresh.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", fresh.PendingCount())
	}

	// Re-running does not duplicate entries.
	added, err = fresh.RebuildFromStore(ctx)
	if err != nil {
		t.Fatalf("second RebuildFromStore failed: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d on rebuild of known items, want 0", added)
	}
}
