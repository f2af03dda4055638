package conflict

import (
	"testing"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

func taskAt(id string, version int, updated time.Time) *schema.Task {
	t := &schema.Task{
		Title:  "write report",
		Status: schema.TaskStatusPending,
	}
	t.ID = id
	t.OwnerID = "user-1"
	t.SyncVersion = version
	t.LocalUpdatedAt = updated
	t.UpdatedAt = updated
	return t
}

func TestResolve_AdoptsRemoteWhenLocalAbsent(t *testing.T) {
	r := New()
	remote := taskAt("t1", 3, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	remote.IsSynced = false
	remote.LocalUpdatedAt = time.Time{}

	got, outcome, err := r.Resolve(nil, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeAdoptedRemote {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeAdoptedRemote)
	}
	meta := got.Meta()
	if !meta.IsSynced {
		t.Error("adopted record should be marked synced")
	}
	if meta.SyncVersion != 3 {
		t.Errorf("adopted version = %d, want remote's 3", meta.SyncVersion)
	}
	if meta.LocalUpdatedAt.IsZero() {
		t.Error("adopted record should get a local timestamp")
	}
	if got == schema.Record(remote) {
		t.Error("adopted record should be a copy, not the remote instance")
	}
}

func TestResolve_KeepsLocalWhenRemoteAbsent(t *testing.T) {
	r := New()
	local := taskAt("t1", 2, time.Now().UTC())

	got, outcome, err := r.Resolve(local, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeKeptLocal {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeKeptLocal)
	}
	if got != schema.Record(local) {
		t.Error("kept-local should return the local record untouched")
	}
	if got.Meta().IsSynced {
		t.Error("kept-local record must stay unsynced for the push phase")
	}
}

func TestResolve_NewerLocalWins(t *testing.T) {
	r := New()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	local := taskAt("t1", 2, base.Add(time.Minute))
	local.Notes = "local edit"
	remote := taskAt("t1", 5, base)
	remote.Notes = "remote edit"

	got, outcome, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeLocalWins {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeLocalWins)
	}
	task := got.(*schema.Task)
	if task.Notes != "local edit" {
		t.Errorf("Notes = %q, want local edit to win", task.Notes)
	}
	if task.SyncVersion != 2 {
		t.Errorf("SyncVersion = %d, want local's untouched 2", task.SyncVersion)
	}
}

func TestResolve_NewerRemoteWins(t *testing.T) {
	r := New()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	local := taskAt("t1", 4, base)
	local.Notes = "local edit"
	remote := taskAt("t1", 2, base.Add(time.Minute))
	remote.Notes = "remote edit"

	got, outcome, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeRemoteWins {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeRemoteWins)
	}
	task := got.(*schema.Task)
	if task.Notes != "remote edit" {
		t.Errorf("Notes = %q, want remote edit to win", task.Notes)
	}
	if task.SyncVersion != 5 {
		t.Errorf("SyncVersion = %d, want max(4,2)+1 = 5", task.SyncVersion)
	}
	if !task.IsSynced {
		t.Error("remote-wins result should be marked synced")
	}
}

func TestResolve_TieMergesTaskFields(t *testing.T) {
	r := New()
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	started := at.Add(-10 * time.Minute)

	local := taskAt("t1", 3, at)
	local.Notes = "my private notes"
	local.Timer = &schema.TimerState{IsRunning: true, StartedAt: &started, ElapsedSeconds: 600}

	remote := taskAt("t1", 3, at)
	remote.Title = "write quarterly report"
	remote.Status = schema.TaskStatusInProgress
	remote.Notes = "remote notes"

	got, outcome, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeMerged {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeMerged)
	}
	task := got.(*schema.Task)
	if task.Title != "write quarterly report" {
		t.Errorf("Title = %q, want remote base to supply it", task.Title)
	}
	if task.Status != schema.TaskStatusInProgress {
		t.Errorf("Status = %q, want remote base to supply it", task.Status)
	}
	if task.Notes != "my private notes" {
		t.Errorf("Notes = %q, want local overlay to win", task.Notes)
	}
	if task.Timer == nil || !task.Timer.IsRunning || task.Timer.ElapsedSeconds != 600 {
		t.Errorf("Timer = %+v, want local running timer preserved", task.Timer)
	}
	if task.SyncVersion != 4 {
		t.Errorf("SyncVersion = %d, want max(3,3)+1 = 4", task.SyncVersion)
	}
	if !task.IsSynced {
		t.Error("merged result should be marked synced")
	}
}

func TestResolve_TieMergesGapFields(t *testing.T) {
	r := New()
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	local := &schema.TimeGap{
		Date:            "2026-08-31",
		StartTime:       "09:00",
		EndTime:         "10:00",
		DurationMinutes: 60,
		IsAvailable:     false,
		ModifiedBy:      "device-a",
		LastModifiedAt:  at,
	}
	local.ID = "g1"
	local.OwnerID = "user-1"
	local.SyncVersion = 2
	local.LocalUpdatedAt = at

	remote := &schema.TimeGap{
		Date:            "2026-08-31",
		StartTime:       "09:00",
		EndTime:         "10:30",
		DurationMinutes: 90,
		IsAvailable:     true,
		Source:          schema.GapSourceCalendar,
		LastModifiedAt:  at,
	}
	remote.ID = "g1"
	remote.OwnerID = "user-1"
	remote.SyncVersion = 2

	got, outcome, err := r.Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeMerged {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeMerged)
	}
	gap := got.(*schema.TimeGap)
	if gap.EndTime != "10:30" {
		t.Errorf("EndTime = %q, want remote base to supply it", gap.EndTime)
	}
	if gap.IsAvailable {
		t.Error("IsAvailable should come from the local overlay")
	}
	if gap.ModifiedBy != "device-a" {
		t.Errorf("ModifiedBy = %q, want local overlay to win", gap.ModifiedBy)
	}
	if gap.SyncVersion != 3 {
		t.Errorf("SyncVersion = %d, want max(2,2)+1 = 3", gap.SyncVersion)
	}
}

func TestResolve_TableMismatch(t *testing.T) {
	r := New()
	at := time.Now().UTC()
	local := taskAt("x1", 1, at)
	gap := &schema.TimeGap{LastModifiedAt: at}
	gap.ID = "x1"

	if _, _, err := r.Resolve(local, gap); err == nil {
		t.Fatal("expected error for mismatched tables")
	}
}
