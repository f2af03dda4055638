package gaps

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

func testManager(t *testing.T) (*Manager, *store.Store) {
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
	return NewManager(st, cfg), st
}

// 2026-09-02 is a Wednesday, inside the default Monday-Friday working days.
const testDate = "2026-09-02"

func scheduledTask(owner, date, at, dur string) *schema.Task {
	task := &schema.Task{
		Title:    "focus block",
		Status:   schema.TaskStatusPending,
		DueDate:  date,
		DueTime:  at,
		Duration: dur,
	}
	task.OwnerID = owner
	return task
}

func TestFreeIntervals(t *testing.T) {
	window := schema.Interval{Start: 9 * 60, End: 18 * 60}

	tests := []struct {
		name   string
		busy   []schema.Interval
		buffer int
		minLen int
		want   []schema.Interval
	}{
		{
			name: "empty day is one big gap",
			want: []schema.Interval{window},
		},
		{
			name: "task splits the window",
			busy: []schema.Interval{{Start: 12 * 60, End: 13 * 60}},
			want: []schema.Interval{
				{Start: 9 * 60, End: 12 * 60},
				{Start: 13 * 60, End: 18 * 60},
			},
		},
		{
			name:   "buffer pads busy time",
			busy:   []schema.Interval{{Start: 12 * 60, End: 13 * 60}},
			buffer: 10,
			want: []schema.Interval{
				{Start: 9 * 60, End: 12*60 - 10},
				{Start: 13*60 + 10, End: 18 * 60},
			},
		},
		{
			name:   "short fragments are discarded",
			busy:   []schema.Interval{{Start: 9*60 + 10, End: 17 * 60}},
			minLen: 30,
			want:   []schema.Interval{{Start: 17 * 60, End: 18 * 60}},
		},
		{
			name: "overlapping busy intervals coalesce",
			busy: []schema.Interval{
				{Start: 10 * 60, End: 11 * 60},
				{Start: 10*60 + 30, End: 12 * 60},
			},
			want: []schema.Interval{
				{Start: 9 * 60, End: 10 * 60},
				{Start: 12 * 60, End: 18 * 60},
			},
		},
		{
			name: "busy outside the window is ignored",
			busy: []schema.Interval{{Start: 6 * 60, End: 7 * 60}},
			want: []schema.Interval{window},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeIntervals(window, tt.busy, tt.buffer, tt.minLen)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d intervals %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("interval %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCompute_MorningTaskLeavesGapAfter(t *testing.T) {
	prefs := schema.DefaultPreferences("user-1")
	prefs.BufferMinutes = 0

	task := scheduledTask("user-1", testDate, "09:00", "00:30")
	gaps, err := Compute(prefs, testDate, []*schema.Task{task})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(gaps) != 1 {
		t.Fatalf("got %d gaps %v, want 1", len(gaps), gaps)
	}
	if gaps[0].StartTime != "09:30" || gaps[0].EndTime != "18:00" {
		t.Errorf("gap = %s-%s, want 09:30-18:00", gaps[0].StartTime, gaps[0].EndTime)
	}
	if gaps[0].DurationMinutes != 8*60+30 {
		t.Errorf("DurationMinutes = %d, want 510", gaps[0].DurationMinutes)
	}
}

func TestCompute_NonWorkingDay(t *testing.T) {
	prefs := schema.DefaultPreferences("user-1")

	// 2026-09-06 is a Sunday.
	gaps, err := Compute(prefs, "2026-09-06", nil)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("got %d gaps on a non-working day, want 0", len(gaps))
	}
}

func TestCompute_CompletedTasksDoNotBlock(t *testing.T) {
	prefs := schema.DefaultPreferences("user-1")
	prefs.BufferMinutes = 0

	task := scheduledTask("user-1", testDate, "12:00", "01:00")
	task.Status = schema.TaskStatusCompleted

	gaps, err := Compute(prefs, testDate, []*schema.Task{task})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want the full window back", len(gaps))
	}
}

func TestRecalculate_PersistsComputedGaps(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	task := scheduledTask("user-1", testDate, "10:00", "01:00")
	if err := st.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	gaps, stats, err := m.Recalculate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	// Default buffer is 5 minutes: 09:00-09:55 and 11:05-18:00.
	if len(gaps) != 2 {
		t.Fatalf("got %d gaps %v, want 2", len(gaps), gaps)
	}
	if stats.Created != 2 {
		t.Errorf("Created = %d, want 2", stats.Created)
	}
	if gaps[0].EndTime != "09:55" || gaps[1].StartTime != "11:05" {
		t.Errorf("gaps = %s-%s, %s-%s, want buffer applied",
			gaps[0].StartTime, gaps[0].EndTime, gaps[1].StartTime, gaps[1].EndTime)
	}

	stored, err := st.ListGapsForDate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("ListGapsForDate failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d gaps, want 2", len(stored))
	}
	for _, g := range stored {
		if g.ID == "" || g.Source != schema.GapSourceDefault {
			t.Errorf("stored gap %+v missing id or source", g)
		}
	}
}

func TestRecalculate_SecondRunIsStable(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	task := scheduledTask("user-1", testDate, "10:00", "01:00")
	if err := st.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("first Recalculate failed: %v", err)
	}
	_, stats, err := m.Recalculate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("second Recalculate failed: %v", err)
	}
	if stats.Created != 0 || stats.Removed != 0 || stats.Unchanged != 2 {
		t.Errorf("stats = %+v, want 2 unchanged and no churn", stats)
	}
}

func TestRecalculate_ManualGapPrecedence(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	manual := &schema.TimeGap{
		Date:            testDate,
		StartTime:       "09:00",
		EndTime:         "12:00",
		DurationMinutes: 180,
		IsAvailable:     false,
		Source:          schema.GapSourceManual,
		ModifiedBy:      "user",
		LastModifiedAt:  time.Now().UTC(),
	}
	manual.OwnerID = "user-1"
	if err := st.Create(ctx, manual); err != nil {
		t.Fatalf("Create manual gap failed: %v", err)
	}

	gaps, stats, err := m.Recalculate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	// The empty day computes to one 09:00-18:00 gap, which collides with
	// the manual gap and must be dropped.
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	for _, g := range gaps {
		if g.ID == manual.ID {
			continue
		}
		if g.Overlaps(manual) {
			t.Errorf("computed gap %s-%s overlaps the manual gap", g.StartTime, g.EndTime)
		}
	}
	found := false
	for _, g := range gaps {
		if g.ID == manual.ID {
			found = true
		}
	}
	if !found {
		t.Error("manual gap missing from the merged result")
	}
}

func TestRecalculate_RemovesStaleGaps(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	// A task filling the whole window leaves no free time, so the old
	// full-day gap is simply removed rather than replaced.
	task := scheduledTask("user-1", testDate, "09:00", "09:00")
	if err := st.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m.Invalidate("user-1", testDate)

	gaps, stats, err := m.Recalculate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if stats.Removed != 1 {
		t.Errorf("Removed = %d, want the stale full-day gap gone", stats.Removed)
	}
	if len(gaps) != 0 {
		t.Errorf("got %d gaps, want none with the day fully booked", len(gaps))
	}
}

func TestRecalculate_ShiftedGapCountsReplaced(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}

	// The midday task splits the old full-day gap: the morning fragment
	// overlaps it and counts as a replacement, the afternoon one is new.
	task := scheduledTask("user-1", testDate, "10:00", "01:00")
	if err := st.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	m.Invalidate("user-1", testDate)

	gaps, stats, err := m.Recalculate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	if stats.Replaced != 1 || stats.Created != 1 || stats.Removed != 0 {
		t.Errorf("stats = %+v, want one replacement and one creation", stats)
	}
	if len(gaps) != 2 {
		t.Errorf("got %d gaps, want 2 after the task landed", len(gaps))
	}
	stored, err := st.ListGapsForDate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("ListGapsForDate failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d live gaps, want the displaced one soft-deleted", len(stored))
	}
}

func TestGapsForDate_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	first, err := m.GapsForDate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("GapsForDate failed: %v", err)
	}

	// A store change without invalidation is not visible until the TTL
	// lapses; that's the cache contract.
	task := scheduledTask("user-1", testDate, "10:00", "01:00")
	if err := st.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second, err := m.GapsForDate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("GapsForDate failed: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("cached read returned %d gaps, want %d", len(second), len(first))
	}

	m.Invalidate("user-1", testDate)
	third, err := m.GapsForDate(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("GapsForDate failed: %v", err)
	}
	if len(third) != 2 {
		t.Errorf("post-invalidation read returned %d gaps, want 2", len(third))
	}
}

func TestPrecompute_WarmsUpcomingDates(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(t)
	m.now = func() time.Time { return time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC) }

	if err := m.Precompute(ctx, "user-1"); err != nil {
		t.Fatalf("Precompute failed: %v", err)
	}

	// Five of the next seven days (Mon Aug 31 .. Sun Sep 6) are working
	// days; the weekend dates cache empty sets.
	if got := m.cache.len(); got != 7 {
		t.Errorf("cache holds %d entries, want 7", got)
	}
	gaps, ok := m.cache.get(cacheKey("user-1", "2026-09-01"))
	if !ok || len(gaps) != 1 {
		t.Errorf("precomputed Tuesday = %v ok=%t, want one full-day gap", gaps, ok)
	}
	gaps, ok = m.cache.get(cacheKey("user-1", "2026-09-05"))
	if !ok || len(gaps) != 0 {
		t.Errorf("precomputed Saturday = %v ok=%t, want empty set", gaps, ok)
	}
}

func TestCleanupExpired_SkipsManualGaps(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)
	m.now = func() time.Time { return time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC) }

	old := &schema.TimeGap{
		Date:            "2026-08-20",
		StartTime:       "09:00",
		EndTime:         "10:00",
		DurationMinutes: 60,
		IsAvailable:     true,
		Source:          schema.GapSourceDefault,
		LastModifiedAt:  time.Now().UTC(),
	}
	old.OwnerID = "user-1"
	oldManual := &schema.TimeGap{
		Date:            "2026-08-20",
		StartTime:       "12:00",
		EndTime:         "13:00",
		DurationMinutes: 60,
		Source:          schema.GapSourceManual,
		ModifiedBy:      "user",
		LastModifiedAt:  time.Now().UTC(),
	}
	oldManual.OwnerID = "user-1"

	for _, g := range []*schema.TimeGap{old, oldManual} {
		if err := st.Create(ctx, g); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	removed, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := st.GetGap(ctx, oldManual.ID); err != nil {
		t.Errorf("manual gap should survive cleanup: %v", err)
	}
	expired, err := st.Get(ctx, schema.TableGaps, old.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !expired.Meta().IsDeleted() {
		t.Error("computed gap should be soft-deleted by cleanup")
	}
}

func TestValidateGaps_ReportsEveryOverlapAndWarning(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	mk := func(start, end string, minutes int, source schema.GapSource) *schema.TimeGap {
		g := &schema.TimeGap{
			Date: testDate, StartTime: start, EndTime: end,
			DurationMinutes: minutes, Source: source,
			IsAvailable:    true,
			LastModifiedAt: time.Now().UTC(),
		}
		g.OwnerID = "user-1"
		if err := st.Create(ctx, g); err != nil {
			t.Fatalf("Create gap failed: %v", err)
		}
		return g
	}

	// Three chained gaps make two overlapping pairs. The early manual
	// gap sits before the work window and only warrants a warning.
	mk("09:00", "10:00", 60, schema.GapSourceDefault)
	mk("09:30", "10:30", 60, schema.GapSourceDefault)
	mk("10:15", "11:00", 45, schema.GapSourceDefault)
	mk("06:00", "07:00", 60, schema.GapSourceManual)

	issues, warnings, err := m.ValidateGaps(ctx, "user-1", testDate)
	if err != nil {
		t.Fatalf("ValidateGaps failed: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %v, want both overlapping pairs reported", issues)
	}
	for _, issue := range issues {
		var verr *schema.ValidationError
		if !errors.As(issue, &verr) {
			t.Errorf("issue %v is not a ValidationError", issue)
		}
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one out-of-window warning", warnings)
	}
}

func TestValidateGaps_InvalidDate(t *testing.T) {
	m, _ := testManager(t)
	_, _, err := m.ValidateGaps(context.Background(), "user-1", "next tuesday")
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRecalculate_CacheVersionAndSource(t *testing.T) {
	ctx := context.Background()
	m, st := testManager(t)

	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	version, source, ok := m.cache.meta(cacheKey("user-1", testDate))
	if !ok || version != 1 || source != schema.GapSourceDefault {
		t.Fatalf("meta = v%d %q ok=%t, want v1 default", version, source, ok)
	}

	// The version keeps counting across an invalidation.
	m.Invalidate("user-1", testDate)
	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	version, source, _ = m.cache.meta(cacheKey("user-1", testDate))
	if version != 2 || source != schema.GapSourceDefault {
		t.Errorf("meta = v%d %q, want v2 default", version, source)
	}

	manual := &schema.TimeGap{
		Date:            testDate,
		StartTime:       "07:00",
		EndTime:         "08:00",
		DurationMinutes: 60,
		IsAvailable:     false,
		Source:          schema.GapSourceManual,
		ModifiedBy:      "user",
		LastModifiedAt:  time.Now().UTC(),
	}
	manual.OwnerID = "user-1"
	if err := st.Create(ctx, manual); err != nil {
		t.Fatalf("Create manual gap failed: %v", err)
	}
	m.Invalidate("user-1", testDate)
	if _, _, err := m.Recalculate(ctx, "user-1", testDate); err != nil {
		t.Fatalf("Recalculate failed: %v", err)
	}
	version, source, _ = m.cache.meta(cacheKey("user-1", testDate))
	if version != 3 || source != schema.GapSourceManual {
		t.Errorf("meta = v%d %q, want v3 manual", version, source)
	}
}

func TestTTLCache_ExpiryAndEviction(t *testing.T) {
	c := newTTLCache(time.Minute, 2)
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	c.put("a", nil, schema.GapSourceDefault)
	c.put("b", nil, schema.GapSourceDefault)
	if _, ok := c.get("a"); !ok {
		t.Fatal("fresh entry missing")
	}

	// Third insert evicts the oldest.
	c.put("c", nil, schema.GapSourceDefault)
	if _, ok := c.get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("second entry should survive eviction")
	}

	// TTL lapse.
	at = at.Add(2 * time.Minute)
	if _, ok := c.get("b"); ok {
		t.Error("stale entry should not be served")
	}
	if c.len() != 1 {
		t.Errorf("len = %d, want 1 after stale b removed on access", c.len())
	}
	if n := c.purgeExpired(); n != 1 {
		t.Errorf("purgeExpired = %d, want remaining stale entry dropped", n)
	}
}

func TestGapsForDate_InvalidDate(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.GapsForDate(context.Background(), "user-1", "09/02/2026")
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
