package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// Typed wrappers over the generic record operations. The gap lifecycle
// manager and the engine surface work with concrete entity types; these
// helpers keep the casts in one place.

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*schema.Task, error) {
	rec, err := s.Get(ctx, schema.TableTasks, id)
	if err != nil {
		return nil, err
	}
	return rec.(*schema.Task), nil
}

// UpdateTask applies a typed mutation to a task.
func (s *Store) UpdateTask(ctx context.Context, id string, mutate func(*schema.Task) error) (*schema.Task, error) {
	rec, err := s.Update(ctx, schema.TableTasks, id, func(r schema.Record) error {
		return mutate(r.(*schema.Task))
	})
	if err != nil {
		return nil, err
	}
	return rec.(*schema.Task), nil
}

// ListTasksForDate returns active tasks due on the given date.
func (s *Store) ListTasksForDate(ctx context.Context, ownerID, date string) ([]*schema.Task, error) {
	recs, err := s.ListByDateRange(ctx, schema.TableTasks, ownerID, date, date)
	if err != nil {
		return nil, err
	}
	tasks := make([]*schema.Task, 0, len(recs))
	for _, r := range recs {
		tasks = append(tasks, r.(*schema.Task))
	}
	return tasks, nil
}

// GetGap retrieves a time gap by id.
func (s *Store) GetGap(ctx context.Context, id string) (*schema.TimeGap, error) {
	rec, err := s.Get(ctx, schema.TableGaps, id)
	if err != nil {
		return nil, err
	}
	return rec.(*schema.TimeGap), nil
}

// UpdateGap applies a typed mutation to a time gap.
func (s *Store) UpdateGap(ctx context.Context, id string, mutate func(*schema.TimeGap) error) (*schema.TimeGap, error) {
	rec, err := s.Update(ctx, schema.TableGaps, id, func(r schema.Record) error {
		return mutate(r.(*schema.TimeGap))
	})
	if err != nil {
		return nil, err
	}
	return rec.(*schema.TimeGap), nil
}

// ListGapsForDate returns active gaps on the given date.
func (s *Store) ListGapsForDate(ctx context.Context, ownerID, date string) ([]*schema.TimeGap, error) {
	recs, err := s.ListByDateRange(ctx, schema.TableGaps, ownerID, date, date)
	if err != nil {
		return nil, err
	}
	gaps := make([]*schema.TimeGap, 0, len(recs))
	for _, r := range recs {
		gaps = append(gaps, r.(*schema.TimeGap))
	}
	return gaps, nil
}

// ListGapsBefore returns active non-manual gaps dated strictly before the
// cutoff date. Used by expiry cleanup; manual gaps are never swept.
func (s *Store) ListGapsBefore(ctx context.Context, cutoff string) ([]*schema.TimeGap, error) {
	query := fmt.Sprintf(
		"SELECT data FROM %s WHERE deleted_at IS NULL AND date_key < ? ORDER BY date_key", schema.TableGaps)
	recs, err := s.queryRecords(ctx, schema.TableGaps, query, cutoff)
	if err != nil {
		return nil, err
	}
	var gaps []*schema.TimeGap
	for _, r := range recs {
		gap := r.(*schema.TimeGap)
		if gap.Manual() {
			continue
		}
		gaps = append(gaps, gap)
	}
	return gaps, nil
}

// GetPreferences returns the owner's preferences, falling back to defaults
// when none are stored yet.
func (s *Store) GetPreferences(ctx context.Context, ownerID string) (*schema.UserPreferences, error) {
	recs, err := s.ListByOwner(ctx, schema.TablePreferences, ownerID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return schema.DefaultPreferences(ownerID), nil
	}
	return recs[0].(*schema.UserPreferences), nil
}

// GetProfile returns the owner's profile record.
func (s *Store) GetProfile(ctx context.Context, ownerID string) (*schema.UserProfile, error) {
	recs, err := s.ListByOwner(ctx, schema.TableProfile, ownerID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, schema.ErrNotFound
	}
	return recs[0].(*schema.UserProfile), nil
}

// CountUnsynced returns the number of unsynced records across all entity
// tables plus pending queue entries. Used for status snapshots.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	total := 0
	for _, table := range entityTables {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE is_synced = 0", table)
		if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count unsynced %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// IsNotFound reports whether err is the store's missing-record signal.
func IsNotFound(err error) bool {
	return errors.Is(err, schema.ErrNotFound)
}
