package gaps

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
	"github.com/jayminstro/gaplyv2-sub004/internal/store"
)

// Config controls gap caching, precompute, and expiry behavior.
type Config struct {
	// CacheTTL is how long a computed gap set stays fresh.
	CacheTTL time.Duration

	// CacheMaxEntries bounds the number of cached (owner, date) sets.
	CacheMaxEntries int

	// PrecomputeDays is how far ahead the background precompute looks.
	PrecomputeDays int

	// PrecomputeConcurrency bounds parallel precompute calculations.
	PrecomputeConcurrency int

	// ExpiryDays is the age past which non-manual gaps are cleaned up.
	ExpiryDays int

	Logger *log.Logger
}

// DefaultConfig returns the standard gap manager tuning.
func DefaultConfig() Config {
	return Config{
		CacheTTL:              5 * time.Minute,
		CacheMaxEntries:       50,
		PrecomputeDays:        7,
		PrecomputeConcurrency: 3,
		ExpiryDays:            3,
	}
}

// MergeStats reports what one recalculation changed.
type MergeStats struct {
	Created   int `json:"created"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`

	// Replaced counts computed gaps that displaced an existing
	// non-manual gap they overlapped without matching its interval.
	Replaced int `json:"replaced"`

	// Conflicts counts computed gaps dropped because they overlapped a
	// manual gap.
	Conflicts int `json:"conflicts"`
}

// Manager owns the gap lifecycle for all dates: computation, manual-gap
// precedence merge, persistence, caching, precompute, and expiry.
type Manager struct {
	store  *store.Store
	cache  *ttlCache
	locks  *keyedLocks
	cfg    Config
	logger *log.Logger

	// inflight tracks keys a precompute worker is already handling so a
	// burst of triggers doesn't duplicate work.
	mu       sync.Mutex
	inflight map[string]struct{}

	now func() time.Time
}

// NewManager creates a gap manager over the store.
func NewManager(st *store.Store, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = def.CacheMaxEntries
	}
	if cfg.PrecomputeDays <= 0 {
		cfg.PrecomputeDays = def.PrecomputeDays
	}
	if cfg.PrecomputeConcurrency <= 0 {
		cfg.PrecomputeConcurrency = def.PrecomputeConcurrency
	}
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = def.ExpiryDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[gaps] ", log.LstdFlags)
	}

	return &Manager{
		store:    st,
		cache:    newTTLCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		locks:    newKeyedLocks(),
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(ownerID, date string) string {
	return ownerID + "|" + date
}

// GapsForDate returns the gaps for a date, from cache when fresh,
// recalculating otherwise.
func (m *Manager) GapsForDate(ctx context.Context, ownerID, date string) ([]*schema.TimeGap, error) {
	if cached, ok := m.cache.get(cacheKey(ownerID, date)); ok {
		return cached, nil
	}
	gaps, _, err := m.Recalculate(ctx, ownerID, date)
	return gaps, err
}

// Recalculate recomputes and persists the gaps for one date, holding the
// date's lock across the whole read-compute-persist sequence. Manual gaps
// always survive; computed gaps that collide with them are dropped.
func (m *Manager) Recalculate(ctx context.Context, ownerID, date string) ([]*schema.TimeGap, MergeStats, error) {
	unlock := m.locks.lock(cacheKey(ownerID, date))
	defer unlock()

	prefs, err := m.store.GetPreferences(ctx, ownerID)
	if err != nil {
		return nil, MergeStats{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	tasks, err := m.store.ListTasksForDate(ctx, ownerID, date)
	if err != nil {
		return nil, MergeStats{}, fmt.Errorf("failed to load tasks for %s: %w", date, err)
	}

	computed, err := Compute(prefs, date, tasks)
	if err != nil {
		return nil, MergeStats{}, err
	}

	merged, stats, err := m.persistMerge(ctx, ownerID, date, computed)
	if err != nil {
		return nil, stats, err
	}

	m.cache.put(cacheKey(ownerID, date), merged, classifySource(merged))

	if stats.Created+stats.Removed+stats.Replaced+stats.Conflicts > 0 {
		m.logger.Printf("Recalculated gaps for %s/%s: created=%d unchanged=%d removed=%d replaced=%d conflicts=%d",
			ownerID, date, stats.Created, stats.Unchanged, stats.Removed, stats.Replaced, stats.Conflicts)
	}
	return merged, stats, nil
}

// persistMerge reconciles the computed gap set with what is stored.
// Existing computed gaps with an identical interval are kept as-is to
// avoid sync churn; stale computed gaps are soft-deleted; new intervals
// are created. Must be called with the date's lock held.
func (m *Manager) persistMerge(ctx context.Context, ownerID, date string, computed []*schema.TimeGap) ([]*schema.TimeGap, MergeStats, error) {
	var stats MergeStats

	existing, err := m.store.ListGapsForDate(ctx, ownerID, date)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load gaps for %s: %w", date, err)
	}

	var manual []*schema.TimeGap
	stale := make(map[string]*schema.TimeGap)
	for _, g := range existing {
		if g.Manual() {
			manual = append(manual, g)
		} else {
			stale[g.StartTime+"-"+g.EndTime] = g
		}
	}

	result := append([]*schema.TimeGap{}, manual...)

	for _, g := range computed {
		if overlapsAny(g, manual) {
			stats.Conflicts++
			continue
		}

		if prev, ok := stale[g.StartTime+"-"+g.EndTime]; ok {
			delete(stale, g.StartTime+"-"+g.EndTime)
			result = append(result, prev)
			stats.Unchanged++
			continue
		}

		// A computed gap that overlaps an old computed gap without
		// matching its interval replaces it, rather than reading as one
		// creation plus one removal.
		displaced := false
		for key, prev := range stale {
			if !g.Overlaps(prev) {
				continue
			}
			if err := m.store.SoftDelete(ctx, schema.TableGaps, prev.ID); err != nil {
				return nil, stats, fmt.Errorf("failed to displace gap %s: %w", prev.ID, err)
			}
			delete(stale, key)
			displaced = true
		}

		g.OwnerID = ownerID
		g.ModifiedBy = "engine"
		g.LastModifiedAt = m.now()
		if err := m.store.Create(ctx, g); err != nil {
			return nil, stats, fmt.Errorf("failed to create gap %s %s-%s: %w", date, g.StartTime, g.EndTime, err)
		}
		result = append(result, g)
		if displaced {
			stats.Replaced++
		} else {
			stats.Created++
		}
	}

	// Whatever computed gaps didn't reclaim is no longer free time.
	for _, g := range stale {
		if err := m.store.SoftDelete(ctx, schema.TableGaps, g.ID); err != nil {
			return nil, stats, fmt.Errorf("failed to remove stale gap %s: %w", g.ID, err)
		}
		stats.Removed++
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StartTime < result[j].StartTime })
	return result, stats, nil
}

// classifySource labels a merged gap set by its strongest origin: any
// manual gap marks the set manual, then calendar, then default.
func classifySource(gaps []*schema.TimeGap) schema.GapSource {
	source := schema.GapSourceDefault
	for _, g := range gaps {
		switch g.Source {
		case schema.GapSourceManual:
			return schema.GapSourceManual
		case schema.GapSourceCalendar:
			source = schema.GapSourceCalendar
		}
	}
	return source
}

func overlapsAny(g *schema.TimeGap, others []*schema.TimeGap) bool {
	for _, o := range others {
		if g.Overlaps(o) {
			return true
		}
	}
	return false
}

// ValidateGaps checks the stored gap set for a date against the owner's
// work window. Every overlapping pair and malformed gap comes back as an
// issue; gaps sitting outside the window are warnings only.
func (m *Manager) ValidateGaps(ctx context.Context, ownerID, date string) (issues []error, warnings []string, err error) {
	if _, perr := time.Parse(schema.DateLayout, date); perr != nil {
		return nil, nil, &schema.ValidationError{Field: "date", Reason: "must be formatted as 2006-01-02"}
	}

	prefs, err := m.store.GetPreferences(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	gaps, err := m.store.ListGapsForDate(ctx, ownerID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load gaps for %s: %w", date, err)
	}

	issues, warnings = checkGaps(prefs.WorkWindow(), gaps)
	return issues, warnings, nil
}

// Invalidate drops the cached gap set for a date. Called whenever a task
// mutation touches that date.
func (m *Manager) Invalidate(ownerID, date string) {
	m.cache.invalidate(cacheKey(ownerID, date))
}

// PurgeExpiredCache drops stale cache entries and reports the count.
func (m *Manager) PurgeExpiredCache() int {
	return m.cache.purgeExpired()
}

// Precompute warms the next PrecomputeDays dates for an owner, starting
// today, with bounded concurrency. Dates already being computed are
// skipped. The first error is returned, but remaining dates still run.
func (m *Manager) Precompute(ctx context.Context, ownerID string) error {
	today := m.now()

	sem := make(chan struct{}, m.cfg.PrecomputeConcurrency)
	var wg sync.WaitGroup

	var errMu sync.Mutex
	var firstErr error

	for i := 0; i < m.cfg.PrecomputeDays; i++ {
		date := today.AddDate(0, 0, i).Format(schema.DateLayout)
		if !m.claim(cacheKey(ownerID, date)) {
			continue
		}

		wg.Add(1)
		go func(date string) {
			defer wg.Done()
			defer m.release(cacheKey(ownerID, date))

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if _, _, err := m.Recalculate(ctx, ownerID, date); err != nil {
				m.logger.Printf("WARNING: precompute for %s failed: %v", date, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(date)
	}

	wg.Wait()
	return firstErr
}

func (m *Manager) claim(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, key)
}

// CleanupExpired soft-deletes computed gaps older than ExpiryDays. Manual
// gaps are never expired. Returns how many gaps were removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := m.now().AddDate(0, 0, -m.cfg.ExpiryDays).Format(schema.DateLayout)

	old, err := m.store.ListGapsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired gaps: %w", err)
	}

	removed := 0
	for _, g := range old {
		if err := m.store.SoftDelete(ctx, schema.TableGaps, g.ID); err != nil {
			return removed, fmt.Errorf("failed to expire gap %s: %w", g.ID, err)
		}
		m.cache.invalidate(cacheKey(g.OwnerID, g.Date))
		removed++
	}

	if removed > 0 {
		m.logger.Printf("Expired %d gaps older than %s", removed, cutoff)
	}
	return removed, nil
}
