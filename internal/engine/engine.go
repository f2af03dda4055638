// Package engine wires the store, remote client, network monitor, sync
// orchestrator, gap manager, and delete manager into one caller-owned
// handle. The engine owns every background timer; after Stop returns, no
// engine goroutine is left running and the database is closed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/config"
	"github.com/jayminstro/gaplyv2-sub004/internal/dashboard"
	"github.com/jayminstro/gaplyv2-sub004/internal/deletes"
	"github.com/jayminstro/gaplyv2-sub004/internal/gaps"
	"github.com/jayminstro/gaplyv2-sub004/internal/logging"
	"github.com/jayminstro/gaplyv2-sub004/internal/netmon"
	"github.com/jayminstro/gaplyv2-sub004/internal/remote"
	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
	"github.com/jayminstro/gaplyv2-sub004/internal/store"
	gsync "github.com/jayminstro/gaplyv2-sub004/internal/sync"
)

// defaultBatchDelay applies when sync.batch_delay is unset: how long the
// engine waits after a local mutation before triggering a sync, so a
// burst of edits becomes one cycle.
const defaultBatchDelay = 3 * time.Second

// defaultBatchSize applies when sync.batch_size is unset: the number of
// coalesced mutation signals that triggers the batched sync early.
const defaultBatchSize = 25

// housekeepingInterval drives delete housekeeping, gap expiry, cache
// purging, and store maintenance.
const housekeepingInterval = time.Hour

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Online         bool           `json:"online"`
	Quality        netmon.Quality `json:"quality"`
	SyncInProgress bool           `json:"sync_in_progress"`
	LastSyncAt     time.Time      `json:"last_sync_at"`
	PendingChanges int            `json:"pending_changes"`
	PendingDeletes int            `json:"pending_deletes"`
	QueueLength    int            `json:"queue_length"`
	SchemaVersion  int            `json:"schema_version"`
}

// Engine is the top-level handle. Create with New, then Start; the caller
// MUST call Stop when done.
type Engine struct {
	cfg     *config.Config
	ownerID string

	store   *store.Store
	remote  *remote.Client
	monitor *netmon.Monitor
	syncer  *gsync.Syncer
	sched   *gsync.Scheduler
	gaps    *gaps.Manager
	deletes *deletes.Manager
	dash    *dashboard.Server

	sink   io.Writer
	logger *loggerSet

	mutations chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// loggerSet holds the per-component prefix loggers sharing one sink.
type loggerSet struct {
	engine, store, sync, gaps, deletes, netmon, dashboard *log.Logger
}

// New creates an engine for one owner. tokens may be nil when no remote
// is configured; the engine then runs local-only and every sync cycle is
// skipped.
func New(cfg *config.Config, ownerID string, tokens remote.TokenProvider) (*Engine, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	sink := logging.NewSink(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	loggers := &loggerSet{
		engine:    logging.New("engine", sink),
		store:     logging.New("store", sink),
		sync:      logging.New("sync", sink),
		gaps:      logging.New("gaps", sink),
		deletes:   logging.New("deletes", sink),
		netmon:    logging.New("netmon", sink),
		dashboard: logging.New("dashboard", sink),
	}

	st, err := store.Open(cfg.Database.Path, loggers.store)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}

	monitor := netmon.New(netmon.DialProbe(cfg.Network.ProbeAddr), &netmon.Config{
		PollInterval: cfg.Network.PollInterval,
		Logger:       loggers.netmon,
	})

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		ownerID:   ownerID,
		store:     st,
		monitor:   monitor,
		sink:      sink,
		logger:    loggers,
		mutations: make(chan struct{}, 64),
		ctx:       ctx,
		cancel:    cancel,
	}

	e.gaps = gaps.NewManager(st, gaps.Config{
		CacheTTL:              cfg.Gaps.CacheTTL,
		CacheMaxEntries:       cfg.Gaps.CacheMaxEntries,
		PrecomputeDays:        cfg.Gaps.PrecomputeDays,
		PrecomputeConcurrency: cfg.Gaps.PrecomputeConcurrency,
		ExpiryDays:            cfg.Gaps.ExpiryDays,
		Logger:                loggers.gaps,
	})

	if cfg.Remote.BaseURL != "" && tokens != nil {
		e.remote = remote.New(cfg.Remote.BaseURL, tokens, nil, logging.New("remote", sink))
		e.syncer = gsync.New(st, e.remote, monitor.Online, loggers.sync)
		e.syncer.OnResult = e.onSyncResult
		e.sched = gsync.NewScheduler(e.syncer, monitor, gsync.SchedulerConfig{
			Interval:    cfg.Sync.Interval,
			SettleDelay: cfg.Sync.SettleDelay,
			Logger:      loggers.sync,
		})
	} else {
		loggers.engine.Printf("No remote configured, running local-only")
	}

	var rem deletes.Remote
	if e.remote != nil {
		rem = e.remote
	}
	e.deletes = deletes.NewManager(st, rem, deletes.Config{
		MaxPendingAge: cfg.Sync.HousekeepingAge,
		Logger:        loggers.deletes,
	})

	return e, nil
}

// Start launches the monitor, background sync, and housekeeping loops.
func (e *Engine) Start() error {
	var startErr error
	e.startOnce.Do(func() {
		if _, err := e.deletes.RebuildFromStore(e.ctx); err != nil {
			startErr = err
			return
		}

		e.monitor.Start()
		if e.sched != nil {
			e.sched.Start()
		}

		e.monitor.OnChange(func(status netmon.Status) {
			e.broadcast(dashboard.MessageTypeNetwork, status)
		})

		e.wg.Add(2)
		go e.mutationLoop()
		go e.housekeepingLoop()

		// Warm the next week's gaps without blocking startup.
		go func() {
			if err := e.gaps.Precompute(e.ctx, e.ownerID); err != nil {
				e.logger.gaps.Printf("WARNING: startup precompute: %v", err)
			}
		}()

		e.logger.engine.Printf("Engine started for owner %s", e.ownerID)
	})
	return startErr
}

// Stop tears everything down and closes the database. Safe to call more
// than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.cancel()
		if e.sched != nil {
			e.sched.Stop()
		}
		e.monitor.Stop()
		if e.dash != nil {
			if derr := e.dash.Stop(); derr != nil {
				e.logger.dashboard.Printf("WARNING: dashboard stop: %v", derr)
			}
		}
		e.wg.Wait()
		err = e.store.Close()
		e.logger.engine.Printf("Engine stopped")
	})
	return err
}

// ServeDashboard starts the WebSocket dashboard and returns its address.
func (e *Engine) ServeDashboard() (string, error) {
	if e.dash != nil {
		return e.dash.Addr(), nil
	}

	e.dash = dashboard.NewServer(dashboard.Config{
		Addr:   e.cfg.Dashboard.Addr,
		Logger: e.logger.dashboard,
		Status: func() any {
			status, err := e.CurrentStatus(context.Background())
			if err != nil {
				return map[string]string{"error": err.Error()}
			}
			return status
		},
	})
	if err := e.dash.Start(); err != nil {
		e.dash = nil
		return "", err
	}
	return e.dash.Addr(), nil
}

// ApplyConfig applies hot-reloadable tunables from a freshly loaded
// configuration. Database path, remote endpoint, and dashboard address
// changes require a restart and are logged when detected.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg.Database.Path != e.cfg.Database.Path ||
		cfg.Remote.BaseURL != e.cfg.Remote.BaseURL ||
		cfg.Dashboard.Addr != e.cfg.Dashboard.Addr {
		e.logger.engine.Printf("WARNING: database, remote, and dashboard changes need a restart; keeping current values")
	}

	if e.sched != nil {
		e.sched.SetInterval(cfg.Sync.Interval)
	}
	e.deletes.SetMaxPendingAge(cfg.Sync.HousekeepingAge)

	e.logger.engine.Printf("Configuration reloaded")
}

// Store exposes the underlying store for read paths the facade does not
// wrap (CLI listing commands).
func (e *Engine) Store() *store.Store {
	return e.store
}

// CreateTask persists a task, invalidates the affected date's gaps, and
// schedules a batched sync.
func (e *Engine) CreateTask(ctx context.Context, task *schema.Task) error {
	if task.OwnerID == "" {
		task.OwnerID = e.ownerID
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	if err := e.store.Create(ctx, task); err != nil {
		return err
	}
	e.noteMutation(task.DueDate)
	return nil
}

// UpdateTask applies a mutation to a task and invalidates both the old
// and new due dates.
func (e *Engine) UpdateTask(ctx context.Context, id string, mutate func(*schema.Task)) (*schema.Task, error) {
	before, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	oldDate := before.DueDate

	updated, err := e.store.UpdateTask(ctx, id, func(t *schema.Task) error {
		mutate(t)
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldDate != "" && oldDate != updated.DueDate {
		e.gaps.Invalidate(updated.OwnerID, oldDate)
	}
	e.noteMutation(updated.DueDate)
	return updated, nil
}

// CompleteTask marks a task completed, freeing its busy interval.
func (e *Engine) CompleteTask(ctx context.Context, id string) (*schema.Task, error) {
	return e.UpdateTask(ctx, id, func(t *schema.Task) {
		t.Status = schema.TaskStatusCompleted
	})
}

// DeleteRecord runs the safe-delete lifecycle for any entity.
func (e *Engine) DeleteRecord(ctx context.Context, table, id, reason string) *deletes.Result {
	var dateKey, owner string
	if rec, err := e.store.Get(ctx, table, id); err == nil {
		dateKey = rec.DateKey()
		owner = rec.Meta().OwnerID
	}

	res := e.deletes.SafeDelete(ctx, table, id, reason)
	if res.Success {
		if dateKey != "" {
			e.gaps.Invalidate(owner, dateKey)
		}
		e.noteMutation(dateKey)
	}
	e.broadcast(dashboard.MessageTypeDeleteEvent, res)
	return res
}

// RestoreRecord undoes a pending safe-delete.
func (e *Engine) RestoreRecord(ctx context.Context, table, id string) (*deletes.Result, error) {
	res, err := e.deletes.RestoreItem(ctx, table, id)
	if err == nil && res.Success {
		if rec, gerr := e.store.Get(ctx, table, id); gerr == nil && rec.DateKey() != "" {
			e.gaps.Invalidate(rec.Meta().OwnerID, rec.DateKey())
		}
		e.noteMutation("")
		e.broadcast(dashboard.MessageTypeDeleteEvent, res)
	}
	return res, err
}

// GapsForDate returns the free gaps for a date, computing them on demand.
func (e *Engine) GapsForDate(ctx context.Context, date string) ([]*schema.TimeGap, error) {
	return e.gaps.GapsForDate(ctx, e.ownerID, date)
}

// RecalculateGaps forces a recomputation for one date.
func (e *Engine) RecalculateGaps(ctx context.Context, date string) ([]*schema.TimeGap, gaps.MergeStats, error) {
	result, stats, err := e.gaps.Recalculate(ctx, e.ownerID, date)
	if err == nil {
		e.broadcast(dashboard.MessageTypeGapRecalc, map[string]any{
			"date":  date,
			"stats": stats,
		})
	}
	return result, stats, err
}

// ValidateGaps checks the stored gaps for a date against the work
// window, returning overlap issues and out-of-window warnings.
func (e *Engine) ValidateGaps(ctx context.Context, date string) ([]error, []string, error) {
	return e.gaps.ValidateGaps(ctx, e.ownerID, date)
}

// SyncNow runs a user-requested sync cycle at high priority.
func (e *Engine) SyncNow(ctx context.Context, force bool) (*gsync.Result, error) {
	if e.syncer == nil {
		return &gsync.Result{Success: true, Skipped: "no remote configured", StartedAt: time.Now().UTC()}, nil
	}
	return e.syncer.Sync(ctx, gsync.Options{Force: force, Priority: gsync.PriorityHigh})
}

// LastSync returns when the last clean sync cycle completed.
func (e *Engine) LastSync(ctx context.Context) (time.Time, error) {
	return e.store.LastSyncAt(ctx)
}

// PendingChanges counts local records awaiting sync.
func (e *Engine) PendingChanges(ctx context.Context) (int, error) {
	return e.store.CountUnsynced(ctx)
}

// CurrentStatus assembles the engine status snapshot.
func (e *Engine) CurrentStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	net := e.monitor.Status()
	status.Online = net.Online
	status.Quality = net.Quality

	if e.syncer != nil {
		status.SyncInProgress = e.syncer.InProgress()
	}

	lastSync, err := e.store.LastSyncAt(ctx)
	if err != nil {
		return nil, err
	}
	status.LastSyncAt = lastSync

	if status.PendingChanges, err = e.store.CountUnsynced(ctx); err != nil {
		return nil, err
	}
	if status.QueueLength, err = e.store.QueueLen(ctx); err != nil {
		return nil, err
	}
	status.PendingDeletes = e.deletes.PendingCount()

	if status.SchemaVersion, _, err = e.store.SchemaInfo(ctx); err != nil {
		return nil, err
	}
	return status, nil
}

// noteMutation records a local change for the batched sync trigger and
// invalidates the date's cached gaps.
func (e *Engine) noteMutation(dateKey string) {
	if dateKey != "" {
		e.gaps.Invalidate(e.ownerID, dateKey)
	}
	select {
	case e.mutations <- struct{}{}:
	default:
	}
}

// mutationLoop coalesces mutation signals: the first signal arms a short
// timer, further signals within the window join the same batch, then one
// sync cycle runs. A batch absorbing BatchSize signals fires early so a
// sustained edit stream still syncs promptly.
func (e *Engine) mutationLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.mutations:
		}

		delay := e.cfg.Sync.BatchDelay
		if delay <= 0 {
			delay = defaultBatchDelay
		}
		batchSize := e.cfg.Sync.BatchSize
		if batchSize <= 0 {
			batchSize = defaultBatchSize
		}

		timer := time.NewTimer(delay)
		batched := 1
	drain:
		for {
			select {
			case <-e.ctx.Done():
				timer.Stop()
				return
			case <-e.mutations:
				batched++
				if batched >= batchSize {
					timer.Stop()
					break drain
				}
			case <-timer.C:
				break drain
			}
		}

		if e.syncer == nil || !e.monitor.Online() {
			continue
		}
		if _, err := e.syncer.Sync(e.ctx, gsync.Options{Priority: gsync.PriorityNormal}); err != nil && !errors.Is(err, schema.ErrSyncInProgress) {
			e.logger.engine.Printf("WARNING: batched sync failed: %v", err)
		}
	}
}

// housekeepingLoop runs the hourly maintenance pass.
func (e *Engine) housekeepingLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}

		e.deletes.Housekeeping()
		if _, err := e.deletes.ProcessQueue(e.ctx); err != nil {
			e.logger.deletes.Printf("WARNING: delete queue processing: %v", err)
		}
		if _, err := e.gaps.CleanupExpired(e.ctx); err != nil {
			e.logger.gaps.Printf("WARNING: gap expiry cleanup: %v", err)
		}
		e.gaps.PurgeExpiredCache()
		if err := e.store.Maintenance(e.ctx); err != nil {
			e.logger.store.Printf("WARNING: maintenance: %v", err)
		}
	}
}

func (e *Engine) onSyncResult(result *gsync.Result) {
	e.broadcast(dashboard.MessageTypeSyncResult, result)
}

// broadcast forwards an event to the dashboard when one is running.
func (e *Engine) broadcast(typ dashboard.MessageType, payload any) {
	if e.dash == nil {
		return
	}
	e.dash.BroadcastEvent(typ, payload)
}
