package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
	"github.com/jayminstro/gaplyv2-sub004/internal/store"
	"github.com/jayminstro/gaplyv2-sub004/internal/sync/conflict"
)

// Priority classifies who asked for a sync cycle. Background cycles run
// low, reconnect cycles normal, explicit user requests high.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Options controls a single sync cycle.
type Options struct {
	// Force admits the cycle even when the prechecks would decline it:
	// a forced call waits out a cycle already in flight instead of
	// returning ErrSyncInProgress, and attempts the cycle even when the
	// monitor says we are offline.
	Force bool

	Priority Priority
}

// Result summarizes one sync cycle.
type Result struct {
	Success     bool          `json:"success"`
	SyncedItems int           `json:"synced_items"`
	Conflicts   int           `json:"conflicts"`
	Errors      []string      `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"started_at"`

	// Skipped is set when the precheck declined to run the cycle. A
	// skipped cycle is not a failure.
	Skipped string `json:"skipped,omitempty"`
}

// Remote is the slice of the API client the syncer needs. *remote.Client
// satisfies it.
type Remote interface {
	PullChanges(ctx context.Context, table string, since time.Time) ([]schema.Record, error)
	PushDelta(ctx context.Context, delta *schema.Delta) error
	DeleteRecord(ctx context.Context, table, id string) error
	Ping(ctx context.Context) error
	Authenticated(ctx context.Context) bool
}

// Syncer runs sync cycles against a store and a remote.
type Syncer struct {
	store    *store.Store
	remote   Remote
	resolver conflict.Resolver
	online   func() bool
	logger   *log.Logger

	// busy enforces single-flight: exactly one cycle at a time.
	busy atomic.Bool

	// OnResult, when set, receives every completed (non-skipped) cycle
	// result. Set before the first Sync call.
	OnResult func(*Result)

	now func() time.Time
}

// New creates a Syncer. The store must have its schema initialized.
//
// online reports current connectivity; pass nil to skip the precheck
// entirely (every cycle then behaves as if forced).
func New(st *store.Store, rem Remote, online func() bool, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		store:    st,
		remote:   rem,
		resolver: conflict.New(),
		online:   online,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InProgress reports whether a cycle is currently running.
func (s *Syncer) InProgress() bool {
	return s.busy.Load()
}

// acquire takes the single-flight guard. Non-forced callers fail fast
// with ErrSyncInProgress; forced callers poll until the running cycle
// releases the guard or the context ends.
func (s *Syncer) acquire(ctx context.Context, force bool) error {
	if s.busy.CompareAndSwap(false, true) {
		return nil
	}
	if !force {
		return schema.ErrSyncInProgress
	}

	ticker := time.NewTicker(guardPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.busy.CompareAndSwap(false, true) {
				return nil
			}
		}
	}
}

// guardPollInterval is how often a forced call re-checks the busy guard
// while waiting for a running cycle to finish.
const guardPollInterval = 25 * time.Millisecond

// Sync runs one full cycle: push, pull, queue drain. It returns
// ErrSyncInProgress without doing any work when another cycle holds the
// guard, unless forced, in which case it waits for the running cycle
// and then proceeds.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	if err := s.acquire(ctx, opts.Force); err != nil {
		return nil, err
	}
	defer s.busy.Store(false)

	if opts.Priority == "" {
		opts.Priority = PriorityNormal
	}

	start := s.now()
	result := &Result{StartedAt: start}

	// Prechecks: don't burn retries when we already know the cycle
	// cannot succeed. A skipped cycle is non-fatal but carries the typed
	// reason so callers can tell the skips apart.
	if !opts.Force {
		if s.online != nil && !s.online() {
			result.Success = true
			result.Skipped = "offline"
			netErr := &schema.NetworkError{Op: "precheck", Err: errors.New("monitor reports offline")}
			result.Errors = append(result.Errors, netErr.Error())
			result.Duration = s.now().Sub(start)
			s.logger.Printf("Skipping %s sync: offline", opts.Priority)
			return result, nil
		}
		if !s.remote.Authenticated(ctx) {
			result.Success = true
			result.Skipped = "no credential"
			authErr := &schema.AuthError{Reason: "no bearer token available"}
			result.Errors = append(result.Errors, authErr.Error())
			result.Duration = s.now().Sub(start)
			s.logger.Printf("Skipping %s sync: no credential", opts.Priority)
			return result, nil
		}
	}

	s.logger.Printf("Starting %s sync", opts.Priority)

	// since is captured before the cycle so changes that land remotely
	// while we run are picked up next time.
	since, err := s.store.LastSyncAt(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	s.pushPhase(ctx, result)
	s.pullPhase(ctx, since, result)
	s.drainPhase(ctx, result)

	result.Success = len(result.Errors) == 0
	result.Duration = s.now().Sub(start)

	if result.Success {
		if err := s.store.SetLastSyncAt(ctx, start); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
		}
	}

	s.logger.Printf("Sync complete: success=%t items=%d conflicts=%d errors=%d duration=%s",
		result.Success, result.SyncedItems, result.Conflicts, len(result.Errors), result.Duration)

	if s.OnResult != nil {
		s.OnResult(result)
	}

	return result, nil
}

// pushPhase sends every unsynced live record to the remote and marks it
// synced. Individual record failures are recorded and the phase continues;
// the durable queue still holds each failed mutation for the drain phase.
func (s *Syncer) pushPhase(ctx context.Context, result *Result) {
	for _, table := range store.EntityTables() {
		records, err := s.store.ListUnsynced(ctx, table)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("push %s: %v", table, err))
			continue
		}

		for _, rec := range records {
			if err := s.pushRecord(ctx, rec); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("push %s/%s: %v", table, rec.Meta().ID, err))
				continue
			}
			result.SyncedItems++
		}
	}
}

func (s *Syncer) pushRecord(ctx context.Context, rec schema.Record) error {
	delta, err := schema.CalculateDelta(rec)
	if err != nil {
		return err
	}
	if err := s.remote.PushDelta(ctx, delta); err != nil {
		return err
	}
	return s.store.MarkSynced(ctx, rec.Table(), rec.Meta().ID, rec.Meta().SyncVersion)
}

// pullPhase fetches remote changes since the last completed cycle and
// resolves each against the local copy.
func (s *Syncer) pullPhase(ctx context.Context, since time.Time, result *Result) {
	for _, table := range store.EntityTables() {
		remotes, err := s.remote.PullChanges(ctx, table, since)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pull %s: %v", table, err))
			continue
		}

		for _, rem := range remotes {
			if err := s.applyPulled(ctx, table, rem, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("pull %s/%s: %v", table, rem.Meta().ID, err))
			}
		}
	}
}

func (s *Syncer) applyPulled(ctx context.Context, table string, rem schema.Record, result *Result) error {
	local, err := s.store.Get(ctx, table, rem.Meta().ID)
	if err != nil && !errors.Is(err, schema.ErrNotFound) {
		return err
	}

	resolved, outcome, err := s.resolver.Resolve(local, rem)
	if err != nil {
		return err
	}

	switch outcome {
	case conflict.OutcomeKeptLocal, conflict.OutcomeLocalWins:
		// Local copy stands; the next push delivers it.
		if outcome == conflict.OutcomeLocalWins {
			result.Conflicts++
		}
		return nil
	case conflict.OutcomeMerged:
		result.Conflicts++
	case conflict.OutcomeRemoteWins:
		if local != nil && !local.Meta().IsSynced {
			result.Conflicts++
		}
	}

	if err := s.store.ApplyRemote(ctx, resolved); err != nil {
		return err
	}
	result.SyncedItems++
	return nil
}

// drainPhase works through the durable queue: residual mutations whose
// push failed earlier and pending deletes. Items that keep failing are
// dropped after MaxQueueRetries attempts and surfaced as errors.
func (s *Syncer) drainPhase(ctx context.Context, result *Result) {
	items, err := s.store.ListQueue(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("drain: %v", err))
		return
	}

	for _, item := range items {
		if s.online != nil && !s.online() {
			s.logger.Printf("Connection lost, stopping queue drain (%d items left)", len(items))
			return
		}

		if err := s.drainItem(ctx, item); err != nil {
			s.failItem(ctx, item, err, result)
			continue
		}
		result.SyncedItems++
	}
}

// drainItem delivers one queue item. Deletes are confirmed against the
// remote and then purged locally; other operations re-push the record's
// current state.
func (s *Syncer) drainItem(ctx context.Context, item *schema.SyncQueueItem) error {
	if item.Operation == schema.OpDelete {
		// A record restored after this item was queued must survive: the
		// delete item is stale, drop it without touching the remote.
		rec, err := s.store.Get(ctx, item.Table, item.RecordID)
		if err != nil && !errors.Is(err, schema.ErrNotFound) {
			return err
		}
		if rec != nil && !rec.Meta().IsDeleted() {
			return s.store.RemoveQueueItem(ctx, item.ID)
		}

		if err := s.remote.DeleteRecord(ctx, item.Table, item.RecordID); err != nil {
			return err
		}
		if _, err := s.store.HardDelete(ctx, item.Table, item.RecordID); err != nil {
			return err
		}
		return s.store.RemoveQueueItem(ctx, item.ID)
	}

	rec, err := s.store.Get(ctx, item.Table, item.RecordID)
	if errors.Is(err, schema.ErrNotFound) {
		// Record purged since the mutation was queued.
		return s.store.RemoveQueueItem(ctx, item.ID)
	}
	if err != nil {
		return err
	}

	meta := rec.Meta()
	if meta.IsSynced || meta.IsDeleted() {
		// Already delivered by the push phase, or superseded by a delete
		// item later in the queue.
		return s.store.RemoveQueueItem(ctx, item.ID)
	}

	return s.pushRecord(ctx, rec)
}

// failItem bumps the item's retry count and drops it once the retry
// budget is spent.
func (s *Syncer) failItem(ctx context.Context, item *schema.SyncQueueItem, cause error, result *Result) {
	count, err := s.store.RecordFailure(ctx, item.ID, cause.Error())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("drain %s/%s: %v", item.Table, item.RecordID, err))
		return
	}

	if count < schema.MaxQueueRetries {
		result.Errors = append(result.Errors, fmt.Sprintf("drain %s/%s: %v", item.Table, item.RecordID, cause))
		return
	}

	if err := s.store.RemoveQueueItem(ctx, item.ID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("drain %s/%s: %v", item.Table, item.RecordID, err))
		return
	}

	dropped := &schema.MaxRetriesError{
		ItemID:   item.RecordID,
		Table:    item.Table,
		Attempts: count,
		LastErr:  cause.Error(),
	}
	s.logger.Printf("WARNING: %v", dropped)
	result.Errors = append(result.Errors, dropped.Error())
}
