package sync

import (
	"context"
	"errors"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/jayminstro/gaplyv2-sub004/internal/netmon"
	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// Connectivity is the slice of the network monitor the scheduler needs.
// *netmon.Monitor satisfies it.
type Connectivity interface {
	Online() bool
	OnChange(fn netmon.Listener)
}

// SchedulerConfig controls background sync timing.
type SchedulerConfig struct {
	// Interval between periodic low-priority cycles.
	Interval time.Duration

	// SettleDelay after a reconnect before the triggered cycle runs,
	// so flapping links don't cause a sync storm.
	SettleDelay time.Duration

	Logger *log.Logger
}

// DefaultSchedulerConfig returns the standard background timing.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    5 * time.Minute,
		SettleDelay: 10 * time.Second,
	}
}

// Scheduler runs background sync cycles: a periodic low-priority tick
// while online, and a normal-priority cycle shortly after connectivity
// returns. Both go through the syncer's single-flight guard, so a cycle
// already in progress simply wins.
type Scheduler struct {
	syncer *Syncer
	conn   Connectivity
	cfg    SchedulerConfig
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	// reconnect wakes the loop when the monitor reports offline->online.
	reconnect chan struct{}

	// intervals carries runtime interval changes to the loop.
	intervals chan time.Duration

	startOnce gosync.Once
	stopOnce  gosync.Once
}

// NewScheduler creates a Scheduler around an existing Syncer.
func NewScheduler(syncer *Syncer, conn Connectivity, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSchedulerConfig().SettleDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		syncer:    syncer,
		conn:      conn,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		reconnect: make(chan struct{}, 1),
		intervals: make(chan time.Duration, 1),
	}
}

// Start launches the background loop and subscribes to connectivity
// changes. Idempotent.
func (sc *Scheduler) Start() {
	sc.startOnce.Do(func() {
		if sc.conn != nil {
			wasOnline := sc.conn.Online()
			sc.conn.OnChange(func(status netmon.Status) {
				if status.Online && !wasOnline {
					select {
					case sc.reconnect <- struct{}{}:
					default:
					}
				}
				wasOnline = status.Online
			})
		}

		sc.wg.Add(1)
		go sc.loop()
	})
}

// SetInterval changes the periodic cycle interval at runtime. A zero or
// negative value is ignored.
func (sc *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case sc.intervals <- d:
	default:
	}
}

// Stop terminates the background loop and waits for it to exit.
func (sc *Scheduler) Stop() {
	sc.stopOnce.Do(func() {
		sc.cancel()
		sc.wg.Wait()
	})
}

func (sc *Scheduler) loop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return

		case <-ticker.C:
			sc.run(PriorityLow)

		case d := <-sc.intervals:
			sc.logger.Printf("Sync interval changed to %s", d)
			ticker.Reset(d)

		case <-sc.reconnect:
			sc.logger.Printf("Connectivity restored, syncing in %s", sc.cfg.SettleDelay)
			select {
			case <-sc.ctx.Done():
				return
			case <-time.After(sc.cfg.SettleDelay):
			}
			sc.run(PriorityNormal)
		}
	}
}

// run executes one background cycle, tolerating the single-flight guard.
func (sc *Scheduler) run(priority Priority) {
	if sc.conn != nil && !sc.conn.Online() {
		return
	}

	_, err := sc.syncer.Sync(sc.ctx, Options{Priority: priority})
	if errors.Is(err, schema.ErrSyncInProgress) {
		return
	}
	if err != nil {
		sc.logger.Printf("WARNING: background sync failed: %v", err)
	}
}
