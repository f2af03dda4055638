// Package netmon tracks connectivity to the remote service.
//
// The monitor probes reachability on a fixed interval, classifies
// connection quality from probe latency, and notifies registered listeners
// whenever the state changes. The sync scheduler uses the online/offline
// transitions to trigger reconnect syncs.
package netmon

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Quality buckets for the current connection.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityDegraded Quality = "degraded"
	QualityOffline  Quality = "offline"
)

// Status is a point-in-time connectivity snapshot.
type Status struct {
	Online    bool
	Quality   Quality
	Latency   time.Duration
	CheckedAt time.Time
}

// Probe measures reachability, returning the observed latency. A non-nil
// error means offline.
type Probe func(ctx context.Context) (time.Duration, error)

// DialProbe returns a Probe that opens and closes a TCP connection to the
// given address.
func DialProbe(addr string) Probe {
	return func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("dial %s: %w", addr, err)
		}
		_ = conn.Close()
		return time.Since(start), nil
	}
}

// Listener receives status snapshots on state transitions.
type Listener func(Status)

// Config holds monitor tuning.
type Config struct {
	// PollInterval is how often to probe (default: 15s)
	PollInterval time.Duration

	// ProbeTimeout bounds a single probe (default: 5s)
	ProbeTimeout time.Duration

	// DegradedThreshold is the latency above which the connection is
	// classified degraded (default: 750ms)
	DegradedThreshold time.Duration

	// Logger for monitor activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:      15 * time.Second,
		ProbeTimeout:      5 * time.Second,
		DegradedThreshold: 750 * time.Millisecond,
		Logger:            log.New(os.Stderr, "[netmon] ", log.LstdFlags),
	}
}

// Monitor polls connectivity and fans out change notifications.
type Monitor struct {
	probe  Probe
	config *Config

	mu        sync.Mutex
	status    Status
	listeners []Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor. The probe must not be nil. Zero config fields
// take their defaults.
func New(probe Probe, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = def.ProbeTimeout
	}
	if config.DegradedThreshold <= 0 {
		config.DegradedThreshold = def.DegradedThreshold
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		probe:  probe,
		config: config,
		status: Status{Quality: QualityOffline},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the poll loop. An immediate probe runs before the first
// tick so callers get a real status without waiting an interval.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.pollLoop()
}

// Stop cancels the poll loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports whether the last probe succeeded.
func (m *Monitor) Online() bool {
	return m.Status().Online
}

// OnChange registers a listener invoked on every state transition. The
// listener is called synchronously from the poll loop; it must not block.
func (m *Monitor) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckNow probes immediately and applies the result.
func (m *Monitor) CheckNow(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	latency, err := m.probe(probeCtx)
	status := Status{CheckedAt: time.Now()}
	if err != nil {
		status.Quality = QualityOffline
	} else {
		status.Online = true
		status.Latency = latency
		if latency > m.config.DegradedThreshold {
			status.Quality = QualityDegraded
		} else {
			status.Quality = QualityGood
		}
	}

	m.apply(status)
	return status
}

func (m *Monitor) pollLoop() {
	defer m.wg.Done()

	m.CheckNow(m.ctx)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(m.ctx)
		}
	}
}

// apply stores the new status and notifies listeners when the online flag
// or quality bucket changed.
func (m *Monitor) apply(status Status) {
	m.mu.Lock()
	prev := m.status
	m.status = status
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if prev.Online == status.Online && prev.Quality == status.Quality {
		return
	}

	m.config.Logger.Printf("Connectivity changed: online=%v quality=%s", status.Online, status.Quality)
	for _, fn := range listeners {
		fn(status)
	}
}
