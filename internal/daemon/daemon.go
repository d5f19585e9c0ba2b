// Package daemon keeps the local chat database loaded from GitHub.
//
// The daemon:
// 1. Loads all chats once on startup when auto-load is enabled
// 2. Re-runs the load on a fixed interval
// 3. Runs manual refreshes queued by the dashboard toolbar
// 4. Handles graceful shutdown
//
// All three triggers are served by a single loop goroutine, so at most one
// sync run is in flight at any time.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	chatsync "github.com/stchats/chatsync/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// AutoLoad runs a sync on startup and enables the refresh timer.
	// When false, only manual refreshes run.
	AutoLoad bool

	// RefreshInterval is how often to reload from GitHub. Zero disables the timer.
	RefreshInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoLoad:        true,
		RefreshInterval: 60 * time.Second,
		Logger:          log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Stats describes the runs performed so far.
type Stats struct {
	Runs       int
	Failures   int
	LastRun    time.Time
	LastResult *chatsync.Result
	LastError  string
}

// Daemon schedules sync runs.
type Daemon struct {
	syncer  chatsync.Syncer
	config  *Config
	refresh chan struct{}

	mu      sync.Mutex
	running bool
	stats   Stats
}

// New creates a new Daemon instance.
//
// A nil config uses DefaultConfig. Use Start() to begin syncing.
func New(syncer chatsync.Syncer, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.RefreshInterval < 0 {
		return nil, fmt.Errorf("refresh interval cannot be negative: %s", config.RefreshInterval)
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	return &Daemon{
		syncer:  syncer,
		config:  config,
		refresh: make(chan struct{}, 1),
	}, nil
}

// Start begins the daemon's operation.
//
// With AutoLoad enabled the daemon syncs immediately and then every
// RefreshInterval. Manual refreshes are served regardless of AutoLoad.
// A failed run is logged and the daemon keeps going.
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	d.config.Logger.Println("Starting daemon")

	var tick <-chan time.Time
	if d.config.AutoLoad {
		d.run(ctx, chatsync.TriggerStartup)

		if d.config.RefreshInterval > 0 {
			ticker := time.NewTicker(d.config.RefreshInterval)
			defer ticker.Stop()
			tick = ticker.C
			d.config.Logger.Printf("Refreshing every %s", d.config.RefreshInterval)
		}
	} else {
		d.config.Logger.Println("Auto-load disabled, waiting for manual refresh")
	}

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			d.config.Logger.Println("Daemon stopped")
			return nil

		case <-tick:
			d.run(ctx, chatsync.TriggerInterval)

		case <-d.refresh:
			d.run(ctx, chatsync.TriggerManual)
		}
	}
}

// TriggerRefresh queues a manual refresh without blocking.
//
// Returns false when a refresh is already queued.
func (d *Daemon) TriggerRefresh() bool {
	select {
	case d.refresh <- struct{}{}:
		d.config.Logger.Println("Manual refresh queued")
		return true
	default:
		return false
	}
}

// Running reports whether Start is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stats returns a snapshot of run statistics.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// run performs one sync. Errors are already logged and alerted by the syncer.
func (d *Daemon) run(ctx context.Context, trigger chatsync.Trigger) {
	if ctx.Err() != nil {
		return
	}

	result, err := d.syncer.LoadFromGitHub(ctx, trigger)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Runs++
	d.stats.LastRun = time.Now()
	if err != nil {
		d.stats.Failures++
		d.stats.LastError = err.Error()
		d.config.Logger.Printf("Sync (%s) failed: %v", trigger, err)
		return
	}
	d.stats.LastResult = result
	d.stats.LastError = ""
}
