package backup

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stchats/chatsync/internal/chatlog"
	"github.com/stchats/chatsync/internal/vcs"
)

// Syncer runs one backup pass.
type Syncer interface {
	SyncToGitHub(ctx context.Context) (*Result, error)
}

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Interval is the minimum time between syncs triggered by writes.
	Interval time.Duration

	// SettleDelay is how long to wait after a chat file is created
	// so SillyTavern can finish writing it.
	SettleDelay time.Duration

	// Logger defaults to stderr with a "[backup] " prefix.
	Logger *log.Logger
}

// Watcher triggers backups when chat files change under the chats directory.
//
// New chat files sync after SettleDelay. Writes to existing files sync only
// when Interval has passed since the last sync. Events are handled by a
// single goroutine, so syncs never overlap.
type Watcher struct {
	syncer   Syncer
	root     string
	interval time.Duration
	settle   time.Duration
	logger   *log.Logger

	watcher  *fsnotify.Watcher
	lastSync time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for root. Start() begins watching.
func NewWatcher(syncer Syncer, root string, opts WatchOptions) (*Watcher, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if opts.Interval < 0 || opts.SettleDelay < 0 {
		return nil, fmt.Errorf("watch intervals cannot be negative")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		syncer:   syncer,
		root:     root,
		interval: opts.Interval,
		settle:   opts.SettleDelay,
		logger:   opts.Logger,
		watcher:  watcher,
	}, nil
}

// Start adds root and all its subdirectories and begins processing events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.lastSync = time.Now()
	w.running = true

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Printf("Watching %s", w.root)
	return nil
}

// Stop stops watching and waits for an in-flight sync to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()

	// Closing the watcher unblocks the event loop
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	return nil
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// addRecursive watches dir and every directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// processEvents is the main event loop.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.handleNewDir(event.Name)
			return
		}
	}

	if !chatlog.IsChatFile(event.Name) || isHidden(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.logger.Printf("New chat file: %s", event.Name)
		w.settleAndSync()

	case event.Has(fsnotify.Write):
		if time.Since(w.lastSync) > w.interval {
			w.logger.Printf("Chat file changed: %s", event.Name)
			w.sync()
		}
	}
}

// handleNewDir watches a new character folder. Chat files that appeared
// before the watch was added count as created.
func (w *Watcher) handleNewDir(dir string) {
	if err := w.addRecursive(dir); err != nil {
		w.logger.Printf("Failed to watch new folder: %v", err)
		return
	}

	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && chatlog.IsChatFile(path) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if found {
		w.logger.Printf("New character folder: %s", dir)
		w.settleAndSync()
	}
}

func (w *Watcher) settleAndSync() {
	select {
	case <-time.After(w.settle):
	case <-w.ctx.Done():
		return
	}
	w.sync()
}

func (w *Watcher) sync() {
	result, err := w.syncer.SyncToGitHub(w.ctx)
	w.lastSync = time.Now()

	if err != nil {
		if vcs.IsFatal(err) {
			w.logger.Printf("ERROR: backup failed, check the repository: %v", err)
		} else {
			w.logger.Printf("ERROR: backup failed: %v", err)
		}
		return
	}
	if result.Pushed {
		w.logger.Printf("Synced %d files", result.Copied)
	}
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
