// Package daemon runs background synchronization against the configured
// automatic backends.
//
// The daemon:
//  1. Watches the record store file for changes
//  2. Debounces rapid writes into one sync pass
//  3. Syncs on a fixed interval regardless of local activity
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/sync"
)

// Config holds daemon tuning knobs.
type Config struct {
	// Interval is how often to sync regardless of file activity.
	Interval time.Duration

	// Debounce is how long to wait after a file change before syncing,
	// so bursts of writes collapse into one pass.
	Debounce time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Debounce: 2 * time.Second,
		Logger:   zap.NewNop(),
	}
}

// Daemon watches the local record store and keeps automatic backends in
// step with it.
type Daemon struct {
	syncer    *sync.Syncer
	backends  []config.Backend
	watchPath string
	cfg       Config
	log       *zap.Logger

	watcher *fsnotify.Watcher

	mu      gosync.Mutex
	dirtyAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a daemon syncing the given backends whenever the store file
// at watchPath changes. Only backends marked auto participate.
func New(syncer *sync.Syncer, backends []config.Backend, watchPath string, cfg Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if watchPath == "" {
		return nil, fmt.Errorf("watchPath cannot be empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		syncer:    syncer,
		backends:  backends,
		watchPath: filepath.Clean(watchPath),
		cfg:       cfg,
		log:       cfg.Logger,
		watcher:   watcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called. An
// initial sync pass runs before watching begins.
func (d *Daemon) Start(ctx context.Context) error {
	d.log.Info("starting sync daemon",
		zap.String("watch", d.watchPath),
		zap.Duration("interval", d.cfg.Interval))

	d.runSync("startup")

	// The store rewrites its file via rename, so the watch has to sit on
	// the directory: watching the file itself breaks after the first swap.
	if err := d.watcher.Add(filepath.Dir(d.watchPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.watchPath, err)
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processDebounce()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts the daemon down and waits for in-flight work.
func (d *Daemon) Stop() error {
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.log.Warn("error closing watcher", zap.Error(err))
	}

	d.wg.Wait()
	d.log.Info("sync daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events and marks the store dirty.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != d.watchPath {
				continue
			}

			d.log.Debug("store file changed", zap.String("op", event.Op.String()))
			d.mu.Lock()
			d.dirtyAt = time.Now()
			d.mu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// processDebounce fires a sync once the store has been quiet for the
// debounce window.
func (d *Daemon) processDebounce() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			dirty := !d.dirtyAt.IsZero() && time.Since(d.dirtyAt) >= d.cfg.Debounce
			if dirty {
				d.dirtyAt = time.Time{}
			}
			d.mu.Unlock()

			if dirty {
				d.runSync("store change")
			}
		}
	}
}

// periodicSync runs the interval-based sync pass.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runSync("interval")
		}
	}
}

// runSync performs one automatic sync pass across the auto backends.
// Per-backend failures are logged and do not stop the daemon.
func (d *Daemon) runSync(reason string) {
	results := d.syncer.SyncAll(d.ctx, d.backends, sync.Options{AutoOnly: true})

	for _, res := range results {
		if res.Err != nil {
			d.log.Warn("background sync failed",
				zap.String("backend", res.Label),
				zap.String("reason", reason),
				zap.Error(res.Err))
			continue
		}
		if len(res.Uploaded)+len(res.Downloaded)+len(res.Deleted) > 0 {
			d.log.Info("background sync moved records",
				zap.String("backend", res.Label),
				zap.String("reason", reason),
				zap.Int("uploaded", len(res.Uploaded)),
				zap.Int("downloaded", len(res.Downloaded)),
				zap.Int("deleted", len(res.Deleted)))
		}
	}
}
