package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/varenko/inquest/internal/logging"
)

// ReloadCallback is called when the config file is successfully reloaded.
// If the callback returns an error, it is logged but the watcher continues
// watching.
type ReloadCallback func(cfg *Config) error

// WatcherConfig holds configuration for the Watcher.
type WatcherConfig struct {
	// FilePath is the path to the YAML config file to watch
	FilePath string

	// DebounceMillis coalesces file change events within this period into
	// a single reload. Default: 500ms.
	DebounceMillis int
}

// Watcher watches a config file for changes and triggers reload callbacks
// with debouncing to prevent reload storms from editor save sequences.
//
// Invalid configs during reload are logged but do not crash the watcher; it
// continues watching with the previous valid config.
type Watcher struct {
	config   WatcherConfig
	callback ReloadCallback
	logger   *logging.Logger
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{} // signals when the fsnotify watcher is fully initialized
	mu       sync.Mutex

	// debounceTimer coalesces multiple file change events
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given config file. The callback is
// invoked when the file changes and the new config is valid.
func NewWatcher(config WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}

	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &Watcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start loads the initial config, calls the callback, and begins watching
// for file changes. It returns once the file watch is established; an
// initial load or callback failure fails fast.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := Load(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	w.logger.Info("Loaded initial config from %s", w.config.FilePath)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	// Wait for the watcher to be fully initialized so file changes are not
	// missed between Start returning and the watch landing.
	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	return nil
}

// signalReady closes the ready channel exactly once.
func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady() // ready must be signaled even on error paths

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch file %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Info("Watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)

	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Context cancelled, stopping config watcher")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				w.logger.Debug("Watcher events channel closed")
				return
			}

			// Write, Create, Rename, and Remove all matter. Rename/Remove
			// cover atomic writes where the old file is unlinked before the
			// new one lands; the watch follows the inode, so re-add it.
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Rename == fsnotify.Rename ||
				event.Op&fsnotify.Remove == fsnotify.Remove {
				if event.Op&fsnotify.Rename == fsnotify.Rename ||
					event.Op&fsnotify.Remove == fsnotify.Remove {
					// Small delay to let the rename/recreate complete
					time.Sleep(50 * time.Millisecond)
					if err := watcher.Add(w.config.FilePath); err != nil {
						w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
					}
				}
				w.handleFileChange()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				w.logger.Debug("Watcher errors channel closed")
				return
			}
			w.logger.Error("Watcher error: %v", err)
		}
	}
}

// handleFileChange debounces by resetting a timer on each event.
func (w *Watcher) handleFileChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reloadConfig,
	)
}

// reloadConfig reloads the config file and calls the callback if it parses
// and validates. Invalid configs keep the previous configuration.
func (w *Watcher) reloadConfig() {
	w.logger.Info("Reloading config from %s", w.config.FilePath)

	cfg, err := Load(w.config.FilePath)
	if err != nil {
		w.logger.Warn("Failed to load config (keeping previous config): %v", err)
		return
	}

	if err := w.callback(cfg); err != nil {
		w.logger.Warn("Reload callback error (continuing to watch): %v", err)
		return
	}

	w.logger.Info("Config reloaded successfully")
}

// Stop gracefully stops the file watcher, waiting up to 5 seconds for the
// watch loop to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	select {
	case <-w.stopped:
		w.logger.Debug("Config watcher stopped")
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
