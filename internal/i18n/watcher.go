package i18n

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"kasbot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// WatcherStats tracks reload activity.
type WatcherStats struct {
	Events     int
	Reloads    int
	Errors     int
	LastReload time.Time
	LastError  string
}

// Watcher reloads a catalog file into a Store when it changes on disk. A file
// that fails to parse leaves the previous catalog in place.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	store       *Store
	path        string
	pending     time.Time
	debounceDur time.Duration
	onReload    func(error)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       WatcherStats
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounceDur = d }
}

// WithReloadHook is called after every reload attempt with its result.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for path feeding store.
func NewWatcher(path string, store *Store, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:     fw,
		store:       store,
		path:        abs,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The parent directory is watched so editors that
// replace the file by rename are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true
	w.mu.Unlock()

	logging.Locale("watching dictionary %s", w.path)
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the watcher. Safe to call on a
// watcher that never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		logging.LocaleWarn("error closing watcher: %v", err)
	}
}

// Stats returns a snapshot of reload activity.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.LocaleWarn("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.stats.LastError = err.Error()
			w.mu.Unlock()
		case <-ticker.C:
			w.reloadIfSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.stats.Events++
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) reloadIfSettled() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	c, err := Load(w.path)

	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
		w.stats.LastError = err.Error()
	} else {
		w.stats.Reloads++
		w.stats.LastReload = time.Now()
	}
	w.mu.Unlock()

	if err != nil {
		logging.LocaleWarn("keeping previous dictionary, reload of %s failed: %v", w.path, err)
	} else {
		w.store.Swap(c)
		logging.Locale("reloaded dictionary %s (%d command aliases)", w.path, c.Commands.Len())
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
