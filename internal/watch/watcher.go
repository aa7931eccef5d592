// Package watch triggers repair runs whenever the unit list file changes.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one unit list file and fires a callback after edits have
// settled. Editors often replace files on save, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback func()
	log      *slog.Logger

	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher for the given unit list file
func NewWatcher(path string, callback func(), log *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		watcher:  fsw,
		path:     abs,
		callback: callback,
		log:      log,
		debounce: 500 * time.Millisecond,
	}, nil
}

// SetDebounce sets the settle time before the callback fires
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching until the context is cancelled
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
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
				w.log.Warn("watch error", "error", err)
			}
		}
	}()
}

// Stop stops watching
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Restart the settle timer on every event so a burst of saves yields
	// one run
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.log.Info("unit list changed", "path", w.path)
		w.callback()
	})
}
