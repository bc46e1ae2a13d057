// Package watch analyzes connection CSVs as they are dropped into a
// directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled CSV file.
type Handler func(ctx context.Context, path string) error

// Watcher calls Handle for every .csv file created or rewritten in Dir.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	Handle   Handler
	Logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Run watches until ctx is cancelled. Handler errors are logged, not
// returned.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Handle == nil {
		return fmt.Errorf("watch %s: no handler", w.Dir)
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	w.mu.Lock()
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	defer w.stopTimers()

	logger.Info("watching for connection exports", "dir", w.Dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx, event.Name, debounce, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// schedule (re)arms the debounce timer of path. Exporters write a file in
// several chunks, so only the last event of a burst triggers the handler.
func (w *Watcher) schedule(ctx context.Context, path string, delay time.Duration, logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.Handle(ctx, path); err != nil {
			logger.Error("analysis of dropped file failed", "file", path, "error", err)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
