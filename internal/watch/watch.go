// Package watch re-triggers pipeline runs when scanner sources change on
// disk. Events are debounced per path so editor save bursts (temp file,
// rename, chmod) collapse into one delivery after the file settles.
package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a path must stay quiet before its change is
// delivered.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the path of a settled change. It runs on the watcher's
// goroutine; long work should be handed off by the handler itself.
type Handler func(path string)

// Watcher monitors directories for Python source changes.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dirs        []string
	handler     Handler
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New builds a watcher over dirs. debounce <= 0 selects DefaultDebounce; a
// nil logger disables logging.
func New(dirs []string, debounce time.Duration, handler Handler, logger *zap.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fsw,
		dirs:        dirs,
		handler:     handler,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs until Stop or
// ctx cancellation. Every directory must be watchable or Start fails.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	go w.run(ctx)
	return nil
}

// Stop halts the event loop and releases the underlying watcher. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing watcher", zap.Error(err))
	}
	w.logger.Debug("watcher stopped")
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// The ticker drains settled entries; a quarter of the debounce window
	// keeps delivery latency bounded without hot-spinning.
	tick := w.debounceDur / 4
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("watcher context cancelled")
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
			w.logger.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.processDebounced()
		}
	}
}

// handleEvent records a change for later delivery. Only content-producing
// events on Python sources count; removals and chmods are ignored.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".py") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.logger.Debug("change recorded", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebounced delivers every path whose last event settled past the
// debounce window.
func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.logger.Debug("change settled", zap.String("path", path))
		w.handler(path)
	}
}
