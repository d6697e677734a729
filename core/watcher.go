package core

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader is anything that can re-read its rules on demand
type Reloader interface {
	Reload() (ReloadResult, error)
}

// Watcher reloads rules when files under the rules directory change
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	target      Reloader
	dir         string
	debounceDur time.Duration
	pending     time.Time
	dirty       bool
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	reloads     int
	closeOnce   sync.Once
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for changes to settle
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDur = d
	}
}

// WithWatcherLogger sets the watcher logger
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over dir that calls target.Reload after changes settle
func NewWatcher(dir string, target Reloader, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fw,
		target:      target,
		dir:         dir,
		debounceDur: 500 * time.Millisecond,
		logger:      zap.NewNop(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching dir and its subdirectories. It does not block. A watcher runs
// at most once; Start after Stop or a failed Start returns ErrWatcherStopped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if w.stopped {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.stopped = true
		w.mu.Unlock()
		w.close()
		return err
	}

	w.logger.Info("watching rules directory", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.close()
}

func (w *Watcher) close() {
	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("failed to close rules watcher", zap.Error(err))
		}
	})
}

// Reloads returns how many reloads the watcher has triggered
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	interval := w.debounceDur / 5
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
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
			w.logger.Warn("rules watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
	}

	name := strings.ToLower(filepath.Base(event.Name))
	if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
		return
	}

	w.logger.Debug("rules file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.dirty = true
	w.pending = time.Now()
	w.mu.Unlock()
}

// flush reloads once no change has been seen for the debounce interval
func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.dirty || time.Since(w.pending) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.dirty = false
	w.mu.Unlock()

	result, err := w.target.Reload()
	if err != nil {
		w.logger.Warn("rules reload after change failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("rules reloaded after change",
		zap.Int("old_count", result.OldCount),
		zap.Int("new_count", result.NewCount))
}
