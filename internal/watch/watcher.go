// Package watch re-runs work when watched files change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// ChangeFunc is called once per burst of changes to a watched file.
type ChangeFunc func(path string)

// Config configures a Watcher.
type Config struct {
	// OnChange is called with the absolute path of the changed file. Required.
	OnChange ChangeFunc

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// DebounceDelay collapses bursts of events (defaults to 200ms).
	DebounceDelay time.Duration
}

// Watcher monitors individual files. It watches each file's parent directory
// so editors that replace files on save are still observed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  ChangeFunc
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	files   map[string]struct{}
	dirs    map[string]int
	pending map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher and starts its event loop.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.DebounceDelay
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsWatcher: fsWatcher,
		onChange:  cfg.OnChange,
		logger:    logger,
		debounce:  debounce,
		files:     make(map[string]struct{}),
		dirs:      make(map[string]int),
		pending:   make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Add starts watching the given files.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", p, err)
		}
		if _, ok := w.files[abs]; ok {
			continue
		}

		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fsWatcher.Add(dir); err != nil {
				return fmt.Errorf("watch directory %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		w.files[abs] = struct{}{}
		w.logger.Debug("watching file", slog.String("path", abs))
	}
	return nil
}

// Remove stops watching a file.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; !ok {
		return nil
	}
	delete(w.files, abs)
	if t, ok := w.pending[abs]; ok {
		t.Stop()
		delete(w.pending, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.fsWatcher.Remove(dir)
	}
	return nil
}

// Files returns the watched paths, unordered.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.handleFileChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", slog.String("error", err.Error()))

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleFileChange(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; !ok {
		return
	}
	if t, ok := w.pending[abs]; ok {
		t.Stop()
	}
	w.pending[abs] = time.AfterFunc(w.debounce, func() { w.fire(abs) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	w.logger.Debug("watched file changed", slog.String("path", path))
	w.onChange(path)
}

// Close shuts down the watcher and cancels pending callbacks.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
