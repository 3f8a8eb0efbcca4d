// Package watcher reloads the search indexes when another process rebuilds
// them on disk.
//
// `tradingrag index` saves the vector index by writing a temp file and
// renaming it into place. A running `serve` watches the index directory,
// coalesces the burst of events that produces, and calls a reload callback
// once the files settle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a watched index file.
type FileEvent struct {
	// Path is the base name of the file inside the watched directory.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// ReloadFunc is called with the settled batch of changes.
type ReloadFunc func(ctx context.Context, events []FileEvent) error

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch is delivered.
	// Default: 500ms
	DebounceWindow time.Duration

	// Files are the base names that trigger a reload. Empty means any file
	// in the directory except temp and lock files.
	Files []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultOptions().DebounceWindow
	}
	return o
}

// IndexWatcher watches one directory for index rebuilds.
type IndexWatcher struct {
	dir       string
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	reloads  atomic.Uint64
	failures atomic.Uint64

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewIndexWatcher creates a watcher for dir. The directory must exist.
func NewIndexWatcher(dir string, opts Options) (*IndexWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve index dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	opts = opts.WithDefaults()
	return &IndexWatcher{
		dir:       abs,
		opts:      opts,
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		logger:    slog.Default().With(slog.String("component", "index-watcher")),
		stopCh:    make(chan struct{}),
	}, nil
}

// Run blocks, calling reload after each settled batch, until ctx is done or
// Stop is called. A failing reload is logged and the watcher keeps running.
func (w *IndexWatcher) Run(ctx context.Context, reload ReloadFunc) error {
	if reload == nil {
		return errors.New("reload func is required")
	}
	w.logger.Info("watching index directory", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			w.deliver(ctx, reload, batch)
		}
	}
}

func (w *IndexWatcher) deliver(ctx context.Context, reload ReloadFunc, batch []FileEvent) {
	start := time.Now()
	if err := reload(ctx, batch); err != nil {
		w.failures.Add(1)
		w.logger.Error("index reload failed",
			slog.Int("changes", len(batch)),
			slog.String("error", err.Error()))
		return
	}
	w.reloads.Add(1)
	w.logger.Info("index reloaded",
		slog.Int("changes", len(batch)),
		slog.Duration("duration", time.Since(start)))
}

func (w *IndexWatcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !w.relevant(name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: name, Operation: op, Timestamp: time.Now()})
}

func (w *IndexWatcher) relevant(name string) bool {
	if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".lock") {
		return false
	}
	if len(w.opts.Files) == 0 {
		return true
	}
	for _, f := range w.opts.Files {
		if f == name {
			return true
		}
	}
	return false
}

// Reloads returns how many reloads succeeded.
func (w *IndexWatcher) Reloads() uint64 { return w.reloads.Load() }

// Failures returns how many reloads failed.
func (w *IndexWatcher) Failures() uint64 { return w.failures.Load() }

// Dir returns the watched directory.
func (w *IndexWatcher) Dir() string { return w.dir }

// Stop releases the watcher. Safe to call multiple times.
func (w *IndexWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
