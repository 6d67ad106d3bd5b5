// Package watch reruns an action when .sql files under a directory change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch of changes is delivered.
const DefaultDebounce = 100 * time.Millisecond

// ChangeFunc receives the sorted, deduplicated paths changed since the last
// call. A returned error is logged and watching continues.
type ChangeFunc func(ctx context.Context, paths []string) error

// Watcher watches a directory tree for query file changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for dir.
func New(dir string, onChange ChangeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done or the underlying watcher fails to start.
// It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dirs := make(map[string]bool)
	if _, err := addTree(fw, w.dir, dirs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for changes", "dir", w.dir)

	return w.loop(ctx, fw, dirs)
}

// loop collects events until the debounce timer fires. dirs holds every
// directory being watched so removed ones can be recognized after they are
// gone.
func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, dirs map[string]bool) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create) && isDir(event.Name):
				if isHidden(filepath.Base(event.Name)) {
					continue
				}
				// a directory moved or copied in may already hold queries
				hasSQL, err := addTree(fw, event.Name, dirs)
				if err != nil {
					w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
				}
				if !hasSQL {
					continue
				}
			case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && dirs[event.Name]:
				forgetTree(dirs, event.Name)
			case !relevant(event):
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			w.logger.Debug("change detected", "files", len(paths))
			if err := w.onChange(ctx, paths); err != nil {
				w.logger.Error("change handler failed", "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant reports whether an event touches a visible .sql file.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	return filepath.Ext(base) == ".sql" && !isHidden(base)
}

// addTree recursively adds dir and its visible subdirectories, recording
// them in dirs. It reports whether the tree holds a visible .sql file.
func addTree(fw *fsnotify.Watcher, dir string, dirs map[string]bool) (bool, error) {
	hasSQL := false
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if filepath.Ext(d.Name()) == ".sql" {
				hasSQL = true
			}
			return nil
		}
		if err := fw.Add(path); err != nil {
			return err
		}
		dirs[path] = true
		return nil
	})
	return hasSQL, err
}

// forgetTree drops dir and everything below it from dirs.
func forgetTree(dirs map[string]bool, dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(dirs, d)
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
