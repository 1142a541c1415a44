package ecsig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/ecsig/internal/runtime"
)

// DefaultWatchDebounce is how long Watch waits for more changes before
// reindexing.
const DefaultWatchDebounce = 200 * time.Millisecond

// WatchEvent reports one debounced batch of changes.
type WatchEvent struct {
	Changed []string // reindexed files
	Removed []string // files whose catalog data was deleted
	Err     error    // indexing error, if any
}

// WithWatchDebounce sets the Watch debounce delay.
func WithWatchDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// Watch reindexes C/C++ files under root as they change, calling onChange
// after each batch. It blocks until ctx is done and returns nil then.
func (e *Engine) Watch(ctx context.Context, root string, onChange func(WatchEvent)) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watch: resolve root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	if err := e.addWatches(fsw, root); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	e.logger.Info("watching", slog.String("root", root))

	debounce := e.debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()

	pending := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if e.handleWatchEvent(fsw, root, event) {
				pending[event.Name] = true
				timer.Reset(debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			ev := e.flushPending(ctx, pending)
			pending = make(map[string]bool)
			if onChange != nil && (len(ev.Changed) > 0 || len(ev.Removed) > 0 || ev.Err != nil) {
				onChange(ev)
			}
		}
	}
}

// handleWatchEvent reports whether event concerns an indexable file or a
// path that was removed or renamed away, which may be a directory. New
// directories are added to the watcher.
func (e *Engine) handleWatchEvent(fsw *fsnotify.Watcher, root string, event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(event.Name)) {
				if err := e.addWatches(fsw, event.Name); err != nil {
					e.logger.Warn("failed to watch new directory",
						slog.String("path", event.Name),
						slog.String("error", err.Error()))
				}
			}
			return false
		}
	}
	if event.Op == fsnotify.Chmod {
		return false
	}
	_, indexable := runtime.LanguageForFile(event.Name)
	gone := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if !indexable && !gone {
		return false
	}
	if e.excluded(root, event.Name) {
		return false
	}
	e.logger.Debug("file change detected",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()))
	return true
}

func (e *Engine) addWatches(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (e *Engine) flushPending(ctx context.Context, pending map[string]bool) WatchEvent {
	var ev WatchEvent
	for path := range pending {
		_, indexable := runtime.LanguageForFile(path)
		_, statErr := os.Stat(path)
		switch {
		case errors.Is(statErr, fs.ErrNotExist) && indexable:
			if err := e.RemoveFile(path); err != nil && ev.Err == nil {
				ev.Err = err
			}
			ev.Removed = append(ev.Removed, path)
		case errors.Is(statErr, fs.ErrNotExist):
			// A directory moved or deleted as a whole reports no per-file events.
			removed, err := e.pruneMissing(path, nil)
			if err != nil && ev.Err == nil {
				ev.Err = err
			}
			ev.Removed = append(ev.Removed, removed...)
		case indexable:
			ev.Changed = append(ev.Changed, path)
		}
	}
	sort.Strings(ev.Changed)
	sort.Strings(ev.Removed)

	if len(ev.Changed) > 0 {
		if err := e.IndexFiles(ctx, ev.Changed); err != nil && ev.Err == nil {
			ev.Err = err
		}
	}
	if ev.Err != nil {
		e.logger.Warn("reindex failed", slog.String("error", ev.Err.Error()))
	}
	return ev
}
