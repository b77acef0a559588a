// Package watch reloads a history session when the repository changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/gitrails/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

// Watcher calls reload, debounced, after writes under the repository's git
// directory.
type Watcher struct {
	reload func(context.Context) error
	delay  time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *debounce.Debouncer
	ctx      context.Context
}

func New(delay time.Duration, reload func(context.Context) error) *Watcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Watcher{reload: reload, delay: delay}
}

// Run watches repoPath until ctx is done.
func (w *Watcher) Run(ctx context.Context, repoPath string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	for path := range watchPaths(repoPath) {
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := fw.Add(path); err != nil {
			err := errors.Join(err, fw.Close())
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	w.mu.Lock()
	w.watcher = fw
	w.ctx = ctx
	debounce.Ensure(&w.debounce, w.delay, w.fire)
	w.mu.Unlock()
	defer w.stop()

	return w.loop(ctx, fw.Events, fw.Errors)
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			w.schedule()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce == nil {
		return
	}
	slog.Debug("auto reload scheduled")
	w.debounce.Trigger()
}

func (w *Watcher) fire() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := w.reload(ctx); err != nil {
		slog.Error("auto reload", slog.Any("error", err))
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			slog.Error("watcher close", slog.Any("error", err))
		}
		w.watcher = nil
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return !shouldIgnoreWatchPath(ev.Name)
}

func watchPaths(root string) iter.Seq[string] {
	if root == "" {
		return func(func(string) bool) {}
	}
	uniquePaths := map[string]struct{}{}
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		uniquePaths[gitDir] = struct{}{}
		// HEAD moves and branch updates land here.
		for _, sub := range []string{"refs/heads", "refs/tags"} {
			p := filepath.Join(gitDir, filepath.FromSlash(sub))
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				uniquePaths[p] = struct{}{}
			}
		}
		return maps.Keys(uniquePaths)
	}
	uniquePaths[root] = struct{}{}
	return maps.Keys(uniquePaths)
}

func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}
