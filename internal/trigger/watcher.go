// Package trigger contains the adapters that feed the scheduler: a
// filesystem watcher, a periodic re-scan timer, and a VCS hook entry point.
// Adapters share no state; they only call into the scheduler.
package trigger

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"semsync/internal/engine"
	"semsync/internal/scanner"
	"semsync/internal/scheduler"
)

// Watcher forwards filesystem events to the scheduler. Directories are
// registered recursively, and directories created while watching are picked
// up from their create events.
//
// A removed or renamed directory emits only the directory's own event, which
// never matches a file extension, so tracked files under it are not notified
// here; the periodic rescan reconciles them out of the index.
type Watcher struct {
	root      string
	rules     scanner.Rules
	sched     *scheduler.Scheduler
	logger    *zap.Logger
	fsw       *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWatcher creates a Watcher rooted at root and registers all existing
// eligible directories.
func NewWatcher(root string, rules scanner.Rules, sched *scheduler.Scheduler, logger *zap.Logger) (*Watcher, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:   filepath.Clean(rootAbs),
		rules:  rules,
		sched:  sched,
		logger: logger,
		fsw:    fsw,
		closed: make(chan struct{}),
	}

	if err := w.addDirRecursive(w.root); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to register directories: %w", err)
	}
	return w, nil
}

// Close stops the watcher. Run returns after Close.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	return w.fsw.Close()
}

// Run processes events until ctx is canceled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.closed:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, ok := w.toRel(ev.Name)
	if !ok {
		return
	}

	// New directories must be registered before their contents settle.
	if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if w.rules.Match(rel, true) {
				if err := w.addDirRecursive(ev.Name); err != nil {
					w.logger.Warn("failed to watch new directory", zap.String("path", rel), zap.Error(err))
				}
			}
			return
		}
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// Removed files can't be matched by extension alone after deletion, but
	// Match only inspects the path, so the same check applies.
	if !w.rules.Match(rel, false) {
		return
	}

	w.logger.Debug("fs event", zap.String("path", rel), zap.String("op", ev.Op.String()))
	w.sched.Notify([]string{rel}, engine.SourceWatcher)
}

func (w *Watcher) toRel(abs string) (string, bool) {
	if strings.TrimSpace(abs) == "" {
		return "", false
	}
	rel, err := filepath.Rel(w.root, filepath.Clean(abs))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) addDirRecursive(absDir string) error {
	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			rel, ok := w.toRel(p)
			if !ok {
				return nil
			}
			if !w.rules.Match(rel, true) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(p)
	})
}
