package lower

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/blocksense-network/agentfs/internal/logger"
)

// ChangeWatcher detects out-of-band mutations of the host directory a
// HostFsProvider overlays -- edits made directly on the lower filesystem,
// bypassing AgentFS entirely. spec.md's core never caches Lower Provider
// reads, so no invalidation is needed for correctness; ChangeWatcher exists
// so the event bus's watcher registry (spec.md §4.7, consumed by the
// interpose shim's kqueue/FSEvents adapters) can also surface these external
// edits to watchers on lower-only paths, not just upper mutations made
// through the core's own write path.
//
// Grounded on the teacher corpus's fsnotify usage for directory-tree
// watching (rclone's backend/local ChangeNotify, kata-containers'
// virtcontainers/fs_share watchDir): a recursive watch seeded at
// construction, with new directories added lazily as Create events for
// them arrive.
type ChangeWatcher struct {
	root    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
}

// ChangeEvent is one out-of-band lower-filesystem change, relative to the
// watched root.
type ChangeEvent struct {
	Path  string
	IsDir bool
	// Removed reports a delete/rename-away; Created/Modified are collapsed
	// to false since the core treats both as "re-resolve this path."
	Removed bool
}

// NewChangeWatcher starts watching root and every subdirectory reachable
// from it at construction time. Directories created afterward are added as
// their Create events are observed.
func NewChangeWatcher(root string) (*ChangeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cw := &ChangeWatcher{root: filepath.Clean(root), watcher: w}

	err = filepath.WalkDir(cw.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				logger.Warn("lower change watcher: failed to add directory", logger.Path(path), logger.Err(addErr))
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return nil, err
	}
	return cw, nil
}

// Run consumes filesystem events until ctx is cancelled or Close is called,
// invoking emit for each. Run blocks; callers run it in its own goroutine.
func (cw *ChangeWatcher) Run(ctx context.Context, emit func(ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handle(ev, emit)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("lower change watcher error", logger.Err(err))
		}
	}
}

func (cw *ChangeWatcher) handle(ev fsnotify.Event, emit func(ChangeEvent)) {
	rel, err := filepath.Rel(cw.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = "/" + filepath.ToSlash(rel)

	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if ev.Has(fsnotify.Create) && isDir {
		if err := cw.watcher.Add(ev.Name); err != nil {
			logger.Warn("lower change watcher: failed to add new directory", logger.Path(ev.Name), logger.Err(err))
		}
	}

	removed := ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	emit(ChangeEvent{Path: rel, IsDir: isDir, Removed: removed})
}

// Close stops the watcher. Safe to call more than once.
func (cw *ChangeWatcher) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return nil
	}
	cw.closed = true
	return cw.watcher.Close()
}

// Root returns the host directory path this provider projects, the root a
// ChangeWatcher should be constructed against.
func (p *HostFsProvider) Root() string { return p.root }
