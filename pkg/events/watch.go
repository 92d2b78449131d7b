package events

import (
	"sync"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/ids"
)

// WatchId identifies one registered kqueue or FSEvents watch.
type WatchId uint64

// WatchKind distinguishes the two registration calls spec.md §4.7 "Watcher
// registry" names.
type WatchKind int

const (
	WatchKqueue WatchKind = iota
	WatchFSEvents
)

// kqueueWatch is one register_kqueue_watch registration: the shim's
// (pid, kq_fd, event_id) triple bound to a resolved path, per spec.md
// "core records the watch keyed to the resolved node and the exact path
// for directory watchers."
type kqueueWatch struct {
	id    WatchId
	pid   ids.PID
	kqFD  int
	event uint64
	path  string
	flags uint32
	isDir bool
}

// fseventsWatch is one register_fsevents_stream registration.
type fseventsWatch struct {
	id           WatchId
	pid          ids.PID
	streamID     uint64
	pathPrefixes []string
	flags        uint32
}

// SynthesizedKevent is one coalesced event drain_events hands back to the
// shim for redelivery as a kevent.
type SynthesizedKevent struct {
	Ident  uint64
	Fflags uint32
	Path   string
}

// Registry tracks every watch registered by the interpose shim and
// translates committed Events into the coalesced, OS-flag-shaped output
// drain_events returns. It is process-wide state, spec.md §5 "the watcher
// registry are process-wide state with init/teardown via control-plane
// calls."
type Registry struct {
	mu sync.Mutex

	nextID  WatchId
	kqueues map[WatchId]*kqueueWatch
	fsevt   map[WatchId]*fseventsWatch

	// pending holds, per (pid, kq_fd), the coalesced synthesized events not
	// yet drained -- duplicate flags on the same ident collapse to one
	// entry, per spec.md "burst writes collapse to a single Modified hit
	// per drain."
	pending map[pendingKey]map[uint64]*SynthesizedKevent
}

type pendingKey struct {
	pid  ids.PID
	kqFD int
}

// NewRegistry constructs an empty watcher registry.
func NewRegistry() *Registry {
	return &Registry{
		kqueues: make(map[WatchId]*kqueueWatch),
		fsevt:   make(map[WatchId]*fseventsWatch),
		pending: make(map[pendingKey]map[uint64]*SynthesizedKevent),
	}
}

// RegisterKqueueWatch records a kqueue-style watch for later translation
// and draining.
func (r *Registry) RegisterKqueueWatch(pid ids.PID, kqFD int, eventID uint64, path string, flags uint32, isDir bool) WatchId {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	w := &kqueueWatch{id: r.nextID, pid: pid, kqFD: kqFD, event: eventID, path: path, flags: flags, isDir: isDir}
	r.kqueues[w.id] = w
	return w.id
}

// RegisterFSEventsStream records an FSEvents-style watch over a set of
// path prefixes.
func (r *Registry) RegisterFSEventsStream(pid ids.PID, streamID uint64, pathPrefixes []string, flags uint32) WatchId {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	w := &fseventsWatch{id: r.nextID, pid: pid, streamID: streamID, pathPrefixes: pathPrefixes, flags: flags}
	r.fsevt[w.id] = w
	return w.id
}

// Unregister removes a watch, by either registration kind. Idempotent.
func (r *Registry) Unregister(id WatchId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kqueues, id)
	delete(r.fsevt, id)
}

// Dispatch translates a committed Event into Unix vnode-note flags for
// every matching kqueue watch and appends it to that watch's (pid, kq_fd)
// pending set, coalescing by ident. FSEvents stream registrations are
// recorded but Dispatch delivers nothing to them. Directory watchers are matched against e.Path's
// parent, spec.md "Directory watchers receive parent-dir notifications
// for children's Created/Removed/Renamed."
func (r *Registry) Dispatch(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fflags := translate(e.Kind)
	if fflags == 0 {
		return
	}

	for _, w := range r.kqueues {
		if !watchMatches(w, e) {
			continue
		}
		key := pendingKey{pid: w.pid, kqFD: w.kqFD}
		set, ok := r.pending[key]
		if !ok {
			set = make(map[uint64]*SynthesizedKevent)
			r.pending[key] = set
		}
		if existing, ok := set[w.event]; ok {
			existing.Fflags |= fflags
		} else {
			set[w.event] = &SynthesizedKevent{Ident: w.event, Fflags: fflags, Path: e.Path}
		}
	}
}

func watchMatches(w *kqueueWatch, e Event) bool {
	if w.path == e.Path {
		return true
	}
	if w.isDir {
		return parentOf(e.Path) == w.path || parentOf(e.ToPath) == w.path
	}
	return false
}

func parentOf(path string) string {
	if path == "" {
		return ""
	}
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return path[:i]
}

// translate maps EventKind to the Unix vnode-note flag space (NOTE_WRITE,
// NOTE_DELETE, NOTE_RENAME, NOTE_EXTEND), per spec.md "Translation:
// EventKind -> OS-specific flags (Unix vnote flags or FSEvents event
// types) per watcher kind."
func translate(k Kind) uint32 {
	const (
		noteDelete = 0x1
		noteWrite  = 0x2
		noteExtend = 0x4
		noteRename = 0x20
	)
	switch k {
	case Created:
		return noteWrite
	case Removed:
		return noteDelete
	case Modified:
		return noteWrite | noteExtend
	case Renamed:
		return noteRename
	default:
		return 0
	}
}

// DrainEvents returns and clears the coalesced pending events for
// (pid, kqFD), spec.md "drain_events(pid, kq_fd) -> [SynthesizedKevent]:
// used by the shim to pull coalesced pending synthesized events."
func (r *Registry) DrainEvents(pid ids.PID, kqFD int) ([]SynthesizedKevent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pendingKey{pid: pid, kqFD: kqFD}
	set, ok := r.pending[key]
	if !ok {
		return nil, fserrors.NotFoundf("no pending events for pid=%v kq_fd=%d", pid, kqFD)
	}
	out := make([]SynthesizedKevent, 0, len(set))
	for _, ev := range set {
		out = append(out, *ev)
	}
	delete(r.pending, key)
	return out, nil
}
