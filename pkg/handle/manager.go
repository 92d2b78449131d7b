package handle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/metrics"
	"github.com/blocksense-network/agentfs/pkg/namespace"
)

// BranchResolver hands the Handle & Lock Manager the live *namespace.Root a
// branch id currently points at. pkg/snapshot.Manager implements this; the
// dependency runs one way (handle -> an interface) so pkg/snapshot never
// needs to import pkg/handle.
type BranchResolver interface {
	BranchRoot(id ids.BranchId) (*namespace.Root, error)
}

// Config selects the Manager's admission policy, spec.md §6
// `enforce_windows_share_modes` / `root_bypass_permissions`.
type Config struct {
	EnforceWindowsShareModes bool
	RootBypassPermissions    bool
}

// Manager owns every open Handle and its locks for one AgentFS instance.
type Manager struct {
	mu sync.Mutex

	graph    *namespace.Graph
	resolver BranchResolver
	cfg      Config

	handles  map[ids.HandleId]*Handle
	locks    map[nodeIdentity][]Lock
	deleting map[nodeIdentity]bool
	metrics  *metrics.Metrics
}

// NewManager constructs a Manager over graph, resolving branch roots
// through resolver (normally a *snapshot.Manager).
func NewManager(graph *namespace.Graph, resolver BranchResolver, cfg Config) *Manager {
	return &Manager{
		graph:    graph,
		resolver: resolver,
		cfg:      cfg,
		handles:  make(map[ids.HandleId]*Handle),
		locks:    make(map[nodeIdentity][]Lock),
		deleting: make(map[nodeIdentity]bool),
		metrics:  metrics.New(),
	}
}

func (m *Manager) root(branch ids.BranchId) (*namespace.Root, error) {
	return m.resolver.BranchRoot(branch)
}

// SetConfig swaps the Manager's admission policy at runtime -- the control
// plane's PolicySet operation (spec.md §4.7) lands here, taking effect on
// the next Open/share-mode check rather than requiring a restart.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Config returns the Manager's current admission policy, for the control
// plane's PolicyGet operation.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) identityOf(ctx context.Context, root *namespace.Root, branch ids.BranchId, path string) (nodeIdentity, error) {
	e, err := m.graph.Resolve(ctx, root, path)
	if err != nil {
		return nodeIdentity{}, err
	}
	if e.IsLower {
		return nodeIdentity{branch: branch, upper: false, lowerPath: e.LowerPath}, nil
	}
	return nodeIdentity{branch: branch, upper: true, node: e.NodeID}, nil
}

// Open implements spec.md §4.6's open/create: resolves the effective path
// (materializing on create or truncate; a write-only open of a lower-only
// path is copied up by its first write, not here), admits the request
// against existing handles' share modes, and registers a new Handle.
func (m *Manager) Open(ctx context.Context, branch ids.BranchId, path string, opts OpenOptions, mode, uid, gid uint32) (ids.HandleId, error) {
	root, err := m.root(branch)
	if err != nil {
		return ids.HandleId{}, err
	}

	_, existedErr := m.graph.Resolve(ctx, root, path)
	preexisting := existedErr == nil

	if preexisting {
		wantWrite := opts.Write || opts.Append || opts.Truncate
		if err := m.checkAccess(ctx, root, path, uid, gid, opts.Read, wantWrite); err != nil {
			return ids.HandleId{}, err
		}
	}

	if opts.Create {
		if _, err := m.graph.Create(ctx, root, path, namespace.KindFile, mode, uid, gid, opts.CreateNew); err != nil {
			return ids.HandleId{}, err
		}
	}
	if opts.Truncate {
		if err := m.graph.Truncate(ctx, root, path, 0); err != nil {
			return ids.HandleId{}, err
		}
	}

	identity, err := m.identityOf(ctx, root, branch, path)
	if err != nil {
		return ids.HandleId{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleting[identity] {
		attrs, aerr := m.graph.GetAttrs(ctx, root, path)
		if aerr == nil && attrs.Kind == namespace.KindDir {
			return ids.HandleId{}, fserrors.New(fserrors.Sharing, "directory marked for deletion")
		}
	}
	for id, h := range m.handles {
		if h.identity != identity {
			continue
		}
		if shareModeConflict(h.Options, opts, m.cfg.EnforceWindowsShareModes) {
			m.metrics.RecordLockConflict("share_mode")
			logger.WarnCtx(ctx, "share mode conflict", logger.Operation("Open"), logger.Path(path), logger.HandleID(id.String()))
			return ids.HandleId{}, fserrors.New(fserrors.Sharing, "incompatible share mode")
		}
	}

	h := &Handle{
		ID: ids.NewHandleId(), Branch: branch, path: path, stream: opts.Stream,
		identity: identity, Options: opts, DeleteOnClose: opts.DeleteOnClose,
		UID: uid, GID: gid, OpenedAt: time.Now(),
	}
	m.handles[h.ID] = h
	if opts.DeleteOnClose {
		m.deleting[identity] = true
	}
	logger.InfoCtx(ctx, "handle opened", logger.Operation("Open"), logger.Path(path), logger.HandleID(h.ID.String()))
	return h.ID, nil
}

// Close releases a handle, drops its locks, and performs a deferred
// delete-on-close removal if it was the last handle on the node, per
// spec.md §4.6 "Delete-on-close".
func (m *Manager) Close(ctx context.Context, id ids.HandleId) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if !ok {
		m.mu.Unlock()
		return fserrors.NotFoundf("handle %s", id)
	}
	delete(m.handles, id)
	m.dropLocksLocked(id, h.identity)

	lastOnNode := true
	for _, other := range m.handles {
		if other.identity == h.identity {
			lastOnNode = false
			break
		}
	}
	pendingDelete := lastOnNode && m.deleting[h.identity]
	if pendingDelete {
		delete(m.deleting, h.identity)
	}
	m.mu.Unlock()

	if pendingDelete {
		root, err := m.root(h.Branch)
		if err != nil {
			return err
		}
		if err := m.graph.Unlink(ctx, root, h.path); err != nil && fserrors.CodeOf(err) != fserrors.NotFound {
			return err
		}
	}
	logger.InfoCtx(ctx, "handle closed", logger.Operation("Close"), logger.HandleID(id.String()))
	return nil
}

func (m *Manager) dropLocksLocked(owner ids.HandleId, identity nodeIdentity) {
	existing := m.locks[identity]
	if len(existing) == 0 {
		return
	}
	remaining := existing[:0]
	for _, l := range existing {
		if l.Owner != owner {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 {
		delete(m.locks, identity)
	} else {
		m.locks[identity] = remaining
	}
}

// Info returns the branch and current path a live handle addresses, so a
// caller sitting above the Manager (core.Instance's event emission,
// namely) can compare state around a call it cannot otherwise observe the
// internals of.
func (m *Manager) Info(id ids.HandleId) (ids.BranchId, string, error) {
	h, err := m.handleByID(id)
	if err != nil {
		return ids.BranchId{}, "", err
	}
	return h.Branch, h.path, nil
}

func (m *Manager) handleByID(id ids.HandleId) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return nil, fserrors.NotFoundf("handle %s", id)
	}
	return h, nil
}

// Read reads up to length bytes at offset through handle id's stream,
// serving either the materialized Content Store entry or, if the node was
// never copied up, the Lower Provider directly -- reads never mutate.
func (m *Manager) Read(ctx context.Context, id ids.HandleId, offset uint64, length uint64) ([]byte, error) {
	h, err := m.handleByID(id)
	if err != nil {
		return nil, err
	}
	root, err := m.root(h.Branch)
	if err != nil {
		return nil, err
	}
	stream := h.stream
	if stream == "" {
		stream = namespace.DefaultStream
	}
	return m.graph.Read(ctx, root, h.path, stream, offset, length)
}

// Write performs the copy-up-then-write protocol for handle id's stream,
// then rebinds every lock, share-mode registration, and delete-on-close
// marker held under the pre-write identity to whatever identity the path
// resolves to afterward -- walkAndClone allocates a fresh NodeId for the
// mutated leaf on every write, so without this the lock-conflict and
// share-mode invariants of spec.md §4.6 would silently stop applying the
// moment any handle on the node writes to it.
func (m *Manager) Write(ctx context.Context, id ids.HandleId, offset uint64, data []byte) (int, error) {
	h, err := m.handleByID(id)
	if err != nil {
		return 0, err
	}
	root, err := m.root(h.Branch)
	if err != nil {
		return 0, err
	}
	stream := h.stream
	if stream == "" {
		stream = namespace.DefaultStream
	}
	before, _ := m.identityOf(ctx, root, h.Branch, h.path)
	n, err := m.graph.Write(ctx, root, h.path, stream, offset, data)
	if err != nil {
		return 0, err
	}
	m.rebindAfterMutation(ctx, root, h.Branch, h.path, before)
	return n, nil
}

// Truncate resizes the handle's default stream and rebinds identity-keyed
// state the same way Write does.
func (m *Manager) Truncate(ctx context.Context, id ids.HandleId, newLen uint64) error {
	h, err := m.handleByID(id)
	if err != nil {
		return err
	}
	root, err := m.root(h.Branch)
	if err != nil {
		return err
	}
	before, _ := m.identityOf(ctx, root, h.Branch, h.path)
	if err := m.graph.Truncate(ctx, root, h.path, newLen); err != nil {
		return err
	}
	m.rebindAfterMutation(ctx, root, h.Branch, h.path, before)
	return nil
}

// rebindAfterMutation re-resolves path's post-mutation identity and, if it
// differs from before (a copy-up or a fresh walkAndClone allocation almost
// always changes it), migrates locks/deleting/handle bookkeeping onto it.
func (m *Manager) rebindAfterMutation(ctx context.Context, root *namespace.Root, branch ids.BranchId, path string, before nodeIdentity) {
	after, err := m.identityOf(ctx, root, branch, path)
	if err != nil {
		return
	}
	m.rebindIdentity(before, after)
}

// rebindIdentity moves every held lock, delete-on-close marker, and open
// Handle's identity from old to new. This is how a node's locks and
// share-mode admission stay correct across a write even though the
// persistent namespace tree allocates a new NodeId for the mutated leaf
// (pkg/namespace/ops.go's walkAndClone), matching the stability the
// nodeIdentity doc comment promises for handles sharing one path.
func (m *Manager) rebindIdentity(old, fresh nodeIdentity) {
	if old == fresh {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if locks, ok := m.locks[old]; ok {
		delete(m.locks, old)
		m.locks[fresh] = append(m.locks[fresh], locks...)
	}
	if m.deleting[old] {
		delete(m.deleting, old)
		m.deleting[fresh] = true
	}
	for _, h := range m.handles {
		if h.identity == old {
			h.identity = fresh
		}
	}
}

// Lock acquires a byte-range lock owned by handle id, spec.md §4.6
// "Byte-range locks".
func (m *Manager) Lock(id ids.HandleId, offset, length uint64, kind LockKind) error {
	h, err := m.handleByID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.locks[h.identity]
	requested := Lock{Owner: id, Offset: offset, Length: length, Kind: kind}
	for i := range existing {
		if locksConflict(existing[i], requested) {
			m.metrics.RecordLockConflict("byte_range")
			return fserrors.New(fserrors.LockConflict, "overlapping incompatible lock held")
		}
	}
	for i := range existing {
		if existing[i].Owner == id && existing[i].Offset == offset && existing[i].Length == length {
			existing[i].Kind = kind
			return nil
		}
	}
	m.locks[h.identity] = append(existing, requested)
	return nil
}

// Unlock releases an exact-match byte-range lock owned by handle id.
func (m *Manager) Unlock(id ids.HandleId, offset, length uint64) error {
	h, err := m.handleByID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.locks[h.identity]
	for i := range existing {
		if existing[i].Owner == id && existing[i].Offset == offset && existing[i].Length == length {
			m.locks[h.identity] = append(existing[:i], existing[i+1:]...)
			if len(m.locks[h.identity]) == 0 {
				delete(m.locks, h.identity)
			}
			return nil
		}
	}
	return fserrors.NotFoundf("lock at offset %d length %d", offset, length)
}

// CheckIO reports a LockConflict error if an I/O of the given range through
// handle id would conflict with a lock held by another handle: a read
// conflicts with an overlapping exclusive lock, a write with any
// overlapping lock.
func (m *Manager) CheckIO(id ids.HandleId, offset, length uint64, isWrite bool) error {
	h, err := m.handleByID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := LockShared
	if isWrite {
		kind = LockExclusive
	}
	probe := Lock{Owner: id, Offset: offset, Length: length, Kind: kind}
	for _, l := range m.locks[h.identity] {
		if locksConflict(l, probe) {
			m.metrics.RecordLockConflict("byte_range")
			return fserrors.New(fserrors.LockConflict, "I/O range conflicts with a held lock")
		}
	}
	return nil
}

// Rename delegates to the namespace graph and then repoints every open
// handle whose path is src or a descendant of src (directory rename) to
// dst, implementing the "handles reference node identity ... survive
// rename" stability guarantee without a reverse node-to-path index.
func (m *Manager) Rename(ctx context.Context, branch ids.BranchId, src, dst string) error {
	root, err := m.root(branch)
	if err != nil {
		return err
	}
	if err := m.graph.Rename(ctx, root, src, dst); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		if h.Branch != branch {
			continue
		}
		if h.path == src {
			h.path = dst
		} else if strings.HasPrefix(h.path, src+"/") {
			h.path = dst + strings.TrimPrefix(h.path, src)
		}
	}
	return nil
}
