package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/namespace"
	"github.com/blocksense-network/agentfs/pkg/snapshot/store"
)

// Manager owns every Snapshot and Branch of one AgentFS instance, plus the
// pid-to-branch binding table, mirroring the teacher's pattern of a single
// coordinating type (pkg/backstore.Manager, pkg/metadata's registry) above
// a lower-level store.
type Manager struct {
	mu sync.RWMutex

	graph   *namespace.Graph
	content content.Store

	snapshots map[ids.SnapshotId]*Snapshot
	branches  map[ids.BranchId]*Branch
	bindings  map[ids.PID]ids.BranchId

	defaultBranch ids.BranchId
	records       store.Store
}

// SetStore attaches a durable identity-record journal: every subsequent
// SnapshotCreate/SnapshotDelete/BranchCreate* also writes through to s. A nil
// store (the default) leaves the Manager memory-only, as before this
// package existed.
func (m *Manager) SetStore(s store.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = s
}

// NewManager constructs a Manager with one initial branch (the "default"
// branch resolve_effective_branch falls back to) rooted at a fresh, empty
// upper tree over graph's lower provider.
func NewManager(graph *namespace.Graph, store content.Store) *Manager {
	m := &Manager{
		graph:     graph,
		content:   store,
		snapshots: make(map[ids.SnapshotId]*Snapshot),
		branches:  make(map[ids.BranchId]*Branch),
		bindings:  make(map[ids.PID]ids.BranchId),
	}

	def := &Branch{ID: ids.NewBranchId(), Label: "default", CreatedAt: time.Now(), root: graph.NewRoot()}
	m.branches[def.ID] = def
	m.defaultBranch = def.ID
	return m
}

// DefaultBranch returns the id of the branch resolve_effective_branch falls
// back to when a process has no explicit binding.
func (m *Manager) DefaultBranch() ids.BranchId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultBranch
}

// Branch returns the named branch, or an error if it does not exist.
func (m *Manager) Branch(id ids.BranchId) (*Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, fserrors.NotFoundf("branch %s", id)
	}
	return b, nil
}

// BranchRoot satisfies pkg/handle's BranchResolver: it hands the Handle &
// Lock Manager the live *namespace.Root to resolve paths against, without
// that package importing pkg/snapshot's Branch/Snapshot bookkeeping types.
func (m *Manager) BranchRoot(id ids.BranchId) (*namespace.Root, error) {
	b, err := m.Branch(id)
	if err != nil {
		return nil, err
	}
	return b.root, nil
}

// SnapshotCreate seals branchID's current upper tree into a new, immutable
// Snapshot: every reachable ContentRef is Sealed (refcount-independent
// keep-alive), and the snapshot records the same NodeId root the branch
// currently points at -- no tree copy, per spec.md §4.5's structural
// sharing requirement.
func (m *Manager) SnapshotCreate(ctx context.Context, branchID ids.BranchId, label string) (ids.SnapshotId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.branches[branchID]
	if !ok {
		return ids.SnapshotId{}, fserrors.NotFoundf("branch %s", branchID)
	}

	sealedRoot := m.graph.ForkRoot(b.root)
	var sealErr error
	m.graph.WalkContentRefs(sealedRoot, func(ref content.ContentRef) {
		if sealErr != nil {
			return
		}
		sealErr = m.content.Seal(ctx, ref)
	})
	if sealErr != nil {
		return ids.SnapshotId{}, sealErr
	}

	snap := &Snapshot{
		ID: ids.NewSnapshotId(), Label: label, ParentBranch: branchID,
		CreatedAt: time.Now(), root: sealedRoot,
	}
	m.snapshots[snap.ID] = snap

	if m.records != nil {
		rec := store.SnapshotRecord{ID: snap.ID.String(), Label: snap.Label, ParentBranch: branchID.String(), CreatedAt: snap.CreatedAt}
		if err := m.records.PutSnapshot(ctx, rec); err != nil {
			logger.WarnCtx(ctx, "snapshot record journal write failed", logger.Operation("SnapshotCreate"), logger.Err(err))
		}
	}

	logger.InfoCtx(ctx, "snapshot created", logger.Operation("SnapshotCreate"),
		logger.SnapshotID(snap.ID.String()), logger.BranchID(branchID.String()))
	return snap.ID, nil
}

// SnapshotInfo is the listing projection snapshot_list returns.
type SnapshotInfo struct {
	ID           ids.SnapshotId
	Label        string
	ParentBranch ids.BranchId
	CreatedAt    time.Time
}

// SnapshotList returns every live snapshot.
func (m *Manager) SnapshotList() []SnapshotInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SnapshotInfo, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, SnapshotInfo{ID: s.ID, Label: s.Label, ParentBranch: s.ParentBranch, CreatedAt: s.CreatedAt})
	}
	return out
}

// SnapshotDelete releases a snapshot's seal on its reachable ContentRefs and
// forgets it. It fails with InUse if any branch was created from it, since
// that branch's unmaterialized (lower-only-relative-to-snapshot) reads may
// still depend on the snapshot's sealed chunks staying alive -- deleting it
// out from under a dependent branch would violate the immutability
// guarantee.
func (m *Manager) SnapshotDelete(ctx context.Context, id ids.SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[id]
	if !ok {
		return fserrors.NotFoundf("snapshot %s", id)
	}
	for _, b := range m.branches {
		if b.FromSnap == id {
			return fserrors.New(fserrors.InUse, "snapshot has dependent branches")
		}
	}

	var relErr error
	m.graph.WalkContentRefs(snap.root, func(ref content.ContentRef) {
		if relErr != nil {
			return
		}
		relErr = m.content.Release(ctx, ref)
	})
	if relErr != nil {
		return relErr
	}

	delete(m.snapshots, id)
	if m.records != nil {
		if err := m.records.DeleteSnapshot(ctx, id); err != nil {
			logger.WarnCtx(ctx, "snapshot record journal delete failed", logger.Operation("SnapshotDelete"), logger.Err(err))
		}
	}
	logger.InfoCtx(ctx, "snapshot deleted", logger.Operation("SnapshotDelete"), logger.SnapshotID(id.String()))
	return nil
}

// BranchCreateFromSnapshot creates a new writable branch whose root starts
// out structurally shared with snap -- O(1), no tree walk -- diverging
// lazily on first write via the namespace graph's path-copying.
func (m *Manager) BranchCreateFromSnapshot(snap ids.SnapshotId, label string) (ids.BranchId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snapshots[snap]
	if !ok {
		return ids.BranchId{}, fserrors.NotFoundf("snapshot %s", snap)
	}

	b := &Branch{
		ID: ids.NewBranchId(), Label: label, FromSnap: snap,
		CreatedAt: time.Now(), root: m.graph.ForkRoot(s.root),
	}
	m.branches[b.ID] = b
	if m.records != nil {
		rec := store.BranchRecord{ID: b.ID.String(), Label: b.Label, FromSnapshot: snap.String(), CreatedAt: b.CreatedAt}
		if err := m.records.PutBranch(context.Background(), rec); err != nil {
			logger.Warn("branch record journal write failed", logger.Err(err))
		}
	}
	return b.ID, nil
}

// BranchCreateFromCurrent creates a new branch sharing parent's current
// (possibly unsealed) tree. Per spec.md §4.5 this "includes an implicit
// snapshot point": parent's present state is sealed first so the fork
// point remains reconstructable even if parent is later deleted, then the
// new branch forks from that sealed root.
func (m *Manager) BranchCreateFromCurrent(ctx context.Context, parent ids.BranchId, label string) (ids.BranchId, error) {
	implicit, err := m.SnapshotCreate(ctx, parent, "")
	if err != nil {
		return ids.BranchId{}, err
	}
	return m.BranchCreateFromSnapshot(implicit, label)
}

// BranchInfo is the listing projection branch_list returns, consumed by the
// control plane's read-only HTTP introspection surface.
type BranchInfo struct {
	ID        ids.BranchId
	Label     string
	FromSnap  ids.SnapshotId
	CreatedAt time.Time
	Bound     []ids.PID
}

// BranchList returns every live branch, each annotated with the pids
// currently bound to it per spec.md §3's "process_bindings: set<pid>".
func (m *Manager) BranchList() []BranchInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bound := make(map[ids.BranchId][]ids.PID)
	for pid, b := range m.bindings {
		bound[b] = append(bound[b], pid)
	}
	out := make([]BranchInfo, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, BranchInfo{
			ID: b.ID, Label: b.Label, FromSnap: b.FromSnap,
			CreatedAt: b.CreatedAt, Bound: bound[b.ID],
		})
	}
	return out
}

// BindProcessToBranch records pid's effective branch, consulted by
// resolve_effective_branch for every subsequent open/create on that
// process. Existing handles the process already holds are unaffected, per
// spec.md §4.6's handle-stability invariant; only new opens see the
// rebind.
func (m *Manager) BindProcessToBranch(pid ids.PID, branch ids.BranchId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[branch]; !ok {
		return fserrors.NotFoundf("branch %s", branch)
	}
	m.bindings[pid] = branch
	return nil
}

// UnbindProcess removes pid's explicit binding; subsequent
// ResolveEffectiveBranch calls fall back to the default branch.
func (m *Manager) UnbindProcess(pid ids.PID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, pid)
}

// ResolveEffectiveBranch returns pid's bound branch, or the default branch
// if pid has no explicit binding.
func (m *Manager) ResolveEffectiveBranch(pid ids.PID) ids.BranchId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bindings[pid]; ok {
		return b
	}
	return m.defaultBranch
}
