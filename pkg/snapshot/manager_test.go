package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/content/memstore"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/blocksense-network/agentfs/pkg/namespace"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("base"), 0o644))

	store := memstore.New(content.Config{})
	graph := namespace.New(store, lower.NewHostFsProvider(dir), namespace.Config{})
	return NewManager(graph, store), dir
}

func TestDefaultBranchResolvesWithNoBinding(t *testing.T) {
	m, _ := newTestManager(t)
	def := m.DefaultBranch()
	require.Equal(t, def, m.ResolveEffectiveBranch(ids.PID(123)))
}

func TestBindAndUnbindProcess(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snapID, err := m.SnapshotCreate(ctx, m.DefaultBranch(), "s1")
	require.NoError(t, err)
	branchID, err := m.BranchCreateFromSnapshot(snapID, "b1")
	require.NoError(t, err)

	require.NoError(t, m.BindProcessToBranch(ids.PID(7), branchID))
	require.Equal(t, branchID, m.ResolveEffectiveBranch(ids.PID(7)))

	m.UnbindProcess(ids.PID(7))
	require.Equal(t, m.DefaultBranch(), m.ResolveEffectiveBranch(ids.PID(7)))
}

func TestSnapshotIsolationAcrossBranches(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	g := m.graph

	def, err := m.Branch(m.DefaultBranch())
	require.NoError(t, err)

	_, err = g.Create(ctx, def.Root(), "/shared.txt", namespace.KindFile, 0o644, 0, 0, true)
	require.NoError(t, err)

	snapID, err := m.SnapshotCreate(ctx, m.DefaultBranch(), "snap1")
	require.NoError(t, err)

	branchID, err := m.BranchCreateFromSnapshot(snapID, "fork")
	require.NoError(t, err)
	branch, err := m.Branch(branchID)
	require.NoError(t, err)

	_, err = g.Write(ctx, branch.Root(), "/shared.txt", namespace.DefaultStream, 0, []byte("hi"))
	require.NoError(t, err)

	origAttrs, err := g.GetAttrs(ctx, def.Root(), "/shared.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(0), origAttrs.Size)

	forkAttrs, err := g.GetAttrs(ctx, branch.Root(), "/shared.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(2), forkAttrs.Size)
}

func TestSnapshotDeleteFailsWithDependentBranch(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snapID, err := m.SnapshotCreate(ctx, m.DefaultBranch(), "s1")
	require.NoError(t, err)
	_, err = m.BranchCreateFromSnapshot(snapID, "dependent")
	require.NoError(t, err)

	err = m.SnapshotDelete(ctx, snapID)
	require.Error(t, err)
	require.Equal(t, fserrors.InUse, fserrors.CodeOf(err))
}

func TestSnapshotDeleteSucceedsWithoutDependents(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snapID, err := m.SnapshotCreate(ctx, m.DefaultBranch(), "s1")
	require.NoError(t, err)
	require.NoError(t, m.SnapshotDelete(ctx, snapID))

	list := m.SnapshotList()
	require.Empty(t, list)
}

func TestBranchCreateFromCurrentSealsImplicitSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	g := m.graph

	def, err := m.Branch(m.DefaultBranch())
	require.NoError(t, err)
	_, err = g.Create(ctx, def.Root(), "/a.txt", namespace.KindFile, 0o644, 0, 0, true)
	require.NoError(t, err)

	childID, err := m.BranchCreateFromCurrent(ctx, m.DefaultBranch(), "child")
	require.NoError(t, err)
	child, err := m.Branch(childID)
	require.NoError(t, err)

	_, err = g.Resolve(ctx, child.Root(), "/a.txt")
	require.NoError(t, err)
}

func TestBranchListReportsBoundPids(t *testing.T) {
	m, _ := newTestManager(t)

	snapID, err := m.SnapshotCreate(context.Background(), m.DefaultBranch(), "s1")
	require.NoError(t, err)
	branchID, err := m.BranchCreateFromSnapshot(snapID, "b1")
	require.NoError(t, err)
	require.NoError(t, m.BindProcessToBranch(ids.PID(42), branchID))

	list := m.BranchList()
	require.Len(t, list, 2)

	byID := make(map[ids.BranchId]BranchInfo, len(list))
	for _, b := range list {
		byID[b.ID] = b
	}

	require.Equal(t, []ids.PID{42}, byID[branchID].Bound)
	require.Equal(t, snapID, byID[branchID].FromSnap)
	require.Empty(t, byID[m.DefaultBranch()].Bound)
}
