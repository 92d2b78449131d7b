package handle

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
	"github.com/blocksense-network/agentfs/pkg/snapshot"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *snapshot.Manager, ids.BranchId) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("base"), 0o644))

	store := memstore.New(content.Config{})
	graph := namespace.New(store, lower.NewHostFsProvider(dir), namespace.Config{})
	snaps := snapshot.NewManager(graph, store)
	return NewManager(graph, snaps, cfg), snaps, snaps.DefaultBranch()
}

func TestOpenCreateReadWrite(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Create: true, Write: true, ShareMode: ShareRead | ShareWrite}, 0o644, 0, 0)
	require.NoError(t, err)

	n, err := m.Write(ctx, h, 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, err := m.Read(ctx, h, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, m.Close(ctx, h))
}

func TestOpenReadsThroughLowerWithoutMaterializing(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h, err := m.Open(ctx, branch, "/f.txt", OpenOptions{Read: true, ShareMode: ShareRead | ShareWrite}, 0, 0, 0)
	require.NoError(t, err)

	got, err := m.Read(ctx, h, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("base"), got)
}

func TestShareModeConflictRequiresWindowsOriginOrEnforcement(t *testing.T) {
	m, _, branch := newTestManager(t, Config{EnforceWindowsShareModes: true})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Create: true, Write: true, ShareMode: ShareRead}, 0o644, 0, 0)
	require.NoError(t, err)
	defer m.Close(ctx, h1)

	_, err = m.Open(ctx, branch, "/new.txt", OpenOptions{Write: true, ShareMode: ShareRead | ShareWrite}, 0, 0, 0)
	require.Error(t, err)
	require.Equal(t, fserrors.Sharing, fserrors.CodeOf(err))
}

func TestShareModeAdvisoryByDefaultOnPosix(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Create: true, Write: true, ShareMode: ShareRead}, 0o644, 0, 0)
	require.NoError(t, err)
	defer m.Close(ctx, h1)

	h2, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Write: true, ShareMode: ShareRead | ShareWrite}, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, h2))
}

func TestLockConflictMatrix(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)
	h2, err := m.Open(ctx, branch, "/new.txt", OpenOptions{Write: true}, 0, 0, 0)
	require.NoError(t, err)

	require.NoError(t, m.Lock(h1, 0, 10, LockExclusive))

	err = m.Lock(h2, 5, 10, LockShared)
	require.Error(t, err)
	require.Equal(t, fserrors.LockConflict, fserrors.CodeOf(err))

	require.NoError(t, m.Lock(h1, 5, 10, LockShared))

	require.NoError(t, m.Unlock(h1, 0, 10))
	require.NoError(t, m.Lock(h2, 0, 10, LockShared))
}

func TestLockConflictSurvivesInterveningWrite(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/e.txt", OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, m.Lock(h1, 0, 100, LockExclusive))

	_, err = m.Write(ctx, h1, 0, []byte("hello"))
	require.NoError(t, err, "write through h1 renumbers the node")

	h2, err := m.Open(ctx, branch, "/e.txt", OpenOptions{Write: true}, 0, 0, 0)
	require.NoError(t, err)

	err = m.Lock(h2, 50, 100, LockShared)
	require.Error(t, err, "h1's exclusive lock must still be held on the renumbered node")
	require.Equal(t, fserrors.LockConflict, fserrors.CodeOf(err))
}

func TestShareModeConflictSurvivesInterveningWrite(t *testing.T) {
	m, _, branch := newTestManager(t, Config{EnforceWindowsShareModes: true})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/e2.txt", OpenOptions{Create: true, Write: true, ShareMode: ShareRead}, 0o644, 0, 0)
	require.NoError(t, err)
	defer m.Close(ctx, h1)

	_, err = m.Write(ctx, h1, 0, []byte("hello"))
	require.NoError(t, err)

	_, err = m.Open(ctx, branch, "/e2.txt", OpenOptions{Write: true, ShareMode: ShareRead | ShareWrite}, 0, 0, 0)
	require.Error(t, err, "h1's share-mode restriction must still apply on the renumbered node")
	require.Equal(t, fserrors.Sharing, fserrors.CodeOf(err))
}

func TestDeleteOnCloseSurvivesInterveningWrite(t *testing.T) {
	m, snaps, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/gone2.txt", OpenOptions{Create: true, Write: true, DeleteOnClose: true}, 0o644, 0, 0)
	require.NoError(t, err)
	h2, err := m.Open(ctx, branch, "/gone2.txt", OpenOptions{Write: true}, 0, 0, 0)
	require.NoError(t, err)

	_, err = m.Write(ctx, h1, 0, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx, h1))

	root, err := snaps.BranchRoot(branch)
	require.NoError(t, err)
	_, err = m.graph.GetAttrs(ctx, root, "/gone2.txt")
	require.NoError(t, err, "node must stay reachable while h2 is still open")

	require.NoError(t, m.Close(ctx, h2))
	_, err = m.graph.GetAttrs(ctx, root, "/gone2.txt")
	require.Error(t, err)
}

func TestOpenDeniesWriteWithoutOwnerOrGroupMatch(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/owned.txt", OpenOptions{Create: true, Write: true}, 0o640, 100, 200)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, h1))

	_, err = m.Open(ctx, branch, "/owned.txt", OpenOptions{Write: true}, 0, 999, 999)
	require.Error(t, err)
	require.Equal(t, fserrors.PermissionDenied, fserrors.CodeOf(err))

	h2, err := m.Open(ctx, branch, "/owned.txt", OpenOptions{Read: true}, 0, 100, 200)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, h2))
}

func TestOpenRootBypassPermissionsSkipsModeCheck(t *testing.T) {
	m, _, branch := newTestManager(t, Config{RootBypassPermissions: true})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/owned.txt", OpenOptions{Create: true, Write: true}, 0o600, 100, 200)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, h1))

	h2, err := m.Open(ctx, branch, "/owned.txt", OpenOptions{Write: true}, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, h2))
}

func TestDeleteOnCloseRemovesAfterLastHandle(t *testing.T) {
	m, snaps, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h1, err := m.Open(ctx, branch, "/gone.txt", OpenOptions{Create: true, Write: true, DeleteOnClose: true}, 0o644, 0, 0)
	require.NoError(t, err)
	h2, err := m.Open(ctx, branch, "/gone.txt", OpenOptions{Write: true}, 0, 0, 0)
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx, h1))

	root, err := snaps.BranchRoot(branch)
	require.NoError(t, err)
	_, err = m.graph.GetAttrs(ctx, root, "/gone.txt")
	require.NoError(t, err, "node must stay reachable while h2 is still open")

	require.NoError(t, m.Close(ctx, h2))
	_, err = m.graph.GetAttrs(ctx, root, "/gone.txt")
	require.Error(t, err)
}

func TestRenameUpdatesOpenHandlePath(t *testing.T) {
	m, _, branch := newTestManager(t, Config{})
	ctx := context.Background()

	h, err := m.Open(ctx, branch, "/a.txt", OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, m.Rename(ctx, branch, "/a.txt", "/b.txt"))

	_, err = m.Write(ctx, h, 0, []byte("hi"))
	require.NoError(t, err, "handle opened against the old name must follow the rename")
}
