package namespace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/content/memstore"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) (*Graph, *Root, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lower.txt"), []byte("lower-data"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subdir", "nested.txt"), []byte("nested"), 0o644))

	g := New(memstore.New(content.Config{}), lower.NewHostFsProvider(dir), Config{})
	root := g.NewRoot()
	return g, root, dir
}

func TestResolveLowerOnly(t *testing.T) {
	g, root, _ := newTestGraph(t)
	e, err := g.Resolve(context.Background(), root, "/lower.txt")
	require.NoError(t, err)
	require.True(t, e.IsLower)
	require.Equal(t, "/lower.txt", e.LowerPath)
}

func TestResolveNotFound(t *testing.T) {
	g, root, _ := newTestGraph(t)
	_, err := g.Resolve(context.Background(), root, "/missing.txt")
	require.Error(t, err)
	require.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))
}

func TestCreateAndResolveUpper(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()
	_, err := g.Create(ctx, root, "/new.txt", KindFile, 0o644, 1, 1, true)
	require.NoError(t, err)

	e, err := g.Resolve(ctx, root, "/new.txt")
	require.NoError(t, err)
	require.False(t, e.IsLower)
}

func TestWriteTriggersCopyUp(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	n, err := g.Write(ctx, root, "/lower.txt", DefaultStream, 0, []byte("UPPER"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	e, err := g.Resolve(ctx, root, "/lower.txt")
	require.NoError(t, err)
	require.False(t, e.IsLower)

	attrs, err := g.GetAttrs(ctx, root, "/lower.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(10), attrs.Size) // "UPPER" overwrote first 5 bytes of "lower-data" (10 bytes)
}

func TestSnapshotIsolationAfterFork(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := g.Create(ctx, root, "/shared-dir-file.txt", KindFile, 0o644, 0, 0, true)
	require.NoError(t, err)

	// Fork a branch from the current root: it shares structure until
	// divergence.
	branchB := g.ForkRoot(root)

	_, err = g.Write(ctx, branchB, "/shared-dir-file.txt", DefaultStream, 0, []byte("hello"))
	require.NoError(t, err)

	// Original root must still see the file as empty/unwritten.
	attrsOrig, err := g.GetAttrs(ctx, root, "/shared-dir-file.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(0), attrsOrig.Size)

	attrsB, err := g.GetAttrs(ctx, branchB, "/shared-dir-file.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(5), attrsB.Size)
}

func TestUnlinkLowerInstallsWhiteout(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.Unlink(ctx, root, "/lower.txt"))

	_, err := g.Resolve(ctx, root, "/lower.txt")
	require.Error(t, err)
	require.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))
}

func TestReadDirMergesUpperAndLower(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := g.Create(ctx, root, "/upper-only.txt", KindFile, 0o644, 0, 0, true)
	require.NoError(t, err)

	entries, err := g.ReadDir(ctx, root, "/")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["lower.txt"])
	require.True(t, names["subdir"])
	require.True(t, names["upper-only.txt"])
}

func TestReadDirExcludesWhiteout(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, g.Unlink(ctx, root, "/lower.txt"))

	entries, err := g.ReadDir(ctx, root, "/")
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, "lower.txt", e.Name)
	}
}

func TestRenameLowerOnlyMaterializesAndWhitesOut(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.Rename(ctx, root, "/lower.txt", "/renamed.txt"))

	_, err := g.Resolve(ctx, root, "/lower.txt")
	require.Error(t, err)
	require.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))

	e, err := g.Resolve(ctx, root, "/renamed.txt")
	require.NoError(t, err)
	require.False(t, e.IsLower)
}

func TestRmdirRequiresEmptyMergedView(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	err := g.Rmdir(ctx, root, "/subdir")
	require.Error(t, err)
	require.Equal(t, fserrors.NotEmpty, fserrors.CodeOf(err))
}

func TestSymlinkResolution(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := g.Symlink(ctx, root, "/link.txt", "lower.txt", 0, 0)
	require.NoError(t, err)

	target, err := g.Readlink(ctx, root, "/link.txt")
	require.NoError(t, err)
	require.Equal(t, "lower.txt", target)

	e, err := g.ResolveFollow(ctx, root, "/link.txt")
	require.NoError(t, err)
	require.True(t, e.IsLower)
	require.Equal(t, "/lower.txt", e.LowerPath)
}

func TestSetXattrTriggersMetadataOverlay(t *testing.T) {
	g, root, _ := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.SetXattr(ctx, root, "/lower.txt", "user.test", []byte("v")))

	v, err := g.GetXattr(ctx, root, "/lower.txt", "user.test")
	require.NoError(t, err)
	require.Equal(t, "v", string(v))

	attrs, err := g.GetAttrs(ctx, root, "/lower.txt")
	require.NoError(t, err)
	require.Equal(t, KindFile, attrs.Kind)
}
