package lower

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostFsProviderStatAndRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))

	p := NewHostFsProvider(dir)
	ctx := context.Background()

	st, err := p.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	require.False(t, st.IsDir)
	require.Equal(t, uint64(5), st.Size)

	dst, err := p.Stat(ctx, "/sub")
	require.NoError(t, err)
	require.True(t, dst.IsDir)

	lst, err := p.Stat(ctx, "/link")
	require.NoError(t, err)
	require.True(t, lst.IsSymlnk)

	f, err := p.OpenRO(ctx, "/a.txt")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestHostFsProviderReadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	p := NewHostFsProvider(dir)
	entries, err := p.ReadDir(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestHostFsProviderReadlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))

	p := NewHostFsProvider(dir)
	target, err := p.Readlink(context.Background(), "/link")
	require.NoError(t, err)
	require.Equal(t, "a.txt", target)
}

func TestHostFsProviderNotFound(t *testing.T) {
	p := NewHostFsProvider(t.TempDir())
	_, err := p.Stat(context.Background(), "/missing")
	require.Error(t, err)
}

func TestHostFsProviderStatfs(t *testing.T) {
	dir := t.TempDir()
	p := NewHostFsProvider(dir)
	fs, err := p.Statfs(context.Background(), "/")
	require.NoError(t, err)
	require.Greater(t, fs.BlockSize, uint64(0))
}
