package backstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackstoreReadWriteTruncate(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackstore()

	h, err := b.AllocFile(ctx)
	require.NoError(t, err)

	_, err = b.Write(ctx, h, []byte("hello"), 0)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := b.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, b.Truncate(ctx, h, 2))
	n, err = b.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "he", string(buf[:n]))
}

func TestMemoryBackstoreReflink(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackstore()

	src, _ := b.AllocFile(ctx)
	dst, _ := b.AllocFile(ctx)
	_, err := b.Write(ctx, src, []byte("clone-me"), 0)
	require.NoError(t, err)

	require.NoError(t, b.Reflink(ctx, src, dst))

	buf := make([]byte, 8)
	n, err := b.Read(ctx, dst, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "clone-me", string(buf[:n]))
}

func TestHostFsBackstoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewHostFsBackstore(t.TempDir())
	require.NoError(t, err)

	h, err := b.AllocFile(ctx)
	require.NoError(t, err)

	_, err = b.Write(ctx, h, []byte("on-disk"), 0)
	require.NoError(t, err)

	buf := make([]byte, 7)
	n, err := b.Read(ctx, h, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "on-disk", string(buf[:n]))

	require.NoError(t, b.DeleteFile(ctx, h))
}

func TestManagerSelectsBackstoreByMode(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, Config{Mode: InMemory})
	require.NoError(t, err)
	require.Equal(t, InMemory, m.Backstore().Mode())
	require.NoError(t, m.Close(ctx))
}
