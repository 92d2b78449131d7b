package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blocksense-network/agentfs/pkg/content"
)

func TestAllocReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(content.Config{ChunkSize: 8})

	ref, err := s.Alloc(ctx, []byte("hello world"))
	require.NoError(t, err)
	require.EqualValues(t, 11, ref.Len)

	got, err := s.Read(ctx, ref, 0, ref.Len)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestCloneCOWSharesUntilWrite(t *testing.T) {
	ctx := context.Background()
	s := New(content.Config{ChunkSize: 4})

	orig, err := s.Alloc(ctx, []byte("aaaabbbbcccc"))
	require.NoError(t, err)

	clone, err := s.CloneCOW(ctx, orig)
	require.NoError(t, err)
	require.Equal(t, orig.Len, clone.Len)

	// Writing to the clone must not mutate the original's bytes.
	clone, err = s.Write(ctx, clone, 0, []byte("ZZZZ"))
	require.NoError(t, err)

	origData, err := s.Read(ctx, orig, 0, orig.Len)
	require.NoError(t, err)
	require.Equal(t, "aaaabbbbcccc", string(origData))

	cloneData, err := s.Read(ctx, clone, 0, clone.Len)
	require.NoError(t, err)
	require.Equal(t, "ZZZZbbbbcccc", string(cloneData))
}

func TestTruncateShrinkAndGrow(t *testing.T) {
	ctx := context.Background()
	s := New(content.Config{ChunkSize: 4})

	ref, err := s.Alloc(ctx, []byte("abcdefgh"))
	require.NoError(t, err)

	ref, err = s.Truncate(ctx, ref, 3)
	require.NoError(t, err)
	require.EqualValues(t, 3, ref.Len)
	got, err := s.Read(ctx, ref, 0, ref.Len)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))

	ref, err = s.Truncate(ctx, ref, 6)
	require.NoError(t, err)
	got, err = s.Read(ctx, ref, 0, ref.Len)
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0}, got)
}

func TestReleaseGarbageCollectsUnsealedChunks(t *testing.T) {
	ctx := context.Background()
	s := New(content.Config{ChunkSize: 4})

	ref, err := s.Alloc(ctx, []byte("abcdefgh"))
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, ref))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.UniqueChunks)
}

func TestSealKeepsChunksAliveAfterRelease(t *testing.T) {
	ctx := context.Background()
	s := New(content.Config{ChunkSize: 4})

	ref, err := s.Alloc(ctx, []byte("abcdefgh"))
	require.NoError(t, err)

	clone, err := s.CloneCOW(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, s.Seal(ctx, ref))

	// Releasing the clone drops its refcount; the sealed ref still holds
	// one, and the seal also pins the underlying slots.
	require.NoError(t, s.Release(ctx, clone))

	data, err := s.Read(ctx, ref, 0, ref.Len)
	require.NoError(t, err)
	require.Equal(t, "abcdefgh", string(data))
}
