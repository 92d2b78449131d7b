package content

import "context"

// Store is the Content Store contract from spec.md §4.1.
//
// Implementations store file data as refcounted chunks deduplicated by
// content hash, and support O(1) copy-on-write cloning. A Store is shared
// across every branch of a filesystem: snapshots keep refs alive by
// sealing them, branches release them on delete/truncate, and CoW divergent
// writes allocate fresh chunks without touching the originator's bytes.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// refcount updates are atomic and writes on a cloned ref never mutate the
// bytes visible through the ref it was cloned from.
type Store interface {
	// Alloc inserts data and returns a fresh, refcounted reference
	// (refcount 1).
	Alloc(ctx context.Context, data []byte) (ContentRef, error)

	// CloneCOW returns a new reference sharing the same underlying chunks
	// as ref, in O(1) time regardless of ref's length. Subsequent divergent
	// writes through either reference reallocate only the affected chunks.
	CloneCOW(ctx context.Context, ref ContentRef) (ContentRef, error)

	// Read returns up to len bytes starting at offset. It never allocates
	// new chunks and never mutates ref.
	Read(ctx context.Context, ref ContentRef, offset uint64, length uint64) ([]byte, error)

	// Write overwrites the byte range [offset, offset+len(data)) and
	// returns the (possibly new) reference reflecting the result. Offsets
	// past the current length extend the content with zero bytes. Writing
	// into a chunk shared with another reference (because CloneCOW was
	// called) reallocates only that chunk; unaffected chunks keep sharing
	// storage with the originator.
	Write(ctx context.Context, ref ContentRef, offset uint64, data []byte) (ContentRef, error)

	// Truncate resizes ref's content, returning the resulting reference.
	// Shrinking releases whole chunks past newLen; growing extends with
	// zero bytes, reallocating only the chunk straddling the new boundary.
	Truncate(ctx context.Context, ref ContentRef, newLen uint64) (ContentRef, error)

	// Seal marks ref as snapshot-owned: its chunks are kept alive
	// regardless of refcount reaching zero elsewhere, for as long as any
	// sealed snapshot references them. Sealing is itself refcounted --
	// multiple snapshots may seal the same ref.
	Seal(ctx context.Context, ref ContentRef) error

	// Release decrements ref's refcount (and, if it was sealed by the
	// caller's snapshot, the seal count); chunks whose combined refcount
	// and seal count both reach zero are garbage collected. Release is
	// idempotent with respect to double-release detection: callers must
	// not release the same logical reference twice, but the Store does not
	// attempt to detect that -- ownership discipline lives in the
	// namespace graph and snapshot manager that call it.
	Release(ctx context.Context, ref ContentRef) error

	// Stats reports aggregate usage for control-plane introspection.
	Stats(ctx context.Context) (StorageStats, error)
}
