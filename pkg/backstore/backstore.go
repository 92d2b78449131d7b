// Package backstore implements the Backstore Manager (spec.md §4.2): the
// component that selects and abstracts the storage backing used for a
// branch's upper overlay data, reporting capabilities (native reflink,
// native snapshots) so the namespace graph's copy-up protocol can pick the
// cheapest available path.
//
// Grounded on the teacher's storage-backend abstraction pattern
// (pkg/content.ContentStore / pkg/store), generalized from "one store per
// share" to "one backstore per mode" since AgentFS backstores are a
// process-wide resource, not a per-export configuration.
package backstore

import "context"

// Mode selects the storage backing for upper data, per spec.md §4.2/§6.
type Mode int

const (
	// InMemory keeps upper data entirely in process memory.
	InMemory Mode = iota
	// HostFs stores upper data under a real directory on the host
	// filesystem.
	HostFs
	// RamDisk provisions a dedicated ramdisk-backed volume for upper data.
	RamDisk
)

func (m Mode) String() string {
	switch m {
	case InMemory:
		return "InMemory"
	case HostFs:
		return "HostFs"
	case RamDisk:
		return "RamDisk"
	default:
		return "Unknown"
	}
}

// Capabilities reports which optional accelerations a Backstore supports.
type Capabilities struct {
	// SupportsNativeSnapshots indicates snapshot_native() is implemented by
	// delegating to the underlying storage (e.g. a copy-on-write volume
	// manager) instead of the structural-sharing path in pkg/snapshot.
	SupportsNativeSnapshots bool

	// SupportsNativeReflink indicates Reflink() uses a block-clone syscall
	// instead of falling back to a bounded copy.
	SupportsNativeReflink bool
}

// StorageHandle is an opaque reference to a file-like storage object
// allocated within a Backstore.
type StorageHandle uint64

// NativeSnapshotToken identifies a storage-native snapshot created via
// SnapshotNative, when the backstore supports it.
type NativeSnapshotToken string

// Backstore abstracts the storage mechanism used for a branch's upper
// overlay data (spec.md §4.2).
type Backstore interface {
	// Provision prepares the backstore for use (e.g. mounting a ramdisk).
	// For modes with no provisioning step, Provision is a no-op.
	Provision(ctx context.Context) error

	// Teardown releases backstore resources acquired by Provision.
	Teardown(ctx context.Context) error

	// AllocFile reserves a new storage object and returns a handle to it.
	AllocFile(ctx context.Context) (StorageHandle, error)

	// Read reads up to len(p) bytes from the storage object at offset.
	Read(ctx context.Context, h StorageHandle, p []byte, offset int64) (int, error)

	// Write writes p to the storage object at offset.
	Write(ctx context.Context, h StorageHandle, p []byte, offset int64) (int, error)

	// Truncate resizes the storage object.
	Truncate(ctx context.Context, h StorageHandle, size int64) error

	// DeleteFile releases a storage object and its backing space.
	DeleteFile(ctx context.Context, h StorageHandle) error

	// Reflink clones src's data into dst, both already-allocated storage
	// objects. The implementations in this package never return
	// fserrors.Unsupported: MemoryBackstore copies the bytes, and
	// HostFsBackstore (and RamDiskBackstore through it) tries a platform
	// block clone and copies the whole object itself when that fails.
	Reflink(ctx context.Context, src, dst StorageHandle) error

	// SnapshotNative requests a storage-level snapshot labeled label, when
	// Capabilities().SupportsNativeSnapshots is true. Returns
	// fserrors.Unsupported otherwise.
	SnapshotNative(ctx context.Context, label string) (NativeSnapshotToken, error)

	// Capabilities reports this backstore's optional feature support.
	Capabilities() Capabilities

	// Mode reports which Mode this instance implements.
	Mode() Mode
}
