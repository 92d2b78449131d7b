package backstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// HostFsBackstore stores upper data as regular files under a root
// directory on the host filesystem (spec.md §4.2 "HostFs{root}"). Storage
// handles map to "<root>/objects/<n>" files.
//
// Positioned file I/O uses the standard os package; the platform reflink
// ioctl is issued through golang.org/x/sys/unix by reflinkFiles
// (reflink_linux.go).
type HostFsBackstore struct {
	root string

	mu   sync.Mutex
	next atomic.Uint64
}

// NewHostFsBackstore creates a backstore rooted at dir, creating it if
// necessary.
func NewHostFsBackstore(dir string) (*HostFsBackstore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("create backstore root: %w", err)
	}
	return &HostFsBackstore{root: dir}, nil
}

func (b *HostFsBackstore) objectPath(h StorageHandle) string {
	return filepath.Join(b.root, "objects", fmt.Sprintf("%d", uint64(h)))
}

func (b *HostFsBackstore) Provision(context.Context) error { return nil }
func (b *HostFsBackstore) Teardown(context.Context) error  { return nil }

func (b *HostFsBackstore) AllocFile(context.Context) (StorageHandle, error) {
	h := StorageHandle(b.next.Add(1))
	f, err := os.OpenFile(b.objectPath(h), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("alloc storage object: %w", err)
	}
	return h, f.Close()
}

func (b *HostFsBackstore) Read(_ context.Context, h StorageHandle, p []byte, offset int64) (int, error) {
	f, err := os.Open(b.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fserrors.New(fserrors.NotFound, "storage object missing")
		}
		return 0, err
	}
	defer f.Close()
	n, err := f.ReadAt(p, offset)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (b *HostFsBackstore) Write(_ context.Context, h StorageHandle, p []byte, offset int64) (int, error) {
	f, err := os.OpenFile(b.objectPath(h), os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fserrors.New(fserrors.NotFound, "storage object missing")
		}
		return 0, err
	}
	defer f.Close()
	return f.WriteAt(p, offset)
}

func (b *HostFsBackstore) Truncate(_ context.Context, h StorageHandle, size int64) error {
	if err := os.Truncate(b.objectPath(h), size); err != nil {
		if os.IsNotExist(err) {
			return fserrors.New(fserrors.NotFound, "storage object missing")
		}
		return err
	}
	return nil
}

func (b *HostFsBackstore) DeleteFile(_ context.Context, h StorageHandle) error {
	if err := os.Remove(b.objectPath(h)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Reflink attempts a platform block-clone (see reflink_linux.go); when
// that fails it copies the whole object inline, so it never returns
// fserrors.Unsupported.
func (b *HostFsBackstore) Reflink(ctx context.Context, src, dst StorageHandle) error {
	if err := reflinkFiles(b.objectPath(src), b.objectPath(dst)); err == nil {
		return nil
	}
	return b.copyFallback(ctx, src, dst)
}

func (b *HostFsBackstore) copyFallback(_ context.Context, src, dst StorageHandle) error {
	in, err := os.Open(b.objectPath(src))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(b.objectPath(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (b *HostFsBackstore) SnapshotNative(context.Context, string) (NativeSnapshotToken, error) {
	return "", fserrors.New(fserrors.Unsupported, "host-fs backstore has no native snapshot facility")
}

func (b *HostFsBackstore) Capabilities() Capabilities {
	return Capabilities{
		SupportsNativeSnapshots: false,
		SupportsNativeReflink:   reflinkSupported(),
	}
}

func (b *HostFsBackstore) Mode() Mode { return HostFs }
