package backstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// RamDiskBackstore provisions a tmpfs-backed mount point and then delegates
// all storage operations to an embedded HostFsBackstore rooted there.
// spec.md §4.2 models RamDisk as its own mode because Provision/Teardown
// carry lifecycle semantics InMemory and HostFs don't: the volume is
// created on demand and destroyed when no longer needed.
type RamDiskBackstore struct {
	*HostFsBackstore
	mountPoint string
	sizeMB     int
	fsType     string
	mounted    bool
}

// NewRamDiskBackstore prepares (but does not yet mount) a ramdisk backstore
// at mountPoint with the given size and filesystem type (e.g. "tmpfs").
func NewRamDiskBackstore(mountPoint string, sizeMB int, fsType string) *RamDiskBackstore {
	if fsType == "" {
		fsType = "tmpfs"
	}
	return &RamDiskBackstore{mountPoint: mountPoint, sizeMB: sizeMB, fsType: fsType}
}

// Provision mounts the ramdisk. No corpus dependency wraps mount(2); this
// shells out the same way an operator would, which is the narrowest stdlib
// surface available (see DESIGN.md).
func (b *RamDiskBackstore) Provision(ctx context.Context) error {
	if b.mounted {
		return nil
	}
	if err := os.MkdirAll(b.mountPoint, 0o755); err != nil {
		return fmt.Errorf("create ramdisk mount point: %w", err)
	}
	opts := fmt.Sprintf("size=%dm", b.sizeMB)
	cmd := exec.CommandContext(ctx, "mount", "-t", b.fsType, "-o", opts, b.fsType, b.mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mount ramdisk: %w: %s", err, out)
	}
	hostFs, err := NewHostFsBackstore(b.mountPoint)
	if err != nil {
		return err
	}
	b.HostFsBackstore = hostFs
	b.mounted = true
	return nil
}

// Teardown unmounts the ramdisk.
func (b *RamDiskBackstore) Teardown(ctx context.Context) error {
	if !b.mounted {
		return nil
	}
	cmd := exec.CommandContext(ctx, "umount", b.mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("unmount ramdisk: %w: %s", err, out)
	}
	b.mounted = false
	b.HostFsBackstore = nil
	return nil
}

func (b *RamDiskBackstore) AllocFile(ctx context.Context) (StorageHandle, error) {
	if !b.mounted {
		return 0, fserrors.New(fserrors.Internal, "ramdisk not provisioned")
	}
	return b.HostFsBackstore.AllocFile(ctx)
}

func (b *RamDiskBackstore) Capabilities() Capabilities {
	return Capabilities{SupportsNativeSnapshots: false, SupportsNativeReflink: reflinkSupported()}
}

func (b *RamDiskBackstore) Mode() Mode { return RamDisk }
