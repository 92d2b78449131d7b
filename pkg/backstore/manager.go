package backstore

import (
	"context"
	"fmt"
)

// Config selects and configures a Backstore, matching spec.md §6
// `backstore: { mode, prefer_native_snapshots }`.
type Config struct {
	Mode               Mode
	HostFsRoot         string
	RamDiskMountPoint  string
	RamDiskSizeMB      int
	RamDiskFsType      string
	PreferNativeSnaps  bool
}

// New constructs the Backstore selected by cfg. Callers must call
// Provision before use and Teardown when done (both are no-ops for modes
// that need no lifecycle management).
func New(cfg Config) (Backstore, error) {
	switch cfg.Mode {
	case InMemory:
		return NewMemoryBackstore(), nil
	case HostFs:
		if cfg.HostFsRoot == "" {
			return nil, fmt.Errorf("backstore: HostFs mode requires a root directory")
		}
		return NewHostFsBackstore(cfg.HostFsRoot)
	case RamDisk:
		if cfg.RamDiskMountPoint == "" {
			return nil, fmt.Errorf("backstore: RamDisk mode requires a mount point")
		}
		return NewRamDiskBackstore(cfg.RamDiskMountPoint, cfg.RamDiskSizeMB, cfg.RamDiskFsType), nil
	default:
		return nil, fmt.Errorf("backstore: unknown mode %v", cfg.Mode)
	}
}

// Manager owns the process-wide Backstore and its lifecycle, mirroring the
// teacher's pattern of a small coordinating type above the raw
// store/backstore interface (pkg/content.ContentService).
type Manager struct {
	backstore Backstore
	cfg       Config
}

// NewManager constructs and provisions the Backstore selected by cfg.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	bs, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := bs.Provision(ctx); err != nil {
		return nil, fmt.Errorf("provision backstore: %w", err)
	}
	return &Manager{backstore: bs, cfg: cfg}, nil
}

// Backstore returns the managed backing store.
func (m *Manager) Backstore() Backstore { return m.backstore }

// PreferNativeSnapshots reports the configured policy for copy-up and
// snapshot creation to consult.
func (m *Manager) PreferNativeSnapshots() bool { return m.cfg.PreferNativeSnaps }

// Close tears down the managed backstore.
func (m *Manager) Close(ctx context.Context) error {
	return m.backstore.Teardown(ctx)
}
