// Package store provides durable bookkeeping for the Snapshot & Branch
// Manager's identity records -- snapshot/branch labels, parentage, and
// creation times -- so an AgentFS daemon restart can recover what existed
// without asking an administrator to recreate it by hand.
//
// It deliberately does not persist namespace trees: pkg/namespace.Root and
// pkg/content.Store (see pkg/content/memstore) hold live node graphs and
// in-memory chunk data with no on-disk representation in this build, the
// same gap pkg/backstore's unused Backstore-as-data-store has. A Store here
// is a recovery journal for snapshot_list/
// branch metadata across restarts of the control plane, not a replacement
// for the in-memory graph.
package store

import (
	"context"
	"time"

	"github.com/blocksense-network/agentfs/pkg/ids"
)

// SnapshotRecord is the persisted identity of one Snapshot.
type SnapshotRecord struct {
	ID           string
	Label        string
	ParentBranch string
	CreatedAt    time.Time
}

// BranchRecord is the persisted identity of one Branch.
type BranchRecord struct {
	ID           string
	Label        string
	FromSnapshot string
	CreatedAt    time.Time
}

// Store persists Snapshot/Branch identity records across restarts.
// pkg/snapshot.Manager calls it alongside its in-memory bookkeeping; a nil
// Store (the default) leaves the Manager exactly as memory-only as before
// this package existed.
type Store interface {
	PutSnapshot(ctx context.Context, rec SnapshotRecord) error
	DeleteSnapshot(ctx context.Context, id ids.SnapshotId) error
	ListSnapshots(ctx context.Context) ([]SnapshotRecord, error)

	PutBranch(ctx context.Context, rec BranchRecord) error
	ListBranches(ctx context.Context) ([]BranchRecord, error)

	Close() error
}
