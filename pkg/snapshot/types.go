// Package snapshot implements the Snapshot & Branch Manager (spec.md §4.5):
// creation, listing and deletion of immutable snapshots; branch creation
// from a snapshot or from another branch's current state; and per-process
// branch binding. It sits directly on top of pkg/namespace's Root/ForkRoot
// primitives and pkg/content.Store's Seal/Release refcounting, the way the
// teacher's pkg/metadata store sits on top of its payload layer.
package snapshot

import (
	"time"

	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/namespace"
)

// Snapshot is an immutable, named view of a branch's namespace tree at the
// moment snapshot_create ran. Its root is never mutated again: every
// ContentRef it (transitively) reaches has been sealed, so Content Store
// garbage collection cannot reclaim it while the snapshot exists.
type Snapshot struct {
	ID           ids.SnapshotId
	Label        string
	ParentBranch ids.BranchId
	CreatedAt    time.Time

	root *namespace.Root
}

// Branch is a writable namespace overlay: a live *namespace.Root that
// mutating core operations (Write, Create, Rename, ...) apply against.
type Branch struct {
	ID        ids.BranchId
	Label     string
	FromSnap  ids.SnapshotId // zero value if branched from another branch's current state
	CreatedAt time.Time

	root *namespace.Root
}

// Root returns the branch's live *namespace.Root, the handle that
// pkg/handle's Open/Create/Write path resolves against.
func (b *Branch) Root() *namespace.Root { return b.root }
