// Package handle implements the Handle & Lock Manager (spec.md §4.6):
// open/create/close, byte-range locks, share-mode admission, and
// delete-on-close, layered on top of pkg/namespace and pkg/snapshot.
//
// Grounded on the teacher's pkg/metadata lock subsystem
// (lock_manager.go/lock_types.go/locking.go): same conflict-matrix shape
// and per-key lock table, generalized from SMB/NLM lock owners to AgentFS
// HandleIds and from FileHandle byte-blobs to (branch, node/path, stream)
// identity.
package handle

import (
	"time"

	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/namespace"
)

// ShareMode is a bitmask of the access other handles on the same node are
// permitted while this handle stays open, spec.md §4.6 "Share modes".
type ShareMode uint32

const (
	ShareRead ShareMode = 1 << iota
	ShareWrite
	ShareDelete
)

// OpenOptions is the open/create input spec.md §4.6 names.
type OpenOptions struct {
	Read          bool
	Write         bool
	Append        bool
	Create        bool
	CreateNew     bool
	Truncate      bool
	ShareMode     ShareMode
	Stream        string
	DeleteOnClose bool
	// WindowsOrigin marks the handle as subject to mandatory share-mode
	// enforcement regardless of EnforceWindowsShareModes, matching "always
	// enforced for handles marked Windows-origin".
	WindowsOrigin bool
}

// LockKind distinguishes a shared (read) lock from an exclusive (write)
// lock, spec.md §4.6 "Byte-range locks".
type LockKind int

const (
	LockShared LockKind = iota
	LockExclusive
)

func (k LockKind) String() string {
	if k == LockExclusive {
		return "exclusive"
	}
	return "shared"
}

// Lock is one byte-range lock. Length 0 means "to end of file".
type Lock struct {
	Owner  ids.HandleId
	Offset uint64
	Length uint64
	Kind   LockKind
}

// End returns the lock's exclusive end offset, or 0 for an unbounded lock.
func (l Lock) End() uint64 {
	if l.Length == 0 {
		return 0
	}
	return l.Offset + l.Length
}

// Handle is one open reference to a namespace node/stream, spec.md §4.6
// "Returns a handle referencing (branch, node, stream)".
type Handle struct {
	ID     ids.HandleId
	Branch ids.BranchId

	// path is the node's path at open time, kept in sync by the Manager's
	// Rename so reads/writes issued against this handle keep working after
	// the creating process (or another) renames the node -- path resolution
	// is how pkg/namespace's operations are addressed, so handle stability
	// is implemented as "the manager updates every affected handle's path
	// on rename" rather than a reverse node-to-path index in the graph.
	path   string
	stream string

	// identity is the (materialized-or-not) node identity share-mode and
	// lock admission key. It does not change across rename (the node itself
	// did not change, only path does), but it is rebound by
	// Manager.rebindIdentity after any Write/Truncate through this or any
	// other handle on the same node, since those allocate a fresh NodeId.
	identity nodeIdentity

	Options       OpenOptions
	DeleteOnClose bool
	UID, GID      uint32
	OpenedAt      time.Time
}

// nodeIdentity is the comparable key share-mode admission and byte-range
// locks are tracked under: a materialized node's NodeId when upper, or its
// lower path when not yet copied up (copy-up reassigns the identity to the
// resulting NodeId for every handle sharing it, via Manager.rebindIdentity).
type nodeIdentity struct {
	branch    ids.BranchId
	upper     bool
	node      namespace.NodeId
	lowerPath string
}
