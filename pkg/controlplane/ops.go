// Package controlplane implements the Event Bus & Control Plane's
// operation set (spec.md §4.7): the tagged-union request/response structs
// and the Server that dispatches decoded envelopes to pkg/snapshot,
// pkg/handle, and pkg/events.
package controlplane

import "github.com/blocksense-network/agentfs/pkg/controlplane/wire"

// Operation tags, spec.md §4.7 "Operations (tagged union)". Grouped by the
// subsystem they address; metadata passthrough verbs collapse into a
// handful of category ops (OpStat, OpChmod, OpChown, OpUtimens, OpTruncate,
// OpStatfs, OpXattr) rather than one tag per exact libc variant -- the
// spec's "Chmod*"/"Chown*" globs already name a family, not a fixed list.
const (
	OpSnapshotCreate wire.OpCode = iota + 1
	OpSnapshotList
	OpSnapshotDelete
	OpBranchCreate
	OpBranchBind
	OpBranchExec
	OpBackstoreCreateRamdisk
	OpBackstoreAttach
	OpBackstoreStatus
	OpPolicySet
	OpPolicyGet
	OpInterposeSet
	OpInterposeGet
	OpFdOpen
	OpPathOp
	OpWatchRegisterKqueue
	OpWatchRegisterFSEvents
	OpWatchUnregister
	OpWatchDoorbell
	OpUpdateDoorbellIdent
	OpWatchDrainEvents
	OpStat
	OpChmod
	OpChown
	OpUtimens
	OpTruncate
	OpStatfs
	OpXattr
)

// --- Snapshot & Branch Manager ops ---

type SnapshotCreateReq struct {
	Branch string
	Label  string
}
type SnapshotCreateResp struct{ ID string }

type SnapshotListReq struct{}
type SnapshotInfo struct {
	ID           string
	Label        string
	ParentBranch string
	CreatedAtUnix int64
}
type SnapshotListResp struct{ Snapshots []SnapshotInfo }

type SnapshotDeleteReq struct{ ID string }
type SnapshotDeleteResp struct{}

type BranchCreateReq struct {
	FromSnapshot string
	FromCurrent  string
	Label        string
}
type BranchCreateResp struct{ ID string }

type BranchBindReq struct {
	BranchID string
	Pid      uint64
}
type BranchBindResp struct{}

type BranchExecReq struct {
	BranchID string
	Argv     []string
	Env      []string
}
type BranchExecResp struct{ Pid uint64 }

// --- Backstore ops ---

type BackstoreCreateRamdiskReq struct {
	Fs     string
	SizeMb uint64
}
type BackstoreCreateRamdiskResp struct {
	Mount string
	Caps  uint32
}

type BackstoreAttachReq struct{ Root string }
type BackstoreAttachResp struct{ Caps uint32 }

type BackstoreStatusReq struct{}
type BackstoreStatusResp struct {
	Mode string
	Caps uint32
}

// --- Policy / interpose ops ---

type PolicySetReq struct {
	EnforceWindowsShareModes bool
	RootBypassPermissions    bool
}
type PolicySetResp struct{}

type PolicyGetReq struct{}
type PolicyGetResp struct {
	EnforceWindowsShareModes bool
	RootBypassPermissions    bool
}

type InterposeSetReq struct {
	Forwarding     bool
	MaxCopyBytes   uint64
	RequireReflink bool
}
type InterposeSetResp struct{}

type InterposeGetReq struct{}
type InterposeGetResp struct {
	Forwarding     bool
	MaxCopyBytes   uint64
	RequireReflink bool
}

// --- Interpose fd/path ops ---

type FdOpenReq struct {
	BranchID string
	Path     string
	Flags    uint32
}
type FdOpenResp struct {
	HandleID  string
	LowerPath string
	Upper     bool
}

type PathOpReq struct {
	BranchID string
	Kind     string // "rename" | "unlink"
	Path     string
	NewPath  string
}
type PathOpResp struct{}

// --- Watch ops ---

type WatchRegisterKqueueReq struct {
	Pid     uint64
	KqFD    int32
	EventID uint64
	Path    string
	Flags   uint32
	IsDir   bool
}
type WatchRegisterKqueueResp struct{ WatchID uint64 }

type WatchRegisterFSEventsReq struct {
	Pid          uint64
	StreamID     uint64
	PathPrefixes []string
	Flags        uint32
}
type WatchRegisterFSEventsResp struct{ WatchID uint64 }

type WatchUnregisterReq struct{ WatchID uint64 }
type WatchUnregisterResp struct{}

type WatchDoorbellReq struct {
	KqFD  int32
	Ident uint64
}
type WatchDoorbellResp struct{}

type UpdateDoorbellIdentReq struct {
	KqFD     int32
	OldIdent uint64
	NewIdent uint64
}
type UpdateDoorbellIdentResp struct{}

type WatchDrainEventsReq struct {
	Pid  uint64
	KqFD int32
}
type SynthesizedKeventWire struct {
	Ident  uint64
	Fflags uint32
	Path   string
}
type WatchDrainEventsResp struct{ Events []SynthesizedKeventWire }

// --- Metadata passthrough ops ---

type StatReq struct {
	BranchID string
	Path     string
	// FollowSymlink selects stat/fstat semantics (dereference a leaf
	// symlink) over lstat semantics (report the symlink itself).
	FollowSymlink bool
}
type StatResp struct {
	Kind  string
	Size  uint64
	Mode  uint32
	Nlink uint32
}

type ChmodReq struct {
	BranchID string
	Path     string
	Mode     uint32
}
type ChmodResp struct{}

type ChownReq struct {
	BranchID string
	Path     string
	Uid      uint32
	Gid      uint32
}
type ChownResp struct{}

type UtimensReq struct {
	BranchID  string
	Path      string
	AtimeUnix int64
	MtimeUnix int64
}
type UtimensResp struct{}

type TruncateReq struct {
	BranchID string
	Path     string
	Size     uint64
}
type TruncateResp struct{}

type StatfsReq struct {
	BranchID string
	Path     string
}
type StatfsResp struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	MaxNameLen uint32
}

type XattrReq struct {
	BranchID string
	Path     string
	Op       string // "get" | "set" | "list" | "remove"
	Name     string
	Value    []byte
}
type XattrResp struct {
	Value []byte
	Names []string
}
