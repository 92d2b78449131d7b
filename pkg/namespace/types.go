// Package namespace implements the Namespace Graph component (spec.md §4.4):
// the per-branch copy-on-write overlay tree, path resolution, copy-up, and
// directory merging. Only materialized ("upper") entries live in the graph's
// node table -- anything not yet copied up is resolved on demand against a
// lower.Provider and never allocated a NodeId.
package namespace

import (
	"time"

	"github.com/blocksense-network/agentfs/pkg/content"
)

// NodeId is an internal, process-lifetime-stable identifier for a
// materialized (upper) node. Per spec.md §3 it is never exposed externally;
// handles, paths and the control plane address nodes indirectly.
type NodeId uint64

// zeroNode is never a valid allocated id; it marks "no upper entry".
const zeroNode NodeId = 0

// Kind distinguishes the four node shapes spec.md §3 defines.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindWhiteout
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindWhiteout:
		return "whiteout"
	default:
		return "unknown"
	}
}

// Origin records whether a node's data is fully materialized in the upper
// overlay or still served from the lower provider.
type Origin int

const (
	// OriginUpper is a fully materialized node: metadata and data both live
	// in the upper overlay.
	OriginUpper Origin = iota
	// OriginMetadataOverlay is an upper node with overlaid metadata whose
	// data still comes from the lower provider, until the first data write.
	OriginMetadataOverlay
)

// Times holds the four POSIX/BSD timestamps spec.md §3 tracks per node.
type Times struct {
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time
}

// Metadata is the attribute set every node kind carries, matching spec.md
// §3's Node.Metadata description and mirroring the field set of the
// teacher's metadata.FileAttr.
type Metadata struct {
	Mode   uint32
	UID    uint32
	GID    uint32
	Times  Times
	Flags  uint32
	Xattrs map[string][]byte
	ACL    []byte
}

func newMetadataFromLower(mode uint32, uid, gid uint32, mtime time.Time) Metadata {
	now := time.Now()
	return Metadata{
		Mode: mode, UID: uid, GID: gid,
		Times:  Times{Atime: now, Mtime: mtime, Ctime: now, Birthtime: now},
		Xattrs: make(map[string][]byte),
	}
}

// Stream is one named data stream of a file (the default stream key is "").
type Stream struct {
	Ref content.ContentRef
}

// Node is one materialized entry in a branch's upper overlay tree.
type Node struct {
	Kind   Kind
	Origin Origin
	Meta   Metadata

	// Streams holds File data, keyed by stream name ("" is the default
	// stream / unnamed data fork).
	Streams map[string]Stream

	// Children holds Dir entries, keyed by name in its original casing;
	// lookups apply the graph's CaseMode (see Graph.lookupChild).
	Children map[string]NodeId

	// Target is the Symlink's link target.
	Target string

	// lowerPath is the path, relative to the branch's lower root, that this
	// node shadows. Consulted when a node is an OriginMetadataOverlay (data
	// still lower-served) or when resolution falls through one of its
	// not-yet-copied-up children.
	lowerPath string
}

func (n *Node) clone() *Node {
	c := *n
	if n.Streams != nil {
		c.Streams = make(map[string]Stream, len(n.Streams))
		for k, v := range n.Streams {
			c.Streams[k] = v
		}
	}
	if n.Children != nil {
		c.Children = make(map[string]NodeId, len(n.Children))
		for k, v := range n.Children {
			c.Children[k] = v
		}
	}
	if n.Meta.Xattrs != nil {
		c.Meta.Xattrs = make(map[string][]byte, len(n.Meta.Xattrs))
		for k, v := range n.Meta.Xattrs {
			c.Meta.Xattrs[k] = v
		}
	}
	return &c
}

// DefaultStream is the key under which a File's unnamed data fork is stored.
const DefaultStream = ""

// DefaultSymlinkDepth is the resolution depth cap spec.md §4.4 names.
const DefaultSymlinkDepth = 40

// CaseMode configures path-component comparison, spec.md §4.4 "Case
// sensitivity configurable per filesystem".
type CaseMode int

const (
	CaseSensitive CaseMode = iota
	CaseInsensitivePreserving
)

// ModeStrategy selects how a copied-up node's permission bits are derived
// from the lower object, per spec.md §6 `copyup.mode_strategy`.
type ModeStrategy int

const (
	// ModeClone carries the lower object's mode bits unchanged.
	ModeClone ModeStrategy = iota
	// ModeCloneAndUmask clones the lower mode then clears bits set in the
	// configured umask, the way a freshly created file would under it.
	ModeCloneAndUmask
	// ModeFixed ignores the lower mode and always applies a configured
	// fixed mode.
	ModeFixed
)

// AclStrategy selects how a copied-up node's ACL bytes are derived from the
// lower object, per spec.md §6 `copyup.acl_strategy`.
type AclStrategy int

const (
	// AclClone carries the lower object's ACL bytes unchanged.
	AclClone AclStrategy = iota
	// AclDrop discards the lower ACL; the copied-up node starts with none.
	AclDrop
	// AclMapBasic reduces the lower ACL to the basic POSIX mode bits only,
	// dropping any richer ACL entries the lower object carried.
	AclMapBasic
)

// CopyUpConfig is the copy-up policy spec.md §6's `copyup` block selects.
type CopyUpConfig struct {
	ModeStrategy ModeStrategy
	AclStrategy  AclStrategy
	// Umask is applied when ModeStrategy is ModeCloneAndUmask.
	Umask uint32
	// FixedMode is applied when ModeStrategy is ModeFixed.
	FixedMode uint32
}

// apply derives the upper node's mode from the lower object's mode per the
// configured ModeStrategy.
func (c CopyUpConfig) apply(lowerMode uint32) uint32 {
	switch c.ModeStrategy {
	case ModeCloneAndUmask:
		return lowerMode &^ c.Umask
	case ModeFixed:
		return c.FixedMode
	default:
		return lowerMode
	}
}

// applyACL derives the upper node's ACL bytes from the lower object's ACL
// per the configured AclStrategy. The Lower Provider in this tree exposes no
// ACL retrieval, so acl is always empty today; the strategy still governs
// what a future ACL-capable provider's bytes would become.
func (c CopyUpConfig) applyACL(acl []byte) []byte {
	switch c.AclStrategy {
	case AclDrop, AclMapBasic:
		return nil
	default:
		return acl
	}
}

// Entry is what path resolution returns: either a materialized upper node
// or a pointer into lower space that has never been copied up.
type Entry struct {
	// NodeID is non-zero when the entry is a materialized upper node.
	NodeID NodeId
	// IsLower is true when the entry exists only in the lower provider.
	IsLower bool
	// LowerPath is valid when IsLower is true, or when a materialized node
	// still needs to consult lower (e.g. MetadataOverlay data reads).
	LowerPath string
}
