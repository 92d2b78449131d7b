// Package lower implements the Lower Provider component (spec.md §4.3): a
// small, stable capability trait the Namespace Graph consumes for
// unmodified paths. Lower state is never mutated by the core -- Provider
// implementations exist purely to read.
//
// Per spec.md §9 "Dynamic dispatch for Lower Provider and Backstore is
// modeled as capability traits with a small, stable method set; the core
// owns no ambient global provider" -- Provider is deliberately narrow and
// the core never reaches for a process-global instance of it.
package lower

import (
	"context"
	"io"
	"os"
	"time"
)

// Stat is the subset of host metadata the namespace graph needs to
// project a lower-only node, mirroring spec.md §3 Node Metadata.
type Stat struct {
	IsDir    bool
	IsSymlnk bool
	Mode     uint32
	UID      uint32
	GID      uint32
	Size     uint64
	Atime    time.Time
	Mtime    time.Time
	Ctime    time.Time
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FsStat mirrors the subset of statfs(2) output the control plane's
// Statfs passthrough operation needs.
type FsStat struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	MaxNameLen uint32
}

// File is a read-only handle returned by OpenRO.
type File interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// Provider is the read-only adapter over the underlying host namespace
// that the Namespace Graph consults when a path has no upper entry.
// Implementations must be safe for concurrent callers; any handles they
// hand out are adapter-owned, not shared with the core's own handle
// tracking in pkg/handle.
type Provider interface {
	// Stat returns metadata for path, or an fserrors.NotFound error.
	Stat(ctx context.Context, path string) (Stat, error)

	// OpenRO opens path for sequential/random-access reading.
	OpenRO(ctx context.Context, path string) (File, error)

	// ReadDir lists the immediate children of a directory path.
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)

	// Readlink returns a symlink's target.
	Readlink(ctx context.Context, path string) (string, error)

	// GetXattr returns one extended attribute's value.
	GetXattr(ctx context.Context, path, name string) ([]byte, error)

	// ListXattr returns the names of all extended attributes set on path.
	ListXattr(ctx context.Context, path string) ([]string, error)

	// Statfs returns filesystem-level statistics for the volume backing
	// path, used for the control plane's Statfs passthrough. MaxNameLen is
	// reported only; no namespace operation checks names against it.
	Statfs(ctx context.Context, path string) (FsStat, error)
}

// toStatMode converts os.FileMode bits the way the host layer natively
// reports them into the POSIX-style mode field spec.md's Node.Metadata
// expects; kept here (rather than in the host-fs implementation) so any
// future Provider can share it.
func toStatMode(m os.FileMode) uint32 {
	return uint32(m.Perm())
}
