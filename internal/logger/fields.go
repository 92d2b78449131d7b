package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. These keys are shared across
// the namespace graph, content store, snapshot/branch manager, handle
// manager, event bus, and control plane so log aggregation and querying
// stay consistent across the whole core.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Control-plane operation
	// ========================================================================
	KeyOperation = "operation"  // Control-plane/core operation name: Write, SnapshotCreate, etc.
	KeyRequestID = "request_id" // Control-plane request correlation id
	KeyStatus    = "status"     // Operation outcome code (fserrors.Code)
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Filesystem identity
	// ========================================================================
	KeyBranchID   = "branch_id"   // ids.BranchId of the branch an operation ran against
	KeySnapshotID = "snapshot_id" // ids.SnapshotId
	KeyNodeID     = "node_id"     // namespace.NodeId, process-lifetime-stable
	KeyHandleID   = "handle_id"   // ids.HandleId
	KeySubID      = "sub_id"      // ids.SubscriptionId, event bus subscriber
	KeyPID        = "pid"         // OS process id bound to a branch

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // Full file/directory path
	KeyFilename   = "filename"    // File or directory name (basename)
	KeyParentPath = "parent_path" // Parent directory path
	KeyOldPath    = "old_path"    // Source path for rename/move operations
	KeyNewPath    = "new_path"    // Destination path for rename/move operations
	KeyKind       = "kind"        // Node kind: file, dir, symlink, whiteout
	KeyStreamName = "stream_name" // Named data stream (ADS); "" is the default stream
	KeySize       = "size"        // File size in bytes
	KeyMode       = "mode"        // File mode/permissions (Unix-style)

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Identity / permissions
	// ========================================================================
	KeyUID = "uid" // User ID
	KeyGID = "gid" // Group ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // fserrors numeric code

	// ========================================================================
	// Content Store / Backstore
	// ========================================================================
	KeyChunkHash  = "chunk_hash"  // Content-addressed chunk hash
	KeyRefCount   = "ref_count"   // Chunk refcount after the operation
	KeySealCount  = "seal_count"  // Chunk seal count (snapshots keeping it alive)
	KeyBackstore  = "backstore"   // Backstore mode: in_memory, host_fs, ram_disk
	KeyDeviceID   = "device_id"   // Attached backstore device identifier
	KeyStoreBytes = "store_bytes" // Aggregate Content Store byte usage

	// ========================================================================
	// Directory Operations
	// ========================================================================
	KeyEntries = "entries" // Number of directory entries

	// ========================================================================
	// Link Operations
	// ========================================================================
	KeyLinkTarget = "link_target" // Symbolic link target path

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockType   = "lock_type"   // Lock type: read, write, exclusive
	KeyLockOffset = "lock_offset" // Lock range start
	KeyLockLength = "lock_length" // Lock range length
	KeyShareMode  = "share_mode"  // Requested/held share-mode bits

	// ========================================================================
	// Event Bus / Watchers
	// ========================================================================
	KeyEventKind  = "event_kind"  // EventKind: Created, Removed, Modified, Renamed, ...
	KeyQueueDepth = "queue_depth" // Dispatch queue depth at enqueue time
	KeyOverflow   = "overflow"    // Cumulative dispatch-queue overflow counter
	KeyWatchID    = "watch_id"    // kqueue/FSEvents registration identifier
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the core/control-plane operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// RequestID returns a slog.Attr for control-plane request correlation
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Status returns a slog.Attr for an operation outcome code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// BranchID returns a slog.Attr for a branch identifier
func BranchID(id string) slog.Attr {
	return slog.String(KeyBranchID, id)
}

// SnapshotID returns a slog.Attr for a snapshot identifier
func SnapshotID(id string) slog.Attr {
	return slog.String(KeySnapshotID, id)
}

// NodeID returns a slog.Attr for a namespace node identifier
func NodeID(id uint64) slog.Attr {
	return slog.Uint64(KeyNodeID, id)
}

// HandleID returns a slog.Attr for an open handle identifier
func HandleID(id string) slog.Attr {
	return slog.String(KeyHandleID, id)
}

// SubID returns a slog.Attr for an event bus subscription identifier
func SubID(id string) slog.Attr {
	return slog.String(KeySubID, id)
}

// PID returns a slog.Attr for an OS process id
func PID(pid uint64) slog.Attr {
	return slog.Uint64(KeyPID, pid)
}

// Path returns a slog.Attr for file/directory path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Filename returns a slog.Attr for filename (basename)
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// ParentPath returns a slog.Attr for parent directory path
func ParentPath(p string) slog.Attr {
	return slog.String(KeyParentPath, p)
}

// OldPath returns a slog.Attr for source path in rename/move operations
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for destination path in rename/move operations
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Kind returns a slog.Attr for a namespace node kind
func Kind(k string) slog.Attr {
	return slog.String(KeyKind, k)
}

// StreamName returns a slog.Attr for a named data stream
func StreamName(name string) slog.Attr {
	return slog.String(KeyStreamName, name)
}

// Size returns a slog.Attr for file size
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Mode returns a slog.Attr for file mode/permissions
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// Offset returns a slog.Attr for file offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Count returns a slog.Attr for byte count requested
func Count(c int) slog.Attr {
	return slog.Int(KeyCount, c)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// UID returns a slog.Attr for user ID
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// GID returns a slog.Attr for group ID
func GID(gid uint32) slog.Attr {
	return slog.Any(KeyGID, gid)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric fserrors code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// ChunkHash returns a slog.Attr for a content-addressed chunk hash
func ChunkHash(hash string) slog.Attr {
	return slog.String(KeyChunkHash, hash)
}

// RefCount returns a slog.Attr for a chunk's refcount
func RefCount(n int64) slog.Attr {
	return slog.Int64(KeyRefCount, n)
}

// SealCount returns a slog.Attr for a chunk's seal count
func SealCount(n int64) slog.Attr {
	return slog.Int64(KeySealCount, n)
}

// Backstore returns a slog.Attr for the backstore implementation name
func Backstore(name string) slog.Attr {
	return slog.String(KeyBackstore, name)
}

// DeviceID returns a slog.Attr for an attached backstore device identifier
func DeviceID(id string) slog.Attr {
	return slog.String(KeyDeviceID, id)
}

// StoreBytes returns a slog.Attr for aggregate Content Store byte usage
func StoreBytes(n uint64) slog.Attr {
	return slog.Uint64(KeyStoreBytes, n)
}

// Entries returns a slog.Attr for number of directory entries
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// LinkTarget returns a slog.Attr for symbolic link target path
func LinkTarget(target string) slog.Attr {
	return slog.String(KeyLinkTarget, target)
}

// LockType returns a slog.Attr for lock type
func LockType(t string) slog.Attr {
	return slog.String(KeyLockType, t)
}

// LockOffset returns a slog.Attr for lock range start
func LockOffset(off uint64) slog.Attr {
	return slog.Uint64(KeyLockOffset, off)
}

// LockLength returns a slog.Attr for lock range length
func LockLength(length uint64) slog.Attr {
	return slog.Uint64(KeyLockLength, length)
}

// ShareMode returns a slog.Attr for a requested/held share-mode bitmask
func ShareMode(mode uint32) slog.Attr {
	return slog.Any(KeyShareMode, mode)
}

// EventKind returns a slog.Attr for an event bus EventKind
func EventKind(kind string) slog.Attr {
	return slog.String(KeyEventKind, kind)
}

// QueueDepth returns a slog.Attr for dispatch queue depth at enqueue time
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// Overflow returns a slog.Attr for the cumulative dispatch-queue overflow counter
func Overflow(n uint64) slog.Attr {
	return slog.Uint64(KeyOverflow, n)
}

// WatchID returns a slog.Attr for a kqueue/FSEvents registration identifier
func WatchID(id string) slog.Attr {
	return slog.String(KeyWatchID, id)
}
