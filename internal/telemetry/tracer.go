package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared across AgentFS spans.
const (
	AttrBranch      = "agentfs.branch_id"
	AttrSnapshot     = "agentfs.snapshot_id"
	AttrHandleID     = "agentfs.handle_id"
	AttrPath         = "agentfs.path"
	AttrStream       = "agentfs.stream"
	AttrOp           = "agentfs.op"
	AttrOffset       = "agentfs.offset"
	AttrLength       = "agentfs.length"
	AttrUpper        = "agentfs.upper"
	AttrBackstoreMode = "agentfs.backstore_mode"
	AttrPid          = "agentfs.pid"
	AttrWatchID      = "agentfs.watch_id"
	AttrStatusCode   = "agentfs.status_code"
)

// Span names for control-plane operations and core filesystem events.
const (
	SpanControlPlaneRequest = "controlplane.request"

	SpanSnapshotCreate = "snapshot.create"
	SpanSnapshotDelete = "snapshot.delete"
	SpanBranchCreate   = "branch.create"
	SpanBranchBind     = "branch.bind"

	SpanNamespaceResolve = "namespace.resolve"
	SpanNamespaceCopyUp  = "namespace.copy_up"
	SpanNamespaceRename  = "namespace.rename"
	SpanNamespaceUnlink  = "namespace.unlink"

	SpanHandleOpen  = "handle.open"
	SpanHandleClose = "handle.close"
	SpanHandleRead  = "handle.read"
	SpanHandleWrite = "handle.write"
	SpanHandleLock  = "handle.lock"

	SpanEventPublish  = "events.publish"
	SpanEventDrain    = "events.drain"
	SpanInterposeOpen = "interpose.fd_open"
)

// Branch returns an attribute for a branch id.
func Branch(id string) attribute.KeyValue { return attribute.String(AttrBranch, id) }

// Snapshot returns an attribute for a snapshot id.
func Snapshot(id string) attribute.KeyValue { return attribute.String(AttrSnapshot, id) }

// HandleID returns an attribute for an open handle id.
func HandleID(id string) attribute.KeyValue { return attribute.String(AttrHandleID, id) }

// Path returns an attribute for a namespace path.
func Path(path string) attribute.KeyValue { return attribute.String(AttrPath, path) }

// Stream returns an attribute for an alternate data stream name.
func Stream(name string) attribute.KeyValue { return attribute.String(AttrStream, name) }

// Op returns an attribute naming a control-plane operation.
func Op(op string) attribute.KeyValue { return attribute.String(AttrOp, op) }

// Offset returns an attribute for an I/O offset.
func Offset(offset uint64) attribute.KeyValue { return attribute.Int64(AttrOffset, int64(offset)) }

// Length returns an attribute for an I/O length.
func Length(length uint64) attribute.KeyValue { return attribute.Int64(AttrLength, int64(length)) }

// Upper returns an attribute reporting whether a node resolved in the upper overlay.
func Upper(upper bool) attribute.KeyValue { return attribute.Bool(AttrUpper, upper) }

// BackstoreMode returns an attribute naming the active backstore mode.
func BackstoreMode(mode string) attribute.KeyValue { return attribute.String(AttrBackstoreMode, mode) }

// Pid returns an attribute for a process id.
func Pid(pid uint64) attribute.KeyValue { return attribute.Int64(AttrPid, int64(pid)) }

// WatchID returns an attribute for a watch registration id.
func WatchID(id uint64) attribute.KeyValue { return attribute.Int64(AttrWatchID, int64(id)) }

// StatusCode returns an attribute for a control-plane response's fserrors.Code.
func StatusCode(code int) attribute.KeyValue { return attribute.Int(AttrStatusCode, code) }

// StartControlPlaneSpan starts a span wrapping one dispatched control-plane
// request, tagged with the operation name.
func StartControlPlaneSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Op(op)}, attrs...)
	return StartSpan(ctx, SpanControlPlaneRequest, trace.WithAttributes(allAttrs...))
}

// StartNamespaceSpan starts a span for a namespace graph operation
// (resolve, copy-up, rename, unlink).
func StartNamespaceSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Path(path)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartHandleSpan starts a span for a handle/lock manager operation.
func StartHandleSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Path(path)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
