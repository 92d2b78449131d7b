// Package core wires the seven components spec.md §2 names into one running
// AgentFS filesystem: Content Store, Backstore Manager, Lower Provider,
// Namespace Graph, Snapshot & Branch Manager, Handle & Lock Manager, and the
// Event Bus + watcher registry sitting above all of them. It is the single
// type the control plane (pkg/controlplane) and any future adapter host
// (FUSE/WinFsp/FSKit, out of scope here) drive.
//
// Grounded on the teacher's top-level wiring in cmd/dittofs/main.go: one
// constructor taking a validated config and handing back a struct that owns
// every subsystem's lifecycle, rather than each subsystem reaching for
// globals.
package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/backstore"
	"github.com/blocksense-network/agentfs/pkg/config"
	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/content/memstore"
	"github.com/blocksense-network/agentfs/pkg/events"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/handle"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/blocksense-network/agentfs/pkg/namespace"
	"github.com/blocksense-network/agentfs/pkg/snapshot"
)

// Instance is one fully wired AgentFS filesystem core.
type Instance struct {
	cfg *config.FsConfig

	backstore *backstore.Manager
	content   content.Store
	lowerP    lower.Provider
	graph     *namespace.Graph
	snapshots *snapshot.Manager
	handles   *handle.Manager
	events    *events.Bus
	watches   *events.Registry

	// interpose holds the live FD-forwarding policy (spec.md §4.6, §6
	// `interpose {...}`), swappable at runtime via SetInterpose so the
	// control plane's InterposeSet op takes effect without a restart.
	interpose atomic.Pointer[config.InterposeConfig]

	// lowerWatch is the optional out-of-band change watcher (cfg
	// .WatchLowerChanges); nil unless wired in New.
	lowerWatch       *lower.ChangeWatcher
	lowerWatchCancel context.CancelFunc
}

// New wires every component from cfg, over lowerP -- the read-only adapter
// for the real filesystem this instance overlays. Callers construct lowerP
// themselves (e.g. lower.NewHostFsProvider(root)); per spec.md §9 "the core
// owns no ambient global provider," New never reaches for one implicitly.
func New(ctx context.Context, cfg *config.FsConfig, lowerP lower.Provider) (*Instance, error) {
	bsMgr, err := backstore.NewManager(ctx, cfg.BackstoreManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("core: backstore: %w", err)
	}

	store := memstore.New(content.Config{})
	graph := namespace.New(store, lowerP, cfg.NamespaceConfig())
	snapMgr := snapshot.NewManager(graph, store)
	handleMgr := handle.NewManager(graph, snapMgr, cfg.HandleConfig())

	var bus *events.Bus
	if cfg.TrackEvents {
		bus = events.NewBus(events.BusConfig{})
	}

	inst := &Instance{
		cfg: cfg, backstore: bsMgr, content: store, lowerP: lowerP,
		graph: graph, snapshots: snapMgr, handles: handleMgr,
		events: bus, watches: events.NewRegistry(),
	}
	if bus != nil {
		bus.Subscribe(events.SinkFunc(inst.watches.Dispatch))
	}
	interpose := cfg.Interpose
	inst.interpose.Store(&interpose)

	if cfg.WatchLowerChanges {
		if hostLower, ok := lowerP.(*lower.HostFsProvider); ok {
			if err := inst.startLowerWatch(ctx, hostLower); err != nil {
				logger.WarnCtx(ctx, "lower change watcher failed to start", logger.Operation("Start"), logger.Err(err))
			}
		} else {
			logger.WarnCtx(ctx, "watch_lower_changes set but Lower Provider is not host-fs backed; ignoring", logger.Operation("Start"))
		}
	}

	logger.InfoCtx(ctx, "agentfs instance started", logger.Operation("Start"),
		logger.Backstore(cfg.Backstore.Mode))
	return inst, nil
}

// startLowerWatch starts an fsnotify watch over hostLower's root and relays
// every out-of-band change on the bus -- a Removed event for a delete or
// rename-away, a Modified event for anything else (creations included) --
// BranchID left as the zero value since a lower-filesystem change is
// visible to every branch whose view of that path is not yet upper-
// materialized, not to one branch specifically.
func (i *Instance) startLowerWatch(ctx context.Context, hostLower *lower.HostFsProvider) error {
	cw, err := lower.NewChangeWatcher(hostLower.Root())
	if err != nil {
		return err
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	i.lowerWatch, i.lowerWatchCancel = cw, cancel

	go cw.Run(watchCtx, func(ev lower.ChangeEvent) {
		kind := events.Modified
		if ev.Removed {
			kind = events.Removed
		}
		i.publish(events.Event{Kind: kind, Path: ev.Path, SizeChanged: !ev.IsDir})
	})
	return nil
}

// Shutdown tears down the backstore's acquired resources and, if running,
// stops the lower-filesystem change watcher. The event bus's subscriber
// goroutines are daemon-lived for the process and are not stopped here,
// matching the teacher's pattern of leaving background dispatch running
// until process exit.
func (i *Instance) Shutdown(ctx context.Context) error {
	if i.lowerWatchCancel != nil {
		i.lowerWatchCancel()
	}
	if i.lowerWatch != nil {
		_ = i.lowerWatch.Close()
	}
	return i.backstore.Close(ctx)
}

func (i *Instance) publish(e events.Event) {
	if i.events == nil {
		return
	}
	i.events.Publish(e)
}

// Watches returns the watcher registry the control plane's register/drain
// operations address directly.
func (i *Instance) Watches() *events.Registry { return i.watches }

// ContentStats exposes the Content Store's aggregate usage for the HTTP
// admin surface's GET /v1/content/stats.
func (i *Instance) ContentStats(ctx context.Context) (content.StorageStats, error) {
	return i.content.Stats(ctx)
}

// BackstoreCapabilities reports the configured backstore's optional feature
// support.
func (i *Instance) BackstoreCapabilities() backstore.Capabilities {
	return i.backstore.Backstore().Capabilities()
}

// BackstoreMode reports the configured backstore's mode.
func (i *Instance) BackstoreMode() backstore.Mode {
	return i.backstore.Backstore().Mode()
}

// ResolveEffectiveBranch implements spec.md §4.5's per-process branch
// binding lookup.
func (i *Instance) ResolveEffectiveBranch(pid ids.PID) ids.BranchId {
	return i.snapshots.ResolveEffectiveBranch(pid)
}

// DefaultBranch returns the branch every unbound process resolves to.
func (i *Instance) DefaultBranch() ids.BranchId {
	return i.snapshots.DefaultBranch()
}

// BindProcessToBranch binds pid to branch and publishes a BranchBound event.
func (i *Instance) BindProcessToBranch(pid ids.PID, branch ids.BranchId) error {
	if err := i.snapshots.BindProcessToBranch(pid, branch); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.BranchBound, BranchID: branch})
	return nil
}

// SnapshotCreate seals branch's current tree and publishes a
// SnapshotCreated event.
func (i *Instance) SnapshotCreate(ctx context.Context, branch ids.BranchId, label string) (ids.SnapshotId, error) {
	snap, err := i.snapshots.SnapshotCreate(ctx, branch, label)
	if err != nil {
		return ids.SnapshotId{}, err
	}
	i.publish(events.Event{Kind: events.SnapshotCreated, BranchID: branch, SnapshotID: snap})
	return snap, nil
}

// SnapshotList returns every live snapshot.
func (i *Instance) SnapshotList() []snapshot.SnapshotInfo { return i.snapshots.SnapshotList() }

// BranchList returns every live branch and its bound pids.
func (i *Instance) BranchList() []snapshot.BranchInfo { return i.snapshots.BranchList() }

// SnapshotDelete releases a snapshot.
func (i *Instance) SnapshotDelete(ctx context.Context, id ids.SnapshotId) error {
	return i.snapshots.SnapshotDelete(ctx, id)
}

// BranchCreateFromSnapshot creates a branch and publishes a BranchCreated
// event.
func (i *Instance) BranchCreateFromSnapshot(snap ids.SnapshotId, label string) (ids.BranchId, error) {
	b, err := i.snapshots.BranchCreateFromSnapshot(snap, label)
	if err != nil {
		return ids.BranchId{}, err
	}
	i.publish(events.Event{Kind: events.BranchCreated, BranchID: b, SnapshotID: snap})
	return b, nil
}

// BranchCreateFromCurrent creates a branch off parent's live tree and
// publishes a BranchCreated event.
func (i *Instance) BranchCreateFromCurrent(ctx context.Context, parent ids.BranchId, label string) (ids.BranchId, error) {
	b, err := i.snapshots.BranchCreateFromCurrent(ctx, parent, label)
	if err != nil {
		return ids.BranchId{}, err
	}
	i.publish(events.Event{Kind: events.BranchCreated, BranchID: b})
	return b, nil
}

func (i *Instance) root(branch ids.BranchId) (*namespace.Root, error) {
	return i.snapshots.BranchRoot(branch)
}

// nodeExists reports whether path currently resolves in branch, used to
// tell a fresh Create from a reopen of an existing path so Open only
// publishes Created on the former.
func (i *Instance) nodeExists(ctx context.Context, branch ids.BranchId, path string) bool {
	root, err := i.root(branch)
	if err != nil {
		return false
	}
	_, err = i.graph.Resolve(ctx, root, path)
	return err == nil
}

// Open implements spec.md §4.6's open/create against pid's effective
// branch, publishing Created when opts.Create materializes a new node.
func (i *Instance) Open(ctx context.Context, pid ids.PID, path string, opts handle.OpenOptions, mode, uid, gid uint32) (ids.HandleId, error) {
	return i.OpenInBranch(ctx, i.ResolveEffectiveBranch(pid), path, opts, mode, uid, gid)
}

// OpenInBranch is Open against an explicitly named branch, used by the
// control plane's FdOpen (the interpose shim already resolved the calling
// process's effective branch before forwarding the request).
func (i *Instance) OpenInBranch(ctx context.Context, branch ids.BranchId, path string, opts handle.OpenOptions, mode, uid, gid uint32) (ids.HandleId, error) {
	isNew := opts.Create && !i.nodeExists(ctx, branch, path)

	h, err := i.handles.Open(ctx, branch, path, opts, mode, uid, gid)
	if err != nil {
		return ids.HandleId{}, err
	}
	if isNew {
		i.publish(events.Event{Kind: events.Created, Path: path, BranchID: branch})
	}
	return h, nil
}

// Close closes a handle, publishing Removed if it was a delete-on-close
// handle whose last reference just dropped (detected by the node's
// disappearance, since handle.Manager does not expose its internal deferred-
// delete bookkeeping).
func (i *Instance) Close(ctx context.Context, h ids.HandleId) error {
	branch, path, infoErr := i.handles.Info(h)

	existedBefore := infoErr == nil && i.nodeExists(ctx, branch, path)
	if err := i.handles.Close(ctx, h); err != nil {
		return err
	}
	if infoErr == nil && existedBefore && !i.nodeExists(ctx, branch, path) {
		i.publish(events.Event{Kind: events.Removed, Path: path, BranchID: branch})
	}
	return nil
}

// Read reads through an open handle.
func (i *Instance) Read(ctx context.Context, h ids.HandleId, offset, length uint64) ([]byte, error) {
	return i.handles.Read(ctx, h, offset, length)
}

// Write writes through an open handle and publishes Modified.
func (i *Instance) Write(ctx context.Context, h ids.HandleId, offset uint64, data []byte) (int, error) {
	branch, path, infoErr := i.handles.Info(h)
	n, err := i.handles.Write(ctx, h, offset, data)
	if err != nil {
		return 0, err
	}
	if infoErr == nil {
		i.publish(events.Event{Kind: events.Modified, Path: path, BranchID: branch, SizeChanged: n > 0})
	}
	return n, nil
}

// Truncate resizes a handle's default stream and publishes Modified.
func (i *Instance) Truncate(ctx context.Context, h ids.HandleId, newLen uint64) error {
	branch, path, infoErr := i.handles.Info(h)
	if err := i.handles.Truncate(ctx, h, newLen); err != nil {
		return err
	}
	if infoErr == nil {
		i.publish(events.Event{Kind: events.Modified, Path: path, BranchID: branch, SizeChanged: true})
	}
	return nil
}

// Lock acquires a byte-range lock.
func (i *Instance) Lock(h ids.HandleId, offset, length uint64, kind handle.LockKind) error {
	return i.handles.Lock(h, offset, length, kind)
}

// Unlock releases a byte-range lock.
func (i *Instance) Unlock(h ids.HandleId, offset, length uint64) error {
	return i.handles.Unlock(h, offset, length)
}

// Rename renames src to dst within branch, following any open handles, and
// publishes Renamed.
func (i *Instance) Rename(ctx context.Context, branch ids.BranchId, src, dst string) error {
	if err := i.handles.Rename(ctx, branch, src, dst); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Renamed, Path: src, ToPath: dst, BranchID: branch})
	return nil
}

// Unlink removes path within branch directly (no open handle required --
// the interpose shim's path-based unlink and control-plane PathOp use
// this), publishing Removed.
func (i *Instance) Unlink(ctx context.Context, branch ids.BranchId, path string) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	if err := i.graph.Unlink(ctx, root, path); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Removed, Path: path, BranchID: branch})
	return nil
}

// Mkdir creates a directory within branch.
func (i *Instance) Mkdir(ctx context.Context, branch ids.BranchId, path string, mode, uid, gid uint32) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	_, err = i.graph.Create(ctx, root, path, namespace.KindDir, mode, uid, gid, true)
	if err == nil {
		i.publish(events.Event{Kind: events.Created, Path: path, BranchID: branch})
	}
	return err
}

// Rmdir removes an empty directory within branch.
func (i *Instance) Rmdir(ctx context.Context, branch ids.BranchId, path string) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	if err := i.graph.Rmdir(ctx, root, path); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Removed, Path: path, BranchID: branch})
	return nil
}

// Symlink creates a symlink within branch.
func (i *Instance) Symlink(ctx context.Context, branch ids.BranchId, path, target string, uid, gid uint32) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	_, err = i.graph.Symlink(ctx, root, path, target, uid, gid)
	if err == nil {
		i.publish(events.Event{Kind: events.Created, Path: path, BranchID: branch})
	}
	return err
}

// GetAttrs resolves path's attributes within branch.
func (i *Instance) GetAttrs(ctx context.Context, branch ids.BranchId, path string) (namespace.Attrs, error) {
	root, err := i.root(branch)
	if err != nil {
		return namespace.Attrs{}, err
	}
	return i.graph.GetAttrs(ctx, root, path)
}

// GetAttrsFollow resolves path's attributes within branch, dereferencing a
// leaf symlink first (stat/fstat semantics, as opposed to GetAttrs's lstat).
func (i *Instance) GetAttrsFollow(ctx context.Context, branch ids.BranchId, path string) (namespace.Attrs, error) {
	root, err := i.root(branch)
	if err != nil {
		return namespace.Attrs{}, err
	}
	return i.graph.GetAttrsFollow(ctx, root, path)
}

// SetAttrs applies a metadata-only change within branch.
func (i *Instance) SetAttrs(ctx context.Context, branch ids.BranchId, path string, apply func(*namespace.Metadata)) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	if err := i.graph.SetAttrs(ctx, root, path, apply); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Modified, Path: path, BranchID: branch})
	return nil
}

// TruncatePath resizes path's default stream directly by name, without
// requiring an open handle -- the control plane's path-based Truncate op
// (the interpose shim's truncate(2) passthrough, as opposed to ftruncate
// through an already-open fd).
func (i *Instance) TruncatePath(ctx context.Context, branch ids.BranchId, path string, newLen uint64) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	if err := i.graph.Truncate(ctx, root, path, newLen); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Modified, Path: path, BranchID: branch, SizeChanged: true})
	return nil
}

// GetXattr reads one extended attribute by path.
func (i *Instance) GetXattr(ctx context.Context, branch ids.BranchId, path, name string) ([]byte, error) {
	root, err := i.root(branch)
	if err != nil {
		return nil, err
	}
	return i.graph.GetXattr(ctx, root, path, name)
}

// SetXattr writes one extended attribute by path, publishing Modified.
func (i *Instance) SetXattr(ctx context.Context, branch ids.BranchId, path, name string, value []byte) error {
	root, err := i.root(branch)
	if err != nil {
		return err
	}
	if err := i.graph.SetXattr(ctx, root, path, name, value); err != nil {
		return err
	}
	i.publish(events.Event{Kind: events.Modified, Path: path, BranchID: branch})
	return nil
}

// ReadDir lists path's merged directory contents within branch.
func (i *Instance) ReadDir(ctx context.Context, branch ids.BranchId, path string) ([]namespace.DirEntry, error) {
	root, err := i.root(branch)
	if err != nil {
		return nil, err
	}
	return i.graph.ReadDir(ctx, root, path)
}

// Policy returns the live share-mode/permission admission policy.
func (i *Instance) Policy() handle.Config { return i.handles.Config() }

// SetPolicy swaps the share-mode/permission admission policy at runtime,
// the control plane's PolicySet operation (spec.md §4.7) taking effect
// without a restart.
func (i *Instance) SetPolicy(cfg handle.Config) { i.handles.SetConfig(cfg) }

// Interpose returns the live FD-forwarding policy (spec.md §6 `interpose`).
func (i *Instance) Interpose() config.InterposeConfig { return *i.interpose.Load() }

// SetInterpose swaps the FD-forwarding policy at runtime, the control
// plane's InterposeSet operation.
func (i *Instance) SetInterpose(cfg config.InterposeConfig) { i.interpose.Store(&cfg) }

// FdOpenResult is the outcome of an interpose fd_open request.
type FdOpenResult struct {
	Handle ids.HandleId
	// LowerPath is the Lower Provider path backing a read-only handle that
	// was never copied up; set only when Upper is false.
	LowerPath string
	// Upper reports whether the handle's data lives in the upper overlay.
	Upper bool
}

// FdOpen implements spec.md §4.6's "File-descriptor forwarding (interpose
// mode)" decision tree:
//
//  1. Read-only opens of a path that resolves purely in Lower never touch
//     the upper overlay -- the shim is told to hand back a lower-backed OS
//     handle and no upper state is created.
//  2. Any writeable open (or an already-upper path) ensures upper presence
//     through the normal copy-up path, but only after the interpose policy
//     clears it: `forwarding: disabled` always declines; `require_reflink`
//     declines unless the backstore reports native reflink support; and a
//     source larger than `max_copy_bytes` declines rather than performing
//     an unbounded fallback copy.
//
// Declining returns fserrors.ForwardingUnavailable, the signal spec.md §4.6
// and §7 document as "caller falls back to the mounted-volume path."
func (i *Instance) FdOpen(ctx context.Context, branch ids.BranchId, path string, opts handle.OpenOptions, uid, gid uint32) (FdOpenResult, error) {
	policy := i.Interpose()
	if policy.Forwarding == "disabled" {
		return FdOpenResult{}, fserrors.New(fserrors.ForwardingUnavailable, "fd forwarding disabled by policy")
	}

	wantsWrite := opts.Write || opts.Create || opts.Truncate || opts.Append

	if !wantsWrite {
		root, err := i.root(branch)
		if err != nil {
			return FdOpenResult{}, err
		}
		entry, err := i.graph.ResolveFollow(ctx, root, path)
		if err != nil {
			return FdOpenResult{}, err
		}
		if entry.IsLower {
			h, err := i.OpenInBranch(ctx, branch, path, opts, 0o644, uid, gid)
			if err != nil {
				return FdOpenResult{}, err
			}
			return FdOpenResult{Handle: h, LowerPath: entry.LowerPath, Upper: false}, nil
		}
	}

	if policy.RequireReflink && !i.BackstoreCapabilities().SupportsNativeReflink {
		return FdOpenResult{}, fserrors.New(fserrors.ForwardingUnavailable, "backstore does not support reflink and policy requires it")
	}
	if wantsWrite && !opts.Create && !opts.CreateNew {
		if attrs, err := i.GetAttrs(ctx, branch, path); err == nil && attrs.Size > policy.MaxCopyBytes.Uint64() {
			return FdOpenResult{}, fserrors.New(fserrors.ForwardingUnavailable, "source exceeds interpose.max_copy_bytes bounded-copy limit")
		}
	}
	if wantsWrite {
		root, err := i.root(branch)
		if err != nil {
			return FdOpenResult{}, err
		}
		if e, rerr := i.graph.Resolve(ctx, root, path); rerr == nil && e.IsLower {
			// A no-op SetAttrs runs the graph's copy-up, so the handle
			// below is opened on an upper node.
			if err := i.graph.SetAttrs(ctx, root, path, func(*namespace.Metadata) {}); err != nil {
				return FdOpenResult{}, err
			}
		}
	}

	h, err := i.OpenInBranch(ctx, branch, path, opts, 0o644, uid, gid)
	if err != nil {
		return FdOpenResult{}, err
	}
	return FdOpenResult{Handle: h, Upper: true}, nil
}

// Statfs reports filesystem-level statistics, delegating to the Lower
// Provider for the boundary rooted at "/" -- the only statfs target the
// control plane's per-branch StatfsReq names.
func (i *Instance) Statfs(ctx context.Context, path string) (lower.FsStat, error) {
	st, err := i.lowerP.Statfs(ctx, path)
	if err != nil {
		return lower.FsStat{}, fserrors.New(fserrors.Unsupported, "statfs: "+err.Error())
	}
	return st, nil
}
