package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blocksense-network/agentfs/pkg/config"
	"github.com/blocksense-network/agentfs/pkg/events"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/handle"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects Bus-dispatched events under a mutex -- Publish
// fans out through each subscriber's own goroutine (pkg/events.Bus), so a
// test observing them must not read the slice without synchronization.
type eventRecorder struct {
	mu   sync.Mutex
	got  []events.Event
}

func (r *eventRecorder) sink() events.Sink {
	return events.SinkFunc(func(e events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, e)
	})
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.got))
	copy(out, r.got)
	return out
}

func (r *eventRecorder) hasKind(k events.Kind) bool {
	for _, e := range r.snapshot() {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func newTestInstance(t *testing.T) (*Instance, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lower.txt"), []byte("hello"), 0o644))

	cfg := config.Default()
	inst, err := New(context.Background(), cfg, lower.NewHostFsProvider(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	return inst, dir
}

func TestOpenCreateWritePublishesEvents(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	inst.events.Subscribe(rec.sink())

	branch := inst.ResolveEffectiveBranch(1)
	h, err := inst.OpenInBranch(ctx, branch, "/new.txt", handle.OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)

	n, err := inst.Write(ctx, h, 0, []byte("data"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.NoError(t, inst.Close(ctx, h))

	require.Eventually(t, func() bool {
		return rec.hasKind(events.Created) && rec.hasKind(events.Modified)
	}, time.Second, 5*time.Millisecond)
}

func TestOpenReopenExistingDoesNotPublishCreated(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	h1, err := inst.OpenInBranch(ctx, branch, "/f.txt", handle.OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx, h1))

	rec := &eventRecorder{}
	inst.events.Subscribe(rec.sink())

	h2, err := inst.OpenInBranch(ctx, branch, "/f.txt", handle.OpenOptions{Create: true, Read: true}, 0o644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx, h2))

	// Give the dispatch goroutine a chance to run, then assert nothing
	// surfaced rather than waiting for a positive signal that never comes.
	time.Sleep(50 * time.Millisecond)
	require.False(t, rec.hasKind(events.Created))
}

func TestDeleteOnClosePublishesRemoved(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	h, err := inst.OpenInBranch(ctx, branch, "/gone.txt", handle.OpenOptions{Create: true, Write: true, DeleteOnClose: true}, 0o644, 0, 0)
	require.NoError(t, err)

	rec := &eventRecorder{}
	inst.events.Subscribe(rec.sink())

	require.NoError(t, inst.Close(ctx, h))

	require.Eventually(t, func() bool { return rec.hasKind(events.Removed) }, time.Second, 5*time.Millisecond)
}

func TestSnapshotAndBranchLifecyclePublishesEvents(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()

	rec := &eventRecorder{}
	inst.events.Subscribe(rec.sink())

	def := inst.ResolveEffectiveBranch(1)
	snap, err := inst.SnapshotCreate(ctx, def, "checkpoint")
	require.NoError(t, err)

	branch, err := inst.BranchCreateFromSnapshot(snap, "feature")
	require.NoError(t, err)

	require.NoError(t, inst.BindProcessToBranch(42, branch))
	require.Equal(t, branch, inst.ResolveEffectiveBranch(42))

	require.Eventually(t, func() bool {
		return rec.hasKind(events.SnapshotCreated) && rec.hasKind(events.BranchCreated) && rec.hasKind(events.BranchBound)
	}, time.Second, 5*time.Millisecond)
}

func TestRenameFollowsOpenHandleAndPublishesRenamed(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	h, err := inst.OpenInBranch(ctx, branch, "/old.txt", handle.OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, inst.Rename(ctx, branch, "/old.txt", "/renamed.txt"))

	_, err = inst.Write(ctx, h, 0, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx, h))

	attrs, err := inst.GetAttrs(ctx, branch, "/renamed.txt")
	require.NoError(t, err)
	require.EqualValues(t, 1, attrs.Size)
}

func TestUnlinkMissingReturnsNotFound(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	err := inst.Unlink(ctx, branch, "/missing.txt")
	require.Error(t, err)
	require.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))
}

func TestMkdirRmdirAndReadDir(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	require.NoError(t, inst.Mkdir(ctx, branch, "/newdir", 0o755, 0, 0))
	entries, err := inst.ReadDir(ctx, branch, "/")
	require.NoError(t, err)
	var sawNewDir bool
	for _, e := range entries {
		if e.Name == "newdir" {
			sawNewDir = true
		}
	}
	require.True(t, sawNewDir)

	require.NoError(t, inst.Rmdir(ctx, branch, "/newdir"))
}

func TestTruncatePathAndXattr(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()
	branch := inst.ResolveEffectiveBranch(1)

	h, err := inst.OpenInBranch(ctx, branch, "/t.txt", handle.OpenOptions{Create: true, Write: true}, 0o644, 0, 0)
	require.NoError(t, err)
	_, err = inst.Write(ctx, h, 0, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx, h))

	require.NoError(t, inst.TruncatePath(ctx, branch, "/t.txt", 4))
	attrs, err := inst.GetAttrs(ctx, branch, "/t.txt")
	require.NoError(t, err)
	require.EqualValues(t, 4, attrs.Size)

	require.NoError(t, inst.SetXattr(ctx, branch, "/t.txt", "user.note", []byte("v1")))
	v, err := inst.GetXattr(ctx, branch, "/t.txt", "user.note")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))
}

func TestContentStatsAndBackstoreMode(t *testing.T) {
	inst, _ := newTestInstance(t)
	ctx := context.Background()

	_, err := inst.ContentStats(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, inst.BackstoreMode().String())
}

func TestLowerWatchSurfacesOutOfBandEdit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lower.txt"), []byte("hello"), 0o644))

	cfg := config.Default()
	cfg.WatchLowerChanges = true
	inst, err := New(context.Background(), cfg, lower.NewHostFsProvider(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	require.NotNil(t, inst.lowerWatch)

	rec := &eventRecorder{}
	inst.events.Subscribe(rec.sink())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "external.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, e := range rec.snapshot() {
			if e.Path == "/external.txt" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

// emptyLowerProvider is a minimal lower.Provider that reports every path
// NotFound, used only to exercise the "not a *HostFsProvider" branch of
// watch_lower_changes wiring.
type emptyLowerProvider struct{}

func (emptyLowerProvider) Stat(context.Context, string) (lower.Stat, error) {
	return lower.Stat{}, fserrors.NotFoundf("empty provider")
}
func (emptyLowerProvider) OpenRO(context.Context, string) (lower.File, error) {
	return nil, fserrors.NotFoundf("empty provider")
}
func (emptyLowerProvider) ReadDir(context.Context, string) ([]lower.DirEntry, error) {
	return nil, nil
}
func (emptyLowerProvider) Readlink(context.Context, string) (string, error) {
	return "", fserrors.NotFoundf("empty provider")
}
func (emptyLowerProvider) GetXattr(context.Context, string, string) ([]byte, error) {
	return nil, fserrors.NotFoundf("empty provider")
}
func (emptyLowerProvider) ListXattr(context.Context, string) ([]string, error) { return nil, nil }
func (emptyLowerProvider) Statfs(context.Context, string) (lower.FsStat, error) {
	return lower.FsStat{}, nil
}

func TestWatchLowerChangesIgnoredForNonHostFsProvider(t *testing.T) {
	cfg := config.Default()
	cfg.WatchLowerChanges = true
	inst, err := New(context.Background(), cfg, emptyLowerProvider{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	require.Nil(t, inst.lowerWatch)
}
