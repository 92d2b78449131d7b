package events

import (
	"testing"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/ids"
	"github.com/stretchr/testify/require"
)

func TestDrainEventsCoalescesBurstWrites(t *testing.T) {
	r := NewRegistry()
	r.RegisterKqueueWatch(ids.PID(1), 5, 42, "/f.txt", 0, false)

	r.Dispatch(Event{Kind: Modified, Path: "/f.txt"})
	r.Dispatch(Event{Kind: Modified, Path: "/f.txt"})
	r.Dispatch(Event{Kind: Modified, Path: "/f.txt"})

	out, err := r.DrainEvents(ids.PID(1), 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(42), out[0].Ident)
}

func TestDrainEventsUnknownWatchIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.DrainEvents(ids.PID(99), 1)
	require.Error(t, err)
	require.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))
}

func TestDirectoryWatchSeesChildEvents(t *testing.T) {
	r := NewRegistry()
	r.RegisterKqueueWatch(ids.PID(1), 5, 7, "/dir", 0, true)

	r.Dispatch(Event{Kind: Created, Path: "/dir/child.txt"})

	out, err := r.DrainEvents(ids.PID(1), 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestUnregisterStopsFurtherDispatch(t *testing.T) {
	r := NewRegistry()
	id := r.RegisterKqueueWatch(ids.PID(1), 5, 7, "/f.txt", 0, false)
	r.Unregister(id)

	r.Dispatch(Event{Kind: Modified, Path: "/f.txt"})
	_, err := r.DrainEvents(ids.PID(1), 5)
	require.Error(t, err)
}
