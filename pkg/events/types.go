// Package events implements the Event Bus component of spec.md §4.7:
// a tagged EventKind union, per-subscriber bounded dispatch, and the
// watcher registry the interpose shim's kqueue/FSEvents adapters consult.
//
// Grounded on the teacher's pkg/flusher background worker (bounded queue,
// dedicated dispatch goroutine, drop-on-full with a recorded counter) and
// pkg/cache's metrics-counter pattern for the overflow count.
package events

import (
	"time"

	"github.com/blocksense-network/agentfs/pkg/ids"
)

// Kind tags the union spec.md §4.7 "Events" names.
type Kind int

const (
	Created Kind = iota
	Removed
	Modified
	Renamed
	SnapshotCreated
	BranchCreated
	BranchBound
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	case Renamed:
		return "renamed"
	case SnapshotCreated:
		return "snapshot_created"
	case BranchCreated:
		return "branch_created"
	case BranchBound:
		return "branch_bound"
	default:
		return "unknown"
	}
}

// Event is one occurrence on the Event Bus. Only the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind Kind
	Time time.Time

	// Created/Removed/Modified/Renamed(from)
	Path string
	// Renamed(to)
	ToPath string
	// Modified: whether the stream's size changed, spec.md §4.7 "Modified
	// carries whether size changed."
	SizeChanged bool

	BranchID   ids.BranchId
	SnapshotID ids.SnapshotId
}

// Sink receives dispatched events. Implementations must return quickly --
// a slow sink backs up only its own queue, never the publisher or other
// subscribers.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) HandleEvent(e Event) { f(e) }
