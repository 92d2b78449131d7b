package store

import (
	"context"
	"sync"

	"github.com/blocksense-network/agentfs/pkg/ids"
)

// MemoryStore is a Store backed by an in-process map, useful for tests and
// for running without a badger database directory.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]SnapshotRecord
	branches  map[string]BranchRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]SnapshotRecord),
		branches:  make(map[string]BranchRecord),
	}
}

func (s *MemoryStore) PutSnapshot(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[rec.ID] = rec
	return nil
}

func (s *MemoryStore) DeleteSnapshot(ctx context.Context, id ids.SnapshotId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id.String())
	return nil
}

func (s *MemoryStore) ListSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SnapshotRecord, 0, len(s.snapshots))
	for _, r := range s.snapshots {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) PutBranch(ctx context.Context, rec BranchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[rec.ID] = rec
	return nil
}

func (s *MemoryStore) ListBranches(ctx context.Context) ([]BranchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BranchRecord, 0, len(s.branches))
	for _, r := range s.branches {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
