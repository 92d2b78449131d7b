package backstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// MemoryBackstore implements Backstore entirely in process memory. It is
// the default for Mode InMemory and never supports native reflink or
// native snapshots (there is no underlying volume manager to delegate to).
type MemoryBackstore struct {
	mu      sync.RWMutex
	objects map[StorageHandle][]byte
	next    atomic.Uint64
}

// NewMemoryBackstore creates an empty in-memory backstore.
func NewMemoryBackstore() *MemoryBackstore {
	return &MemoryBackstore{objects: make(map[StorageHandle][]byte)}
}

func (b *MemoryBackstore) Provision(context.Context) error { return nil }
func (b *MemoryBackstore) Teardown(context.Context) error  { return nil }

func (b *MemoryBackstore) AllocFile(context.Context) (StorageHandle, error) {
	h := StorageHandle(b.next.Add(1))
	b.mu.Lock()
	b.objects[h] = nil
	b.mu.Unlock()
	return h, nil
}

func (b *MemoryBackstore) Read(_ context.Context, h StorageHandle, p []byte, offset int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[h]
	if !ok {
		return 0, fserrors.New(fserrors.NotFound, "storage handle not allocated")
	}
	if offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(p, data[offset:])
	return n, nil
}

func (b *MemoryBackstore) Write(_ context.Context, h StorageHandle, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[h]
	if !ok {
		return 0, fserrors.New(fserrors.NotFound, "storage handle not allocated")
	}
	end := offset + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:end], p)
	b.objects[h] = data
	return len(p), nil
}

func (b *MemoryBackstore) Truncate(_ context.Context, h StorageHandle, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[h]
	if !ok {
		return fserrors.New(fserrors.NotFound, "storage handle not allocated")
	}
	if size <= int64(len(data)) {
		b.objects[h] = data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, data)
	b.objects[h] = grown
	return nil
}

func (b *MemoryBackstore) DeleteFile(_ context.Context, h StorageHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, h)
	return nil
}

func (b *MemoryBackstore) Reflink(_ context.Context, src, dst StorageHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[src]
	if !ok {
		return fserrors.New(fserrors.NotFound, "storage handle not allocated")
	}
	b.objects[dst] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackstore) SnapshotNative(context.Context, string) (NativeSnapshotToken, error) {
	return "", fserrors.New(fserrors.Unsupported, "in-memory backstore has no native snapshots")
}

func (b *MemoryBackstore) Capabilities() Capabilities {
	return Capabilities{SupportsNativeSnapshots: false, SupportsNativeReflink: false}
}

func (b *MemoryBackstore) Mode() Mode { return InMemory }
