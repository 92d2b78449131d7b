// Package memstore is the in-memory Content Store backend: the default
// used when the Backstore Manager (pkg/backstore) is configured for
// backstore.InMemory. It is grounded on the teacher's in-memory store
// idiom (pkg/metadata/store/memory) translated to chunk/refcount
// semantics instead of whole-file byte slices.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/blocksense-network/agentfs/pkg/bufpool"
	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

type chunkSlot struct {
	data     []byte
	refcount int32
	seals    int32
	hash     string
}

// refEntry is the per-ContentRef bookkeeping: the ordered list of chunk
// slot indices composing it, so a ContentRef's logical bytes can be
// reassembled and so Release/CloneCOW know exactly which slots to touch.
type refEntry struct {
	chunks []int64 // slot indices, one per chunkSize-sized (or shorter final) chunk
	length uint64
}

// Store is an in-memory, chunked, refcounted, content-addressed content
// store implementing content.Store.
type Store struct {
	cfg content.Config

	mu      sync.RWMutex
	slots   map[int64]*chunkSlot
	byHash  map[string][]int64 // best-effort dedup index: hash -> candidate slot indices
	nextID  atomic.Int64
	refs    map[content.ContentId]*refEntry
	nextRef atomic.Uint64
}

// New creates an empty in-memory content store.
func New(cfg content.Config) *Store {
	return &Store{
		cfg:    cfg,
		slots:  make(map[int64]*chunkSlot),
		byHash: make(map[string][]int64),
		refs:   make(map[content.ContentId]*refEntry),
	}
}

func (s *Store) chunkSize() int { return s.cfg.chunkSize() }

// allocSlot stores data as a brand-new chunk slot (refcount 1), attempting
// best-effort dedup against an existing slot with identical bytes first.
func (s *Store) allocSlot(data []byte) int64 {
	h := ""
	if len(data) > 0 {
		h = contentHash(data)
		for _, idx := range s.byHash[h] {
			slot := s.slots[idx]
			if slot != nil && bytesEqual(slot.data, data) {
				slot.refcount++
				return idx
			}
		}
	}
	id := s.nextID.Add(1)
	slot := &chunkSlot{data: append([]byte(nil), data...), refcount: 1, hash: h}
	s.slots[id] = slot
	if h != "" {
		s.byHash[h] = append(s.byHash[h], id)
	}
	return id
}

func (s *Store) retainSlot(idx int64) {
	if slot := s.slots[idx]; slot != nil {
		slot.refcount++
	}
}

func (s *Store) releaseSlot(idx int64) {
	slot := s.slots[idx]
	if slot == nil {
		return
	}
	slot.refcount--
	if slot.refcount <= 0 && slot.seals <= 0 {
		delete(s.slots, idx)
		if slot.hash != "" {
			s.removeFromHashIndex(slot.hash, idx)
		}
	}
}

func (s *Store) removeFromHashIndex(hash string, idx int64) {
	list := s.byHash[hash]
	for i, v := range list {
		if v == idx {
			s.byHash[hash] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byHash[hash]) == 0 {
		delete(s.byHash, hash)
	}
}

// Alloc implements content.Store.
func (s *Store) Alloc(_ context.Context, data []byte) (content.ContentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.newRefEntryFromData(data)
	id := content.ContentId(s.nextRef.Add(1))
	s.refs[id] = entry
	return content.ContentRef{ID: id, Len: entry.length}, nil
}

func (s *Store) newRefEntryFromData(data []byte) *refEntry {
	cs := s.chunkSize()
	entry := &refEntry{length: uint64(len(data))}
	for off := 0; off < len(data); off += cs {
		end := off + cs
		if end > len(data) {
			end = len(data)
		}
		entry.chunks = append(entry.chunks, s.allocSlot(data[off:end]))
	}
	return entry
}

// CloneCOW implements content.Store. It is O(1) in the number of chunks:
// every slot's refcount is bumped once, the slot bytes are never copied.
func (s *Store) CloneCOW(_ context.Context, ref content.ContentRef) (content.ContentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.refs[ref.ID]
	if !ok {
		return content.ContentRef{}, fserrors.NotFoundf("content ref %d", ref.ID)
	}
	clone := &refEntry{chunks: append([]int64(nil), src.chunks...), length: src.length}
	for _, idx := range clone.chunks {
		s.retainSlot(idx)
	}
	id := content.ContentId(s.nextRef.Add(1))
	s.refs[id] = clone
	return content.ContentRef{ID: id, Len: clone.length}, nil
}

// Read implements content.Store.
func (s *Store) Read(_ context.Context, ref content.ContentRef, offset, length uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.refs[ref.ID]
	if !ok {
		return nil, fserrors.NotFoundf("content ref %d", ref.ID)
	}
	if offset >= entry.length {
		return []byte{}, nil
	}
	if offset+length > entry.length {
		length = entry.length - offset
	}
	out := make([]byte, 0, length)
	cs := uint64(s.chunkSize())
	remaining := length
	pos := offset
	for remaining > 0 {
		chunkIdx := pos / cs
		inChunk := pos % cs
		if int(chunkIdx) >= len(entry.chunks) {
			break
		}
		slot := s.slots[entry.chunks[chunkIdx]]
		if slot == nil {
			return nil, fserrors.New(fserrors.StorageCorrupt, "missing chunk slot")
		}
		avail := uint64(len(slot.data)) - inChunk
		if avail > remaining {
			avail = remaining
		}
		out = append(out, slot.data[inChunk:inChunk+avail]...)
		pos += avail
		remaining -= avail
	}
	return out, nil
}

// Write implements content.Store.
func (s *Store) Write(_ context.Context, ref content.ContentRef, offset uint64, data []byte) (content.ContentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.refs[ref.ID]
	if !ok {
		return content.ContentRef{}, fserrors.NotFoundf("content ref %d", ref.ID)
	}

	newLen := entry.length
	if end := offset + uint64(len(data)); end > newLen {
		newLen = end
	}

	cs := uint64(s.chunkSize())
	numChunks := int((newLen + cs - 1) / cs)
	if newLen == 0 {
		numChunks = 0
	}
	newChunks := make([]int64, numChunks)

	for i := 0; i < numChunks; i++ {
		chunkStart := uint64(i) * cs
		chunkEnd := chunkStart + cs
		if chunkEnd > newLen {
			chunkEnd = newLen
		}
		writeStart := maxU64(chunkStart, offset)
		writeEnd := minU64(chunkEnd, offset+uint64(len(data)))

		if writeStart >= writeEnd {
			// Chunk untouched by this write: keep sharing the existing slot.
			if i < len(entry.chunks) {
				newChunks[i] = entry.chunks[i]
				s.retainSlot(entry.chunks[i])
			} else {
				zeros := bufpool.Get(int(chunkEnd - chunkStart))
				clear(zeros)
				newChunks[i] = s.allocSlot(zeros)
				bufpool.Put(zeros)
			}
			continue
		}

		// This chunk is touched: materialize its full current bytes, apply
		// the write, and allocate a fresh slot so sibling refs sharing the
		// original slot are unaffected (the CoW guarantee). buf is pure
		// scratch -- allocSlot copies it into the slot's own storage -- so
		// it comes from the shared pool instead of a fresh make() per write.
		buf := bufpool.Get(int(chunkEnd - chunkStart))
		if i < len(entry.chunks) {
			if old := s.slots[entry.chunks[i]]; old != nil {
				copy(buf, old.data)
			}
		} else {
			clear(buf)
		}
		copy(buf[writeStart-chunkStart:], data[writeStart-offset:writeEnd-offset])
		newChunks[i] = s.allocSlot(buf)
		bufpool.Put(buf)
	}

	// Release old slots no longer referenced by this ref (every chunk was
	// either retained above or replaced; releasing here drops this ref's
	// hold on the ones that were replaced).
	for i, oldIdx := range entry.chunks {
		if i >= len(newChunks) || newChunks[i] != oldIdx {
			s.releaseSlot(oldIdx)
		}
	}

	entry.chunks = newChunks
	entry.length = newLen
	return content.ContentRef{ID: ref.ID, Len: newLen}, nil
}

// Truncate implements content.Store.
func (s *Store) Truncate(ctx context.Context, ref content.ContentRef, newLen uint64) (content.ContentRef, error) {
	s.mu.Lock()
	entry, ok := s.refs[ref.ID]
	s.mu.Unlock()
	if !ok {
		return content.ContentRef{}, fserrors.NotFoundf("content ref %d", ref.ID)
	}

	if newLen <= entry.length {
		s.mu.Lock()
		defer s.mu.Unlock()
		cs := uint64(s.chunkSize())
		keep := int((newLen + cs - 1) / cs)
		if newLen == 0 {
			keep = 0
		}
		for _, idx := range entry.chunks[keep:] {
			s.releaseSlot(idx)
		}
		if keep < len(entry.chunks) && newLen > 0 {
			// Last retained chunk may need trimming to the new boundary.
			lastIdx := keep - 1
			boundary := newLen - uint64(lastIdx)*cs
			if slot := s.slots[entry.chunks[lastIdx]]; slot != nil && uint64(len(slot.data)) > boundary {
				trimmed := append([]byte(nil), slot.data[:boundary]...)
				s.releaseSlot(entry.chunks[lastIdx])
				entry.chunks[lastIdx] = s.allocSlot(trimmed)
			}
		}
		entry.chunks = append([]int64(nil), entry.chunks[:keep]...)
		entry.length = newLen
		return content.ContentRef{ID: ref.ID, Len: newLen}, nil
	}

	// Growing: delegate to Write with an all-zero tail so the straddling
	// chunk is materialized exactly once.
	zeros := make([]byte, newLen-entry.length)
	return s.Write(ctx, ref, entry.length, zeros)
}

// Seal implements content.Store.
func (s *Store) Seal(_ context.Context, ref content.ContentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refs[ref.ID]
	if !ok {
		return fserrors.NotFoundf("content ref %d", ref.ID)
	}
	for _, idx := range entry.chunks {
		if slot := s.slots[idx]; slot != nil {
			slot.seals++
		}
	}
	return nil
}

// Release implements content.Store.
func (s *Store) Release(_ context.Context, ref content.ContentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refs[ref.ID]
	if !ok {
		return nil // idempotent: already released
	}
	for _, idx := range entry.chunks {
		s.releaseSlot(idx)
	}
	delete(s.refs, ref.ID)
	return nil
}

// Stats implements content.Store.
func (s *Store) Stats(_ context.Context) (content.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats content.StorageStats
	stats.UniqueChunks = uint64(len(s.slots))
	for _, slot := range s.slots {
		stats.TotalPhysical += uint64(len(slot.data))
		stats.RefcountedRefs += uint64(slot.refcount)
	}
	for _, entry := range s.refs {
		stats.TotalLogical += entry.length
		stats.ChunkCount += uint64(len(entry.chunks))
	}
	return stats, nil
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
