package namespace

import (
	"context"
	"time"

	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// paddedData prepends offset zero bytes to data, for the first write to a
// stream that has no ContentRef yet: the Content Store has nothing to
// extend, so the leading hole has to be materialized explicitly.
func paddedData(offset uint64, data []byte) []byte {
	if offset == 0 {
		return data
	}
	buf := make([]byte, offset+uint64(len(data)))
	copy(buf[offset:], data)
	return buf
}

// Create materializes a new File, Dir or Symlink at path. With exclusive set
// (O_CREAT|O_EXCL) an existing path fails with AlreadyExists. Without it, an
// existing upper entry's id is returned unchanged and a lower-only entry is
// copied up with its content; a missing or whiteout-hidden path gets a fresh
// node.
func (g *Graph) Create(ctx context.Context, root *Root, path string, kind Kind, mode, uid, gid uint32, exclusive bool) (NodeId, error) {
	e, err := g.Resolve(ctx, root, path)
	if err == nil {
		if exclusive {
			return 0, fserrors.AlreadyExistsf("%s", path)
		}
		if !e.IsLower {
			return e.NodeID, nil
		}
		return g.ensureUpperFor(ctx, root, path)
	}

	now := time.Now()
	node := &Node{
		Kind: kind, Origin: OriginUpper,
		Meta: Metadata{Mode: mode, UID: uid, GID: gid, Xattrs: map[string][]byte{},
			Times: Times{Atime: now, Mtime: now, Ctime: now, Birthtime: now}},
	}
	switch kind {
	case KindFile:
		node.Streams = map[string]Stream{}
	case KindDir:
		node.Children = map[string]NodeId{}
	}

	return g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		return g.alloc(node), nil
	})
}

// Write performs the copy-up-then-mutate protocol for a data write: ensure
// upper presence, then apply the write to the named stream, allocating a
// fresh ContentRef when the existing one is shared (CoW is enforced inside
// content.Store.Write itself; this layer just rebinds the node's Stream to
// whatever ref Write returns).
func (g *Graph) Write(ctx context.Context, root *Root, path, stream string, offset uint64, data []byte) (int, error) {
	if _, err := g.ensureUpperFor(ctx, root, path); err != nil {
		return 0, err
	}

	_, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		_, id, ok := g.lookupChild(parent, name)
		if !ok {
			return 0, fserrors.NotFoundf("%s", path)
		}
		existing := g.get(id)
		if existing == nil || existing.Kind != KindFile {
			return 0, fserrors.New(fserrors.BadRequest, "not a file")
		}
		n := existing.clone()
		old, hadStream := n.Streams[stream]
		var newRef content.ContentRef
		var werr error
		if !hadStream {
			// A stream with no ContentRef yet (brand-new file, or a named
			// stream never written before) has nothing to Write into.
			newRef, werr = g.content.Alloc(ctx, paddedData(offset, data))
		} else {
			newRef, werr = g.content.Write(ctx, old.Ref, offset, data)
		}
		if werr != nil {
			return 0, werr
		}
		if n.Streams == nil {
			n.Streams = map[string]Stream{}
		}
		n.Streams[stream] = Stream{Ref: newRef}
		n.Origin = OriginUpper
		n.Meta.Times.Mtime = time.Now()
		n.Meta.Times.Ctime = n.Meta.Times.Mtime
		return g.alloc(n), nil
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Read returns up to length bytes at offset from path's named stream. It
// never copies up: a materialized File is served from the Content Store,
// and an entry still only in lower space is served directly from the Lower
// Provider, matching Write's stream addressing without its mutation.
func (g *Graph) Read(ctx context.Context, root *Root, path, stream string, offset, length uint64) ([]byte, error) {
	e, err := g.ResolveFollow(ctx, root, path)
	if err != nil {
		return nil, err
	}
	if e.IsLower {
		if stream != DefaultStream {
			return nil, fserrors.New(fserrors.Unsupported, "named streams are not served from lower")
		}
		f, err := g.lowerP.OpenRO(ctx, e.LowerPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf := make([]byte, length)
		n, err := f.ReadAt(buf, int64(offset))
		if err != nil && n == 0 {
			return nil, err
		}
		return buf[:n], nil
	}

	n := g.get(e.NodeID)
	if n == nil || n.Kind != KindFile {
		return nil, fserrors.New(fserrors.BadRequest, "not a file")
	}
	s, ok := n.Streams[stream]
	if !ok {
		return nil, nil
	}
	return g.content.Read(ctx, s.Ref, offset, length)
}

// Truncate sets the default stream's length, copying up first if needed.
func (g *Graph) Truncate(ctx context.Context, root *Root, path string, newLen uint64) error {
	if _, err := g.ensureUpperFor(ctx, root, path); err != nil {
		return err
	}
	_, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		_, id, ok := g.lookupChild(parent, name)
		if !ok {
			return 0, fserrors.NotFoundf("%s", path)
		}
		existing := g.get(id)
		if existing == nil || existing.Kind != KindFile {
			return 0, fserrors.New(fserrors.BadRequest, "not a file")
		}
		n := existing.clone()
		old, hadStream := n.Streams[DefaultStream]
		var newRef content.ContentRef
		var terr error
		if !hadStream {
			newRef, terr = g.content.Alloc(ctx, make([]byte, newLen))
		} else {
			newRef, terr = g.content.Truncate(ctx, old.Ref, newLen)
		}
		if terr != nil {
			return 0, terr
		}
		if n.Streams == nil {
			n.Streams = map[string]Stream{}
		}
		n.Streams[DefaultStream] = Stream{Ref: newRef}
		n.Origin = OriginUpper
		n.Meta.Times.Mtime = time.Now()
		n.Meta.Times.Ctime = n.Meta.Times.Mtime
		return g.alloc(n), nil
	})
	return err
}

// SetAttrs applies a metadata-only change (mode/uid/gid/times/xattr/ACL/
// flags). Per spec.md §4.4, this creates/updates a MetadataOverlay entry
// without forcing a data copy-up.
func (g *Graph) SetAttrs(ctx context.Context, root *Root, path string, apply func(*Metadata)) error {
	if _, err := g.ensureUpperFor(ctx, root, path); err != nil {
		return err
	}
	_, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		_, id, ok := g.lookupChild(parent, name)
		if !ok {
			return 0, fserrors.NotFoundf("%s", path)
		}
		existing := g.get(id)
		if existing == nil {
			return 0, fserrors.Internalf("dangling node")
		}
		n := existing.clone()
		apply(&n.Meta)
		n.Meta.Times.Ctime = time.Now()
		return g.alloc(n), nil
	})
	return err
}

// Unlink removes a non-directory name. If the target is upper-only it is
// dropped outright (the caller releases its storage once no handle
// references it); if it is lower-visible (including lower-only), a Whiteout
// is installed so the lower object remains untouched but is masked from this
// branch. Rmdir removes directories through unlinkNode directly, since a
// directory target must skip this function's file-only guard.
func (g *Graph) Unlink(ctx context.Context, root *Root, path string) error {
	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return err
	}
	if !e.IsLower {
		if n := g.get(e.NodeID); n != nil && n.Kind == KindDir {
			return fserrors.New(fserrors.IsADirectory, path)
		}
	}
	return g.unlinkNode(ctx, root, path, e)
}

// unlinkNode is Unlink's kind-agnostic core: it drops an upper-only entry,
// or masks a lower-visible one with a whiteout. Shared by Unlink (files,
// symlinks) and Rmdir (empty directories), which validate kind/emptiness
// themselves before calling in.
func (g *Graph) unlinkNode(ctx context.Context, root *Root, path string, e Entry) error {
	if e.IsLower {
		wh := &Node{Kind: KindWhiteout, Origin: OriginUpper}
		_, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
			return g.alloc(wh), nil
		})
		return err
	}

	n := g.get(e.NodeID)
	if n == nil {
		return fserrors.Internalf("dangling node")
	}

	// If this upper node shadows a lower object of the same name, removing
	// the upper entry alone would re-expose the lower file; install a
	// whiteout instead. Otherwise it is purely upper-born and can just be
	// dropped.
	_, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		if n.lowerPath != "" {
			if _, serr := g.lowerP.Stat(ctx, n.lowerPath); serr == nil {
				return g.alloc(&Node{Kind: KindWhiteout, Origin: OriginUpper}), nil
			}
		}
		return zeroNode, nil
	})
	return err
}

// Rmdir removes an empty directory, requiring it be empty in the merged
// view: upper children minus whiteouts empty, and every lower child masked
// by a whiteout.
func (g *Graph) Rmdir(ctx context.Context, root *Root, path string) error {
	entries, err := g.ReadDir(ctx, root, path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fserrors.New(fserrors.NotEmpty, path)
	}

	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return err
	}
	if !e.IsLower {
		if n := g.get(e.NodeID); n == nil || n.Kind != KindDir {
			return fserrors.New(fserrors.NotADirectory, path)
		}
	}
	return g.unlinkNode(ctx, root, path, e)
}

// Symlink creates a symlink node at path with the given target.
func (g *Graph) Symlink(ctx context.Context, root *Root, path, target string, uid, gid uint32) (NodeId, error) {
	if _, err := g.Resolve(ctx, root, path); err == nil {
		return 0, fserrors.AlreadyExistsf("%s", path)
	}
	now := time.Now()
	node := &Node{
		Kind: KindSymlink, Origin: OriginUpper, Target: target,
		Meta: Metadata{Mode: 0o777, UID: uid, GID: gid, Xattrs: map[string][]byte{},
			Times: Times{Atime: now, Mtime: now, Ctime: now, Birthtime: now}},
	}
	return g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		return g.alloc(node), nil
	})
}
