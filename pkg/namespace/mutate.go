package namespace

import (
	"context"
	"io"
	"time"

	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// walkAndClone is the persistent-tree write primitive every mutating
// operation (copy-up, rename, unlink, setattr) funnels through. It walks
// root down to the parent of the final path component, cloning each
// directory node it visits so the old chain -- still referenced by any
// sibling branch or sealed snapshot sharing it -- is left untouched, then
// lets mutate rewrite the final component's child pointer. The new root is
// installed on root only after mutate succeeds.
//
// mutate receives the (possibly freshly allocated) parent dir node and the
// final path component name; it returns the child id to install under name
// (zeroNode to remove the entry).
func (g *Graph) walkAndClone(
	ctx context.Context,
	root *Root,
	path string,
	mutate func(parent *Node, name string) (NodeId, error),
) (NodeId, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return 0, fserrors.New(fserrors.BadRequest, "cannot mutate the root itself")
	}

	origRoot := g.get(root.get())
	if origRoot == nil {
		return 0, fserrors.Internalf("dangling root node")
	}

	newRootNode := origRoot.clone()
	newRootID := g.alloc(newRootNode)

	cur := newRootNode
	lowerPath := ""

	for i := 0; i < len(comps)-1; i++ {
		name := comps[i]
		_, childID, ok := g.lookupChild(cur, name)
		var childNode *Node
		if ok {
			existing := g.get(childID)
			if existing == nil {
				return 0, fserrors.Internalf("dangling node id in upper tree")
			}
			if existing.Kind == KindWhiteout {
				return 0, fserrors.NotFoundf("%s", path)
			}
			childNode = existing.clone()
		} else {
			// Ancestor copy-up: materialize an intervening directory from
			// lower so the mutation's target has an upper parent chain,
			// per spec.md §4.4 copy-up step 1.
			lp := joinLower(lowerPath, name)
			st, err := g.lowerP.Stat(ctx, lp)
			if err != nil {
				return 0, err
			}
			if !st.IsDir {
				return 0, fserrors.New(fserrors.NotADirectory, lp)
			}
			childNode = &Node{
				Kind: KindDir, Origin: OriginUpper,
				Children:  map[string]NodeId{},
				Meta:      newMetadataFromLower(st.Mode, st.UID, st.GID, st.Mtime),
				lowerPath: lp,
			}
		}
		childID = g.alloc(childNode)
		cur.Children[name] = childID
		lowerPath = joinLower(lowerPath, name)
		cur = childNode
	}

	leaf := comps[len(comps)-1]
	newChild, err := mutate(cur, leaf)
	if err != nil {
		return 0, err
	}
	if newChild == zeroNode {
		delete(cur.Children, leaf)
	} else {
		cur.Children[leaf] = newChild
	}
	cur.Meta.Times.Mtime = time.Now()
	cur.Meta.Times.Ctime = cur.Meta.Times.Mtime

	root.set(newRootID)
	return newChild, nil
}

// ensureUpperFor materializes path (and its ancestors) as upper entries if
// it is currently lower-only or a whiteout, and returns the resulting
// NodeId. A no-op (other than re-resolving) if path already has an upper
// entry. This is the general-purpose entry point for the copy-up protocol
// spec.md §4.4 describes; it does not itself apply the triggering mutation.
func (g *Graph) ensureUpperFor(ctx context.Context, root *Root, path string) (NodeId, error) {
	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return 0, err
	}
	if !e.IsLower {
		return e.NodeID, nil
	}

	st, err := g.lowerP.Stat(ctx, e.LowerPath)
	if err != nil {
		return 0, err
	}

	meta := newMetadataFromLower(g.copyUp.apply(st.Mode), st.UID, st.GID, st.Mtime)
	meta.ACL = g.copyUp.applyACL(meta.ACL)

	var newChild *Node
	var kind string
	switch {
	case st.IsDir:
		children := map[string]NodeId{}
		newChild = &Node{Kind: KindDir, Origin: OriginUpper, Children: children,
			Meta: meta, lowerPath: e.LowerPath}
		kind = "dir"
	case st.IsSymlnk:
		target, lerr := g.lowerP.Readlink(ctx, e.LowerPath)
		if lerr != nil {
			return 0, lerr
		}
		newChild = &Node{Kind: KindSymlink, Origin: OriginUpper, Target: target,
			Meta: meta, lowerPath: e.LowerPath}
		kind = "symlink"
	default:
		ref, cerr := g.cloneRefFromLower(ctx, e.LowerPath)
		if cerr != nil {
			return 0, cerr
		}
		newChild = &Node{
			Kind: KindFile, Origin: OriginMetadataOverlay,
			Streams:   map[string]Stream{DefaultStream: {Ref: ref}},
			Meta:      meta,
			lowerPath: e.LowerPath,
		}
		kind = "file"
	}
	g.metrics.RecordCopyUp(kind)

	id, err := g.walkAndClone(ctx, root, path, func(parent *Node, name string) (NodeId, error) {
		return g.alloc(newChild), nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// cloneRefFromLower reads a lower file's full content and allocates a
// Content Store ref for it. The bytes are always copied through memory; no
// backstore reflink or clone is attempted, whatever the backstore's
// capabilities.
func (g *Graph) cloneRefFromLower(ctx context.Context, lowerPath string) (content.ContentRef, error) {
	f, err := g.lowerP.OpenRO(ctx, lowerPath)
	if err != nil {
		return content.ContentRef{}, err
	}
	defer f.Close()

	data, err := readAllFrom(f)
	if err != nil {
		return content.ContentRef{}, err
	}
	ref, err := g.content.Alloc(ctx, data)
	if err != nil {
		return content.ContentRef{}, err
	}
	return ref, nil
}

func readAllFrom(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
