package namespace

import (
	"context"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// Rename implements spec.md §4.4's rename semantics within one branch.
// Cross-branch rename is not representable here: callers only ever hold one
// branch's *Root at a time, so the "disallowed" invariant is structural.
func (g *Graph) Rename(ctx context.Context, root *Root, src, dst string) error {
	if _, err := g.Resolve(ctx, root, src); err != nil {
		return err
	}

	// Ensure src has upper presence: materialize it (and its ancestors) if
	// it currently lives only in lower.
	srcID, err := g.ensureUpperFor(ctx, root, src)
	if err != nil {
		return err
	}
	srcNode := g.get(srcID)
	if srcNode == nil {
		return fserrors.Internalf("dangling node")
	}

	// dst overwriting a lower-only entry needs no special handling here:
	// installing the new upper Children entry for dst's name simply
	// replaces whatever lookupChild would otherwise have fallen through to
	// lower for.
	if dstEntry, derr := g.Resolve(ctx, root, dst); derr == nil && !dstEntry.IsLower {
		existing := g.get(dstEntry.NodeID)
		if existing != nil && existing.Kind == KindDir {
			nonEmpty, _ := g.ReadDir(ctx, root, dst)
			if len(nonEmpty) > 0 {
				return fserrors.New(fserrors.NotEmpty, dst)
			}
		}
	}

	// Install src's node under dst (clone so src and dst don't end up
	// aliasing the same NodeId, which would make an edit to one visible at
	// both names -- rename must be a move, not a hard link).
	if _, err := g.walkAndClone(ctx, root, dst, func(parent *Node, name string) (NodeId, error) {
		return g.alloc(srcNode.clone()), nil
	}); err != nil {
		return err
	}

	// Remove src: upper-born entries are dropped outright; entries that
	// still shadow a lower object of the same name get a whiteout so the
	// lower object stays masked under its old name.
	if _, err := g.walkAndClone(ctx, root, src, func(parent *Node, name string) (NodeId, error) {
		if srcNode.lowerPath != "" {
			if _, serr := g.lowerP.Stat(ctx, srcNode.lowerPath); serr == nil {
				return g.alloc(&Node{Kind: KindWhiteout, Origin: OriginUpper}), nil
			}
		}
		return zeroNode, nil
	}); err != nil {
		return err
	}

	return nil
}

// Exchange atomically swaps two upper-materialized entries, the "exchange"
// variant spec.md §4.4 names. Both sides must already be upper (neither is
// lower-only), matching the renameat2(RENAME_EXCHANGE) contract it mirrors.
func (g *Graph) Exchange(ctx context.Context, root *Root, a, b string) error {
	ea, err := g.Resolve(ctx, root, a)
	if err != nil {
		return err
	}
	eb, err := g.Resolve(ctx, root, b)
	if err != nil {
		return err
	}
	if ea.IsLower || eb.IsLower {
		return fserrors.New(fserrors.UnsupportedOp, "exchange requires both sides upper-materialized")
	}

	aID, bID := ea.NodeID, eb.NodeID
	if _, err := g.walkAndClone(ctx, root, a, func(parent *Node, name string) (NodeId, error) {
		return bID, nil
	}); err != nil {
		return err
	}
	if _, err := g.walkAndClone(ctx, root, b, func(parent *Node, name string) (NodeId, error) {
		return aID, nil
	}); err != nil {
		return err
	}
	return nil
}
