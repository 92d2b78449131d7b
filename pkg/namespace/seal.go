package namespace

import "github.com/blocksense-network/agentfs/pkg/content"

// WalkContentRefs visits every ContentRef reachable from root's materialized
// tree (every Stream of every File node, across every stream name), calling
// fn once per ref. It never touches lower.Provider: unmaterialized entries
// carry no ContentRef to seal or release. This is the primitive the
// Snapshot & Branch Manager (pkg/snapshot) builds snapshot_create's
// "increment refcounts of referenced ContentRefs" step on, per spec.md
// §4.5.
func (g *Graph) WalkContentRefs(root *Root, fn func(content.ContentRef)) {
	visited := map[NodeId]bool{}
	g.walkRefs(root.get(), visited, fn)
}

func (g *Graph) walkRefs(id NodeId, visited map[NodeId]bool, fn func(content.ContentRef)) {
	if visited[id] {
		return
	}
	visited[id] = true

	n := g.get(id)
	if n == nil {
		return
	}
	switch n.Kind {
	case KindFile:
		for _, s := range n.Streams {
			fn(s.Ref)
		}
	case KindDir:
		for _, childID := range n.Children {
			g.walkRefs(childID, visited, fn)
		}
	}
}
