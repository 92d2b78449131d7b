package namespace

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blocksense-network/agentfs/pkg/content"
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/lower"
	"github.com/blocksense-network/agentfs/pkg/metrics"
)

// Root tracks one branch's (or sealed snapshot's) current upper-tree root.
// Distinct branches forked from the same snapshot start out pointing at the
// same Root.node, giving the O(1)-fork, copy-on-divergence behaviour spec.md
// §4.5 requires; a write in one branch never mutates a node another Root
// still references, because mutation always path-copies up to a fresh root
// (see walkAndClone in mutate.go).
type Root struct {
	mu   sync.RWMutex
	node NodeId
}

func (r *Root) get() NodeId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.node
}

func (r *Root) set(n NodeId) {
	r.mu.Lock()
	r.node = n
	r.mu.Unlock()
}

// Graph owns the node table shared by every branch and sealed snapshot root
// in one AgentFS instance, plus the Content Store and Lower Provider it
// consults to materialize and serve data.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeId]*Node
	next  atomic.Uint64

	content content.Store
	lowerP  lower.Provider
	caseM   CaseMode
	copyUp  CopyUpConfig
	metrics *metrics.Metrics
}

// Config selects the graph's behavior per spec.md §6 filesystem config.
type Config struct {
	CaseMode     CaseMode
	SymlinkDepth int
	CopyUp       CopyUpConfig
}

// New constructs an empty Graph over the given Content Store and Lower
// Provider.
func New(store content.Store, lp lower.Provider, cfg Config) *Graph {
	return &Graph{
		nodes:   make(map[NodeId]*Node),
		content: store,
		lowerP:  lp,
		caseM:   cfg.CaseMode,
		copyUp:  cfg.CopyUp,
		metrics: metrics.New(),
	}
}

func (g *Graph) alloc(n *Node) NodeId {
	id := NodeId(g.next.Add(1))
	g.mu.Lock()
	g.nodes[id] = n
	g.mu.Unlock()
	return id
}

func (g *Graph) get(id NodeId) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// NewRoot creates an empty root directory and returns a fresh Root
// referencing it -- used when an AgentFS instance is first provisioned over
// a lower tree, before any snapshot exists.
func (g *Graph) NewRoot() *Root {
	root := &Node{Kind: KindDir, Origin: OriginUpper, Children: map[string]NodeId{},
		Meta: newMetadataFromLower(0o755, 0, 0, time.Now()), lowerPath: "/"}
	id := g.alloc(root)
	return &Root{node: id}
}

// ForkRoot creates a new Root that initially shares the same materialized
// tree as parent -- the structural-sharing step spec.md §4.5 describes for
// branch creation. No nodes are copied; divergence happens lazily on first
// write via path-copying.
func (g *Graph) ForkRoot(parent *Root) *Root {
	return &Root{node: parent.get()}
}

// normalizeName applies the graph's configured case policy to a single path
// component for lookup purposes; the original casing is always preserved in
// Children keys at creation time.
func (g *Graph) normalizeName(name string) string {
	if g.caseM == CaseInsensitivePreserving {
		return strings.ToLower(name)
	}
	return name
}

// lookupChild finds name among dir's children, honoring the configured case
// policy, and returns the matching (original-cased) key and id.
func (g *Graph) lookupChild(dir *Node, name string) (string, NodeId, bool) {
	if g.caseM != CaseInsensitivePreserving {
		id, ok := dir.Children[name]
		return name, id, ok
	}
	norm := g.normalizeName(name)
	for k, id := range dir.Children {
		if g.normalizeName(k) == norm {
			return k, id, true
		}
	}
	return name, 0, false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Resolve walks path from root within one branch's tree, applying the
// upper-wins / whiteout-hides-lower / lower-visible precedence spec.md §3
// and §4.4 require, restarting through symlinks up to DefaultSymlinkDepth
// levels. Config.SymlinkDepth is not consulted: the cap is always
// DefaultSymlinkDepth.
func (g *Graph) Resolve(ctx context.Context, root *Root, path string) (Entry, error) {
	return g.resolveDepth(ctx, root, path, 0)
}

func (g *Graph) resolveDepth(ctx context.Context, root *Root, path string, depth int) (Entry, error) {
	if depth > DefaultSymlinkDepth {
		return Entry{}, fserrors.New(fserrors.BadRequest, "symlink resolution depth exceeded")
	}

	comps := splitPath(path)
	curID := root.get()
	lowerPath := ""

	for i, name := range comps {
		node := g.get(curID)
		if node == nil {
			return Entry{}, fserrors.Internalf("dangling node id in upper tree")
		}
		if node.Kind != KindDir {
			return Entry{}, fserrors.New(fserrors.NotADirectory, "path component is not a directory")
		}

		_, childID, ok := g.lookupChild(node, name)
		if !ok {
			// Falls off the upper tree: the remainder resolves purely
			// against the lower provider, rooted at this directory's
			// lower-relative path.
			rest := strings.Join(comps[i:], "/")
			lp := joinLower(lowerPath, rest)
			return g.resolveLower(ctx, lp, depth)
		}

		child := g.get(childID)
		if child == nil {
			return Entry{}, fserrors.Internalf("dangling node id in upper tree")
		}
		if child.Kind == KindWhiteout {
			return Entry{}, fserrors.NotFoundf("%s", path)
		}
		lowerPath = joinLower(lowerPath, name)

		if child.Kind == KindSymlink && i < len(comps)-1 {
			// Intermediate symlink: restart resolution of the remaining
			// path from the symlink's target, within the same branch.
			rest := strings.Join(comps[i+1:], "/")
			target := resolveSymlinkTarget(lowerPath, child.Target)
			return g.resolveDepth(ctx, root, joinLower(target, rest), depth+1)
		}

		curID = childID
	}

	// A leaf symlink is returned as-is; callers that want to traverse
	// through it (e.g. open without O_NOFOLLOW) call ResolveFollow instead.
	return Entry{NodeID: curID}, nil
}

// ResolveFollow behaves like Resolve but additionally follows a leaf
// symlink, the behavior most read/write/open paths want.
func (g *Graph) ResolveFollow(ctx context.Context, root *Root, path string) (Entry, error) {
	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return Entry{}, err
	}
	depth := 0
	for {
		var target string
		if e.IsLower {
			st, err := g.lowerP.Stat(ctx, e.LowerPath)
			if err != nil {
				return Entry{}, err
			}
			if !st.IsSymlnk {
				return e, nil
			}
			t, err := g.lowerP.Readlink(ctx, e.LowerPath)
			if err != nil {
				return Entry{}, err
			}
			target = resolveSymlinkTarget(e.LowerPath, t)
		} else {
			n := g.get(e.NodeID)
			if n == nil || n.Kind != KindSymlink {
				return e, nil
			}
			target = resolveSymlinkTarget(path, n.Target)
		}
		depth++
		if depth > DefaultSymlinkDepth {
			return Entry{}, fserrors.New(fserrors.BadRequest, "symlink resolution depth exceeded")
		}
		var err2 error
		e, err2 = g.Resolve(ctx, root, target)
		if err2 != nil {
			return Entry{}, err2
		}
		path = target
	}
}

func (g *Graph) resolveLower(ctx context.Context, lowerPath string, _ int) (Entry, error) {
	if _, err := g.lowerP.Stat(ctx, lowerPath); err != nil {
		return Entry{}, err
	}
	// Leaf lower symlinks are returned as-is; ResolveFollow dereferences
	// them (via Stat+Readlink) when the caller wants traversal through.
	return Entry{IsLower: true, LowerPath: lowerPath}, nil
}

// resolveSymlinkTarget resolves a symlink's target relative to symlinkPath
// (the symlink's own full path): absolute targets are returned unchanged,
// relative targets are joined against the symlink's containing directory.
func resolveSymlinkTarget(symlinkPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return target
	}
	return joinLower(parentOf(symlinkPath), target)
}

func parentOf(path string) string {
	i := strings.LastIndex(strings.TrimSuffix(path, "/"), "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func joinLower(base, rest string) string {
	base = strings.Trim(base, "/")
	rest = strings.Trim(rest, "/")
	switch {
	case base == "" && rest == "":
		return "/"
	case base == "":
		return "/" + rest
	case rest == "":
		return "/" + base
	default:
		return "/" + base + "/" + rest
	}
}

// StatNode returns a materialized node's own metadata (not lower-projected).
func (g *Graph) StatNode(id NodeId) (*Node, bool) {
	n := g.get(id)
	if n == nil {
		return nil, false
	}
	return n, true
}
