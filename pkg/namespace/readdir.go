package namespace

import (
	"context"
	"sort"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/lower"
)

// DirEntry is one merged directory listing entry, spec.md §4.4 readdir.
type DirEntry struct {
	Name  string
	Kind  Kind
	IsDir bool
	// NodeID is set when the entry is an upper (possibly metadata-overlay)
	// node; zero when the entry comes purely from lower.
	NodeID NodeId
}

// ReadDir returns the merged listing of a directory: upper entries plus
// lower entries not shadowed by an upper name or whiteout, upper winning on
// collision, sorted by name for a stable order across calls.
func (g *Graph) ReadDir(ctx context.Context, root *Root, path string) ([]DirEntry, error) {
	e, err := g.ResolveFollow(ctx, root, path)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []DirEntry

	var lowerPath string
	if e.IsLower {
		lowerPath = e.LowerPath
	} else {
		node := g.get(e.NodeID)
		if node == nil {
			return nil, fserrors.Internalf("dangling node")
		}
		if node.Kind != KindDir {
			return nil, fserrors.New(fserrors.NotADirectory, path)
		}
		for name, id := range node.Children {
			seen[g.normalizeName(name)] = true
			child := g.get(id)
			if child == nil || child.Kind == KindWhiteout {
				continue
			}
			out = append(out, DirEntry{Name: name, Kind: child.Kind, IsDir: child.Kind == KindDir, NodeID: id})
		}
		lowerPath = node.lowerPath
	}

	if lowerPath != "" {
		lowerEntries, lerr := g.lowerP.ReadDir(ctx, lowerPath)
		if lerr != nil && fserrors.CodeOf(lerr) != fserrors.NotFound {
			return nil, lerr
		}
		for _, le := range lowerEntries {
			if seen[g.normalizeName(le.Name)] {
				continue
			}
			out = append(out, DirEntry{Name: le.Name, Kind: lowerKind(le), IsDir: le.IsDir})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func lowerKind(e lower.DirEntry) Kind {
	if e.IsDir {
		return KindDir
	}
	return KindFile
}
