package namespace

import (
	"context"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"github.com/blocksense-network/agentfs/pkg/lower"
)

// Attrs is the resolved, protocol-agnostic attribute view returned for a
// path: upper metadata when materialized, lower metadata projected 1:1
// otherwise (spec.md §4.4 "readdir_plus ... attributes for lower-only
// entries come from the Lower Provider").
type Attrs struct {
	Kind  Kind
	Meta  Metadata
	Size  uint64
	Nlink uint32
}

// GetAttrs resolves path and returns its attributes, materializing nothing.
// A leaf symlink is reported as itself (lstat semantics).
func (g *Graph) GetAttrs(ctx context.Context, root *Root, path string) (Attrs, error) {
	return g.getAttrs(ctx, root, path, false)
}

// GetAttrsFollow behaves like GetAttrs but dereferences a leaf symlink
// before reporting attributes (stat/fstat semantics, as opposed to lstat).
func (g *Graph) GetAttrsFollow(ctx context.Context, root *Root, path string) (Attrs, error) {
	return g.getAttrs(ctx, root, path, true)
}

func (g *Graph) getAttrs(ctx context.Context, root *Root, path string, follow bool) (Attrs, error) {
	var e Entry
	var err error
	if follow {
		e, err = g.ResolveFollow(ctx, root, path)
	} else {
		e, err = g.Resolve(ctx, root, path)
	}
	if err != nil {
		return Attrs{}, err
	}
	if e.IsLower {
		st, serr := g.lowerP.Stat(ctx, e.LowerPath)
		if serr != nil {
			return Attrs{}, serr
		}
		return Attrs{Kind: lowerStatKind(st), Meta: metaFromLowerStat(st), Size: st.Size, Nlink: 1}, nil
	}

	n := g.get(e.NodeID)
	if n == nil {
		return Attrs{}, fserrors.Internalf("dangling node")
	}
	a := Attrs{Kind: n.Kind, Meta: n.Meta, Nlink: 1}
	switch n.Kind {
	case KindFile:
		if s, ok := n.Streams[DefaultStream]; ok {
			a.Size = s.Ref.Len
		}
		if a.Size == 0 && n.Origin == OriginMetadataOverlay && n.lowerPath != "" {
			if st, serr := g.lowerP.Stat(ctx, n.lowerPath); serr == nil {
				a.Size = st.Size
			}
		}
	case KindDir:
		a.Size = uint64(len(n.Children))
	case KindSymlink:
		a.Size = uint64(len(n.Target))
	}
	return a, nil
}

// Readlink returns a symlink's target, consulting the upper node if
// materialized or the lower provider otherwise.
func (g *Graph) Readlink(ctx context.Context, root *Root, path string) (string, error) {
	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return "", err
	}
	if e.IsLower {
		return g.lowerP.Readlink(ctx, e.LowerPath)
	}
	n := g.get(e.NodeID)
	if n == nil || n.Kind != KindSymlink {
		return "", fserrors.New(fserrors.BadRequest, "not a symlink")
	}
	return n.Target, nil
}

// GetXattr returns one extended attribute, preferring an upper override and
// falling back to the lower projection, per spec.md §4.4.
func (g *Graph) GetXattr(ctx context.Context, root *Root, path, name string) ([]byte, error) {
	e, err := g.Resolve(ctx, root, path)
	if err != nil {
		return nil, err
	}
	if e.IsLower {
		return g.lowerP.GetXattr(ctx, e.LowerPath, name)
	}
	n := g.get(e.NodeID)
	if n == nil {
		return nil, fserrors.Internalf("dangling node")
	}
	if v, ok := n.Meta.Xattrs[name]; ok {
		return v, nil
	}
	if n.lowerPath != "" {
		return g.lowerP.GetXattr(ctx, n.lowerPath, name)
	}
	return nil, fserrors.NotFoundf("xattr %s", name)
}

// SetXattr writes one extended attribute, triggering the metadata copy-up
// protocol.
func (g *Graph) SetXattr(ctx context.Context, root *Root, path, name string, value []byte) error {
	return g.SetAttrs(ctx, root, path, func(m *Metadata) {
		if m.Xattrs == nil {
			m.Xattrs = map[string][]byte{}
		}
		m.Xattrs[name] = value
	})
}

func metaFromLowerStat(st lower.Stat) Metadata {
	return Metadata{
		Mode: st.Mode, UID: st.UID, GID: st.GID,
		Times: Times{Atime: st.Atime, Mtime: st.Mtime, Ctime: st.Ctime, Birthtime: st.Mtime},
	}
}

func lowerStatKind(st lower.Stat) Kind {
	switch {
	case st.IsDir:
		return KindDir
	case st.IsSymlnk:
		return KindSymlink
	default:
		return KindFile
	}
}
