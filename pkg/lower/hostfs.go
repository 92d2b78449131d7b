package lower

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/blocksense-network/agentfs/pkg/fserrors"
)

// HostFsProvider implements Provider over a real directory on the host
// filesystem, the common case: AgentFS overlays a real directory tree.
type HostFsProvider struct {
	root string
}

// NewHostFsProvider creates a Provider rooted at dir. All paths passed to
// its methods are treated as relative to dir, joined with filepath.Join
// after cleaning -- callers (the namespace graph) are responsible for
// keeping resolved paths within the branch's view of the root.
func NewHostFsProvider(dir string) *HostFsProvider {
	return &HostFsProvider{root: filepath.Clean(dir)}
}

func (p *HostFsProvider) resolve(rel string) string {
	return filepath.Join(p.root, filepath.Clean("/"+rel))
}

func (p *HostFsProvider) Stat(_ context.Context, rel string) (Stat, error) {
	fi, err := os.Lstat(p.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return Stat{}, fserrors.NotFoundf("lower path %s", rel)
		}
		return Stat{}, err
	}
	st := Stat{
		IsDir:    fi.IsDir(),
		IsSymlnk: fi.Mode()&os.ModeSymlink != 0,
		Mode:     toStatMode(fi.Mode()),
		Size:     uint64(fi.Size()),
		Mtime:    fi.ModTime(),
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Atime = statTimeAtime(sys)
		st.Ctime = statTimeCtime(sys)
	}
	return st, nil
}

func (p *HostFsProvider) OpenRO(_ context.Context, rel string) (File, error) {
	f, err := os.Open(p.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fserrors.NotFoundf("lower path %s", rel)
		}
		return nil, err
	}
	return f, nil
}

func (p *HostFsProvider) ReadDir(_ context.Context, rel string) ([]DirEntry, error) {
	entries, err := os.ReadDir(p.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fserrors.NotFoundf("lower path %s", rel)
		}
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (p *HostFsProvider) Readlink(_ context.Context, rel string) (string, error) {
	target, err := os.Readlink(p.resolve(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fserrors.NotFoundf("lower path %s", rel)
		}
		return "", err
	}
	return target, nil
}

func (p *HostFsProvider) GetXattr(_ context.Context, rel, name string) ([]byte, error) {
	return getXattr(p.resolve(rel), name)
}

func (p *HostFsProvider) ListXattr(_ context.Context, rel string) ([]string, error) {
	return listXattr(p.resolve(rel))
}

func (p *HostFsProvider) Statfs(_ context.Context, rel string) (FsStat, error) {
	return statfs(p.resolve(rel))
}
