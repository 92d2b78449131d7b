//go:build linux

package lower

import (
	"github.com/blocksense-network/agentfs/pkg/fserrors"
	"golang.org/x/sys/unix"
)

func getXattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		if err == unix.ENODATA || err == unix.ENOATTR {
			return nil, fserrors.NotFoundf("xattr %s", name)
		}
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		n, err := unix.Lgetxattr(path, name, buf)
		if err != nil {
			return nil, err
		}
		buf = buf[:n]
	}
	return buf, nil
}

func listXattr(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	return splitXattrNames(buf[:n]), nil
}

// splitXattrNames splits the NUL-separated name list Llistxattr returns.
func splitXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

func statfs(path string) (FsStat, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return FsStat{}, err
	}
	return FsStat{
		BlockSize:  uint64(st.Bsize),
		Blocks:     st.Blocks,
		BlocksFree: st.Bfree,
		MaxNameLen: uint32(st.Namelen),
	}, nil
}
