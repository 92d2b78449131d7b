//go:build !linux

package lower

import "github.com/blocksense-network/agentfs/pkg/fserrors"

func getXattr(_, name string) ([]byte, error) {
	return nil, fserrors.New(fserrors.Unsupported, "extended attributes not supported on this platform")
}

func listXattr(_ string) ([]string, error) {
	return nil, nil
}

func statfs(_ string) (FsStat, error) {
	return FsStat{BlockSize: 4096, MaxNameLen: 255}, nil
}
