//go:build !linux

package backstore

import "errors"

// reflinkFiles has no portable implementation outside Linux's FICLONE; the
// caller falls back to a bounded copy.
func reflinkFiles(_, _ string) error {
	return errors.New("reflink not supported on this platform")
}

func reflinkSupported() bool { return false }
