//go:build !linux

package lower

import (
	"syscall"
	"time"
)

func statTimeAtime(_ *syscall.Stat_t) time.Time {
	return time.Time{}
}

func statTimeCtime(_ *syscall.Stat_t) time.Time {
	return time.Time{}
}
