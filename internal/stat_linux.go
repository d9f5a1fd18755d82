//go:build linux

package internal

import (
	"os"
	"syscall"
	"time"
)

// Linux stat has no birth time; ctime is the closest stand-in.
func statCreated(fi os.FileInfo) (time.Time, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)), true
}
