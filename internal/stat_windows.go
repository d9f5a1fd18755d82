//go:build windows

package internal

import (
	"os"
	"syscall"
	"time"
)

func statCreated(fi os.FileInfo) (time.Time, bool) {
	attr, ok := fi.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, attr.CreationTime.Nanoseconds()), true
}
