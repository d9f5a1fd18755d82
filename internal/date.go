package internal

import (
	"os"
	"time"
)

// getFileModTime is the modified-time fallback.
func getFileModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// getFileCreatedTime returns the birth time where the platform records one
// and the inode change time otherwise.
func getFileCreatedTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	if t, ok := statCreated(fi); ok {
		return t, nil
	}
	return fi.ModTime(), nil
}
