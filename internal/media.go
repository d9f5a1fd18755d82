package internal

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	defaultImageExt = []string{
		".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tif", ".tiff", ".gif",
		".heic", ".heif",
		".arw", ".nef", ".cr2", ".dng", ".rw2", ".orf", ".srw",
	}
	defaultVideoExt = []string{
		".mp4", ".mov", ".m4v", ".mkv", ".avi", ".wmv", ".webm", ".3gp", ".mts", ".m2ts", ".mpg", ".mpeg",
	}
	sidecarExt = map[string]bool{".xmp": true, ".json": true}
)

// MediaTypes routes files to readers by lower-cased extension. The name
// itself is never lower-cased.
type MediaTypes struct {
	image map[string]struct{}
	video map[string]struct{}
}

// NewMediaTypes builds the routing table; nil lists use the defaults.
func NewMediaTypes(imageExt, videoExt []string) MediaTypes {
	if imageExt == nil {
		imageExt = defaultImageExt
	}
	if videoExt == nil {
		videoExt = defaultVideoExt
	}
	m := MediaTypes{image: extSet(imageExt), video: extSet(videoExt)}
	return m
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

func lowerExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func (m MediaTypes) IsImage(path string) bool {
	_, ok := m.image[lowerExt(path)]
	return ok
}

func (m MediaTypes) IsVideo(path string) bool {
	_, ok := m.video[lowerExt(path)]
	return ok
}

// IsHEIF reports HEIC/HEIF containers, which carry XMP but no classic EXIF block.
func (m MediaTypes) IsHEIF(path string) bool {
	ext := lowerExt(path)
	return ext == ".heic" || ext == ".heif"
}

func (m MediaTypes) IsMedia(path string) bool {
	return m.IsImage(path) || m.IsVideo(path)
}

// EnumerateOptions controls which files a scan picks up.
type EnumerateOptions struct {
	Recursive bool
	// Media, when set, restricts the listing to known media extensions.
	Media *MediaTypes
	// SkipSidecars drops .xmp/.json files so they are not renamed away from
	// the media file they describe.
	SkipSidecars bool
	// OnError is told about unreadable subdirectories, which are skipped.
	OnError func(path string, err error)
}

// EnumerateFiles lists regular files under root in a fixed lexical order.
// Only a missing or unreadable root is a hard failure.
func EnumerateFiles(root string, opts EnumerateOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderMissing, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	keep := func(path string) bool {
		if opts.SkipSidecars && sidecarExt[lowerExt(path)] {
			return false
		}
		if opts.Media != nil && !opts.Media.IsMedia(path) {
			return false
		}
		return true
	}

	var files []string
	if !opts.Recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("error scanning files: %w", err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			path := filepath.Join(root, e.Name())
			if keep(path) {
				files = append(files, path)
			}
		}
		return files, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if opts.OnError != nil {
				opts.OnError(path, err)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && keep(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}
	// WalkDir is already lexical per directory; sort makes the order
	// independent of how the walk interleaves subdirectories.
	sort.Strings(files)
	return files, nil
}
