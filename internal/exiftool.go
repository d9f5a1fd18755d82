package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/charmbracelet/log"
)

// ExifToolBatchSize is how many paths go to exiftool per request.
const ExifToolBatchSize = 200

// ExifToolMode selects which exiftool binary, if any, is used.
type ExifToolMode string

const (
	ExifToolAuto    ExifToolMode = "auto"
	ExifToolBundled ExifToolMode = "bundled"
	ExifToolSystem  ExifToolMode = "system"
	ExifToolOff     ExifToolMode = "off"
)

func ParseExifToolMode(s string) (ExifToolMode, error) {
	switch m := ExifToolMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ExifToolAuto, ExifToolBundled, ExifToolSystem, ExifToolOff:
		return m, nil
	case "":
		return ExifToolAuto, nil
	default:
		return "", fmt.Errorf("unknown exiftool mode %q (want auto, bundled, system or off)", s)
	}
}

// toolTags is the whitelist consulted by the resolver, most specific first.
var toolTags = []string{
	"EXIF:DateTimeOriginal",
	"EXIF:CreateDate",
	"XMP:CreateDate",
	"XMP:DateCreated",
	"QuickTime:CreateDate",
	"QuickTime:MediaCreateDate",
	"QuickTime:TrackCreateDate",
	"QuickTime:ModifyDate",
	"QuickTime:ContentCreateDate",
	"Composite:SubSecDateTimeOriginal",
	"Composite:DateTimeCreated",
	"PNG:CreationTime",
	"DateTimeOriginal",
	"CreateDate",
	"MediaCreateDate",
}

var toolTagSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(toolTags))
	for _, t := range toolTags {
		set[t] = struct{}{}
	}
	return set
}()

// ToolRecord holds the whitelisted string fields exiftool reported for one file.
type ToolRecord struct {
	fields map[string]string
}

func newToolRecord(fields map[string]interface{}) *ToolRecord {
	rec := &ToolRecord{fields: make(map[string]string)}
	for k, v := range fields {
		if _, ok := toolTagSet[k]; !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		rec.fields[k] = s
	}
	return rec
}

// Get returns a whitelisted field.
func (r *ToolRecord) Get(tag string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.fields[tag]
	return v, ok
}

// Date walks the whitelist and returns the first parseable value.
func (r *ToolRecord) Date() (time.Time, string, bool) {
	if r == nil {
		return time.Time{}, "", false
	}
	for _, tag := range toolTags {
		v, ok := r.fields[tag]
		if !ok {
			continue
		}
		if t, ok := ParseAny(v); ok {
			return t, tag, true
		}
	}
	return time.Time{}, "", false
}

// metadataExtractor is the part of *exiftool.Exiftool the session uses.
type metadataExtractor interface {
	ExtractMetadata(files ...string) []exiftool.FileMetadata
	Close() error
}

// ExifToolSession is the one logical exiftool handle of a run. exiftool
// itself runs as a single -stay_open process; calls are serialized.
type ExifToolSession struct {
	mu   sync.Mutex
	et   metadataExtractor
	open func() (metadataExtractor, error) // restarts et; nil when it cannot
	info string
	log  *log.Logger
}

// Output line limits for the -stay_open reader. A single JSON record with
// maker notes or preview blobs easily exceeds bufio's 64KB default.
const (
	exifToolBufferInitial = 128 << 10
	exifToolBufferMax     = 64 << 20
)

func startExifTool(path string) (metadataExtractor, error) {
	return exiftool.NewExiftool(
		exiftool.SetExiftoolBinaryPath(path),
		exiftool.PrintGroupNames("0"),
		exiftool.Buffer(make([]byte, exifToolBufferInitial), exifToolBufferMax),
	)
}

// streamBroken reports errors after which the -stay_open output reader is
// out of sync and every later answer of the process is lost.
func streamBroken(err error) bool {
	if errors.Is(err, exiftool.ErrBufferTooSmall) {
		return true
	}
	return strings.Contains(err.Error(), "error while reading stdMergedOut")
}

type exifToolCandidate struct {
	kind string
	path string
}

func bundledExifToolPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	name := "exiftool"
	if runtime.GOOS == "windows" {
		name = "exiftool.exe"
	}
	return filepath.Join(filepath.Dir(exe), "tools", "exiftool", name)
}

func exifToolCandidates(mode ExifToolMode) []exifToolCandidate {
	var out []exifToolCandidate
	if mode == ExifToolAuto || mode == ExifToolBundled {
		if p := bundledExifToolPath(); p != "" {
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				out = append(out, exifToolCandidate{kind: "bundled", path: p})
			}
		}
	}
	if mode == ExifToolAuto || mode == ExifToolSystem {
		if p, err := exec.LookPath("exiftool"); err == nil {
			out = append(out, exifToolCandidate{kind: "system", path: p})
		}
	}
	return out
}

// probeVersion runs "exiftool -ver"; go-exiftool does not expose the version.
func probeVersion(path string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-ver").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// OpenExifTool probes for a usable exiftool according to mode. It always
// returns a session; an unavailable one answers every query with nothing.
func OpenExifTool(mode ExifToolMode, logger *log.Logger) *ExifToolSession {
	logger = orDiscard(logger)
	if mode == ExifToolOff {
		return &ExifToolSession{info: "exiftool:disabled", log: logger}
	}

	for _, c := range exifToolCandidates(mode) {
		ver, err := probeVersion(c.path)
		if err != nil {
			logger.Debug("exiftool probe failed", "path", c.path, "err", err)
			continue
		}
		et, err := startExifTool(c.path)
		if err != nil {
			logger.Debug("exiftool start failed", "path", c.path, "err", err)
			continue
		}
		info := fmt.Sprintf("system:exiftool v%s", ver)
		if c.kind == "bundled" {
			info = fmt.Sprintf("bundled:%s v%s", c.path, ver)
		}
		logger.Info("exiftool ready", "tool", info)
		s := newExifToolSessionWith(et, info, logger)
		path := c.path
		s.open = func() (metadataExtractor, error) { return startExifTool(path) }
		return s
	}

	logger.Warn("exiftool unavailable, continuing with built-in readers", "mode", mode)
	return &ExifToolSession{info: "exiftool:not_found", log: logger}
}

func newExifToolSessionWith(et metadataExtractor, info string, logger *log.Logger) *ExifToolSession {
	return &ExifToolSession{et: et, info: info, log: orDiscard(logger)}
}

// Available is safe on a nil session. A session whose process could not be
// restarted stops being available.
func (s *ExifToolSession) Available() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.et != nil
}

func (s *ExifToolSession) Info() string {
	if s == nil {
		return "exiftool:disabled"
	}
	return s.info
}

// MetadataMany queries paths in batches of ExifToolBatchSize. A failed batch
// contributes nothing; cancellation is checked between batches.
func (s *ExifToolSession) MetadataMany(ctx context.Context, paths []string) map[string]*ToolRecord {
	out := make(map[string]*ToolRecord, len(paths))
	if !s.Available() {
		return out
	}
	for start := 0; start < len(paths); start += ExifToolBatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+ExifToolBatchSize, len(paths))
		for k, v := range s.batch(paths[start:end]) {
			out[k] = v
		}
	}
	return out
}

// Metadata queries a single file.
func (s *ExifToolSession) Metadata(path string) *ToolRecord {
	if !s.Available() {
		return nil
	}
	return s.batch([]string{path})[normPath(path)]
}

func (s *ExifToolSession) batch(paths []string) (out map[string]*ToolRecord) {
	out = make(map[string]*ToolRecord, len(paths))
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("exiftool batch failed", "files", len(paths), "err", r)
			out = map[string]*ToolRecord{}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for remaining := paths; len(remaining) > 0 && s.et != nil; {
		broken := -1
		for i, fm := range s.et.ExtractMetadata(remaining...) {
			if fm.Err != nil {
				if streamBroken(fm.Err) {
					broken = i
					break
				}
				s.log.Debug("exiftool: no metadata", "file", fm.File, "err", fm.Err)
				continue
			}
			out[normPath(fm.File)] = newToolRecord(fm.Fields)
		}
		if broken < 0 {
			break
		}
		s.log.Warn("exiftool output unreadable, restarting", "file", remaining[broken])
		s.restart()
		// The file that broke the stream is not retried.
		remaining = remaining[broken+1:]
	}
	return out
}

// restart replaces the exiftool process. Without a way to start a new one
// the session becomes unavailable. Must be called with mu held.
func (s *ExifToolSession) restart() {
	if s.et != nil {
		_ = s.et.Close()
		s.et = nil
	}
	if s.open == nil {
		return
	}
	et, err := s.open()
	if err != nil {
		s.log.Warn("exiftool restart failed, continuing with built-in readers", "err", err)
		return
	}
	s.et = et
}

func (s *ExifToolSession) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.et == nil {
		return nil
	}
	err := s.et.Close()
	s.et = nil
	return err
}

// normPath is the key used to match exiftool output back to inputs.
func normPath(p string) string {
	p = filepath.Clean(p)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}
