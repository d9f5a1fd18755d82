package internal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanoberholster/imagemeta"
	"github.com/evanoberholster/imagemeta/xmp"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

// Provenance names where a resolved timestamp came from. Informational only.
type Provenance string

const (
	ProvTakeoutJSON Provenance = "takeout_json"
	ProvXMPSidecar  Provenance = "xmp_sidecar"
	ProvExifRead    Provenance = "exifread"
	ProvHEICXMP     Provenance = "heic_xmp"
	ProvMediaInfo   Provenance = "mediainfo"
	ProvFilename    Provenance = "filename"
	ProvFSCreated   Provenance = "fs_created"
	ProvFSModified  Provenance = "fs_modified"
	ProvMissing     Provenance = "missing"
	ProvCancelled   Provenance = "cancelled"
	ProvError       Provenance = "error"
)

// ToolProvenance tags a value taken from an exiftool field.
func ToolProvenance(tag string) Provenance {
	return Provenance("exiftool:" + tag)
}

// FallbackPolicy decides what happens when no metadata source has a date.
type FallbackPolicy string

const (
	FallbackSkip     FallbackPolicy = "skip"
	FallbackCreated  FallbackPolicy = "created"
	FallbackModified FallbackPolicy = "modified"
)

func ParseFallback(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackSkip, FallbackCreated, FallbackModified:
		return p, nil
	case "":
		return FallbackSkip, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q (want skip, created or modified)", s)
	}
}

// DeepOptions toggles the optional, slower or less trusted sources.
type DeepOptions struct {
	ParseFilename   bool
	ReadXMPSidecar  bool
	ReadTakeoutJSON bool
}

// ReadOptions is fixed for the lifetime of a scan.
type ReadOptions struct {
	Deep     DeepOptions
	Fallback FallbackPolicy
}

// DefaultReadOptions mirrors the config defaults: sidecars on, filenames off.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Deep:     DeepOptions{ReadXMPSidecar: true, ReadTakeoutJSON: true},
		Fallback: FallbackSkip,
	}
}

// Source is one metadata backend. Read never fails loudly: any problem with
// the file is reported as ok == false so the chain moves on.
type Source interface {
	Name() string
	Read(path string, rec *ToolRecord) (time.Time, Provenance, bool)
}

// toolSource consults the exiftool record prefetched for the file.
type toolSource struct{}

func (toolSource) Name() string { return "exiftool" }

func (toolSource) Read(_ string, rec *ToolRecord) (time.Time, Provenance, bool) {
	if rec == nil {
		return time.Time{}, "", false
	}
	t, tag, ok := rec.Date()
	if !ok {
		return time.Time{}, "", false
	}
	return t, ToolProvenance(tag), true
}

type takeoutSource struct{ log *log.Logger }

func (takeoutSource) Name() string { return "takeout_json" }

func (s takeoutSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	data, err := os.ReadFile(path + ".json")
	if err != nil {
		return time.Time{}, "", false
	}
	t, ok := ParseTakeoutJSON(data)
	if !ok {
		s.log.Debug("takeout sidecar has no timestamp", "file", path)
		return time.Time{}, "", false
	}
	return t, ProvTakeoutJSON, true
}

type xmpSidecarSource struct{ log *log.Logger }

func (xmpSidecarSource) Name() string { return "xmp_sidecar" }

// xmpSidecarPaths lists photo.jpg.xmp before photo.xmp.
func xmpSidecarPaths(path string) []string {
	return []string{
		path + ".xmp",
		strings.TrimSuffix(path, filepath.Ext(path)) + ".xmp",
	}
}

func (s xmpSidecarSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	for _, p := range xmpSidecarPaths(path) {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if t, ok := ParseXMP(string(data)); ok {
			return t, ProvXMPSidecar, true
		}
		s.log.Debug("xmp sidecar without a usable date", "sidecar", p)
		return time.Time{}, "", false
	}
	return time.Time{}, "", false
}

// embeddedSource reads EXIF from images with goexif, falling back to
// imagemeta for containers goexif does not understand.
type embeddedSource struct {
	media MediaTypes
	log   *log.Logger
}

func (embeddedSource) Name() string { return "exifread" }

var exifDateFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime}

func (s embeddedSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	if !s.media.IsImage(path) {
		return time.Time{}, "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, "", false
	}
	defer f.Close()

	t, err := getExifDateOriginal(f)
	if err == nil {
		return t, ProvExifRead, true
	}
	s.log.Debug("goexif decode failed", "file", path, "err", err)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return time.Time{}, "", false
	}
	if t, ok := imagemetaDate(f); ok {
		return t, ProvExifRead, true
	}
	return time.Time{}, "", false
}

func getExifDateOriginal(r io.Reader) (time.Time, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return time.Time{}, err
	}
	for _, field := range exifDateFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		if t, ok := ParseAny(raw); ok {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("exif: no parseable date tag")
}

// imagemetaDate recovers from decoder panics on truncated files.
func imagemetaDate(r io.ReadSeeker) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	e, err := imagemeta.Decode(r)
	if err != nil {
		return time.Time{}, false
	}
	for _, v := range []time.Time{e.DateTimeOriginal(), e.CreateDate()} {
		if !v.IsZero() && v.Year() > 1900 {
			return wallClock(v), true
		}
	}
	return time.Time{}, false
}

// heicXMPSource reads the XMP packet of a HEIC/HEIF file. The packet is
// located through the item boxes; files without them get a scan of their
// first bytes.
type heicXMPSource struct{ media MediaTypes }

func (heicXMPSource) Name() string { return "heic_xmp" }

const heicScanLimit = 4 << 20

var (
	xmpOpen  = []byte("<x:xmpmeta")
	xmpClose = []byte("</x:xmpmeta>")
)

func (s heicXMPSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	if !s.media.IsHEIF(path) {
		return time.Time{}, "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, "", false
	}
	defer f.Close()

	packet, ok := heifXMPItem(f)
	if !ok {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return time.Time{}, "", false
		}
		head, err := io.ReadAll(io.LimitReader(f, heicScanLimit))
		if err != nil {
			return time.Time{}, "", false
		}
		if packet, ok = extractXMPPacket(head); !ok {
			return time.Time{}, "", false
		}
	}
	t, ok := parseXMPPacket(packet)
	if !ok {
		return time.Time{}, "", false
	}
	return t, ProvHEICXMP, true
}

// parseXMPPacket decodes xmp:CreateDate with imagemeta's XMP reader. A
// stamp it returns in UTC may have been written without an offset, so that
// case and every packet it cannot use go through ParseXMP.
func parseXMPPacket(packet []byte) (time.Time, bool) {
	x, err := decodeXMP(packet)
	if err == nil && !x.Basic.CreateDate.IsZero() {
		ts := x.Basic.CreateDate
		if ts.Location() != time.UTC {
			return ToLocalNaive(ts), true
		}
		if t, ok := ParseXMP(string(packet)); ok {
			return t, true
		}
		return wallClock(ts), true
	}
	return ParseXMP(string(packet))
}

func decodeXMP(packet []byte) (x xmp.XMP, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xmp: %v", r)
		}
	}()
	return xmp.ParseXmp(bytes.NewReader(packet))
}

func extractXMPPacket(data []byte) ([]byte, bool) {
	start := bytes.Index(data, xmpOpen)
	if start < 0 {
		return nil, false
	}
	end := bytes.Index(data[start:], xmpClose)
	if end < 0 {
		return nil, false
	}
	return data[start : start+end+len(xmpClose)], true
}

type filenameSource struct{}

func (filenameSource) Name() string { return "filename" }

func (filenameSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	t, ok := ParseFilename(filepath.Base(path))
	if !ok {
		return time.Time{}, "", false
	}
	return t, ProvFilename, true
}

// fsSource applies the filesystem fallback policy.
type fsSource struct{ policy FallbackPolicy }

func (s fsSource) Name() string { return "fs_" + string(s.policy) }

func (s fsSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	switch s.policy {
	case FallbackCreated:
		t, err := getFileCreatedTime(path)
		if err != nil {
			return time.Time{}, "", false
		}
		return ToLocalNaive(t), ProvFSCreated, true
	case FallbackModified:
		t, err := getFileModTime(path)
		if err != nil {
			return time.Time{}, "", false
		}
		return ToLocalNaive(t), ProvFSModified, true
	}
	return time.Time{}, "", false
}
