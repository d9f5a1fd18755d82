package internal

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/barasher/go-exiftool"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 80, A: 255})
		}
	}
	return img
}

// exifSegment builds an APP1 segment holding a little-endian TIFF block
// with a single DateTimeOriginal tag.
func exifSegment(dateTimeOriginal string) []byte {
	le := binary.LittleEndian
	tiff := make([]byte, 64)
	copy(tiff, "II")
	le.PutUint16(tiff[2:], 42)
	le.PutUint32(tiff[4:], 8)

	// IFD0: one entry pointing at the Exif IFD at offset 26.
	le.PutUint16(tiff[8:], 1)
	le.PutUint16(tiff[10:], 0x8769)
	le.PutUint16(tiff[12:], 4) // LONG
	le.PutUint32(tiff[14:], 1)
	le.PutUint32(tiff[18:], 26)
	le.PutUint32(tiff[22:], 0)

	// Exif IFD: DateTimeOriginal, ASCII, 20 bytes at offset 44.
	le.PutUint16(tiff[26:], 1)
	le.PutUint16(tiff[28:], 0x9003)
	le.PutUint16(tiff[30:], 2) // ASCII
	le.PutUint32(tiff[32:], 20)
	le.PutUint32(tiff[36:], 44)
	le.PutUint32(tiff[40:], 0)
	copy(tiff[44:], dateTimeOriginal)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

// writeJPEG writes a small JPEG; a non-empty date adds an EXIF block.
func writeJPEG(t *testing.T, path, dateTimeOriginal string) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(16, 16), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()
	if dateTimeOriginal != "" {
		out := append([]byte{}, data[:2]...) // SOI
		out = append(out, exifSegment(dateTimeOriginal)...)
		data = append(out, data[2:]...)
	}
	writeFile(t, path, data)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func box(typ string, payload ...[]byte) []byte {
	size := 8
	for _, p := range payload {
		size += len(p)
	}
	out := make([]byte, 8, size)
	binary.BigEndian.PutUint32(out, uint32(size))
	copy(out[4:], typ)
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

// mvhdV0 returns a version 0 movie header payload.
func mvhdV0(created uint32) []byte {
	p := make([]byte, 100)
	binary.BigEndian.PutUint32(p[4:], created)
	binary.BigEndian.PutUint32(p[8:], created)
	binary.BigEndian.PutUint32(p[12:], 1000) // timescale
	binary.BigEndian.PutUint32(p[20:], 0x00010000)
	binary.BigEndian.PutUint16(p[24:], 0x0100)
	binary.BigEndian.PutUint32(p[96:], 2) // next track id
	return p
}

func appleSeconds(t time.Time) uint32 {
	return uint32(t.Unix() + appleEpochOffset)
}

type mp4Fixture struct {
	mvhd         time.Time
	recorded     string
	creationDate string
	// neighbour is stored under another mdta key, ahead of creationDate in
	// the item list.
	neighbour string
}

// writeMP4 writes a minimal ISO-BMFF file with the requested metadata.
func writeMP4(t *testing.T, path string, f mp4Fixture) {
	t.Helper()
	ftyp := box("ftyp", []byte("isom"), []byte{0, 0, 2, 0}, []byte("isom"))

	var created uint32
	if !f.mvhd.IsZero() {
		created = appleSeconds(f.mvhd)
	}
	children := [][]byte{box("mvhd", mvhdV0(created))}
	if f.recorded != "" {
		text := []byte{0, byte(len(f.recorded)), 0x15, 0xC7}
		children = append(children, box("udta", box("\xa9day", text, []byte(f.recorded))))
	}
	if f.creationDate != "" {
		count := byte(1)
		entries := [][]byte{box("mdta", []byte("com.apple.quicktime.creationdate"))}
		var items [][]byte
		if f.neighbour != "" {
			count = 2
			entries = append(entries, box("mdta", []byte("com.apple.quicktime.location.date")))
			items = append(items, box("\x00\x00\x00\x02", dataAtom(f.neighbour)))
		}
		items = append(items, box("\x00\x00\x00\x01", dataAtom(f.creationDate)))
		keys := box("keys", append([][]byte{{0, 0, 0, 0, 0, 0, 0, count}}, entries...)...)
		children = append(children, box("meta", keys, box("ilst", items...)))
	}
	writeFile(t, path, append(ftyp, box("moov", children...)...))
}

func dataAtom(value string) []byte {
	return box("data", []byte{0, 0, 0, 1, 0, 0, 0, 0}, []byte(value))
}

// fakeExtractor stands in for the exiftool process.
type fakeExtractor struct {
	fields map[string]map[string]interface{} // by base name
	calls  atomic.Int32
	files  atomic.Int32
}

func (f *fakeExtractor) ExtractMetadata(files ...string) []exiftool.FileMetadata {
	f.calls.Add(1)
	f.files.Add(int32(len(files)))
	out := make([]exiftool.FileMetadata, 0, len(files))
	for _, p := range files {
		fields, ok := f.fields[filepath.Base(p)]
		if !ok {
			fields = map[string]interface{}{"SourceFile": p}
		}
		out = append(out, exiftool.FileMetadata{File: p, Fields: fields})
	}
	return out
}

func (f *fakeExtractor) Close() error { return nil }

func fakeSession(fields map[string]map[string]interface{}) (*ExifToolSession, *fakeExtractor) {
	fx := &fakeExtractor{fields: fields}
	return newExifToolSessionWith(fx, "system:exiftool v13.00", nil), fx
}
