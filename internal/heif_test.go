package internal

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// infeV2 builds an item info entry; contentType is only written for mime
// items.
func infeV2(id uint16, itemType, name, contentType string) []byte {
	var p bytes.Buffer
	p.Write([]byte{2, 0, 0, 0})
	binary.Write(&p, binary.BigEndian, id)
	p.Write([]byte{0, 0})
	p.WriteString(itemType)
	p.WriteString(name + "\x00")
	if itemType == "mime" {
		p.WriteString(contentType + "\x00")
	}
	return box("infe", p.Bytes())
}

// writeHEIF writes ftyp, meta with an XMP item, then mdat holding padding
// bytes followed by the packet.
func writeHEIF(t *testing.T, path string, padding int, packet string) {
	t.Helper()
	ftyp := box("ftyp", []byte("heic"), []byte{0, 0, 0, 0}, []byte("mif1heic"))
	iinf := box("iinf", []byte{0, 0, 0, 0, 0, 2},
		infeV2(1, "hvc1", "", ""),
		infeV2(2, "mime", "XMP", xmpContentType))

	iloc := func(offset uint32) []byte {
		var p bytes.Buffer
		p.Write([]byte{0, 0, 0, 0, 0x44, 0x00})
		binary.Write(&p, binary.BigEndian, uint16(1)) // item count
		binary.Write(&p, binary.BigEndian, uint16(2)) // item id
		binary.Write(&p, binary.BigEndian, uint16(0)) // data reference
		binary.Write(&p, binary.BigEndian, uint16(1)) // extent count
		binary.Write(&p, binary.BigEndian, offset)
		binary.Write(&p, binary.BigEndian, uint32(len(packet)))
		return box("iloc", p.Bytes())
	}
	meta := func(offset uint32) []byte {
		return box("meta", []byte{0, 0, 0, 0}, box("hdlr", make([]byte, 25)), iinf, iloc(offset))
	}

	offset := uint32(len(ftyp) + len(meta(0)) + 8 + padding)
	mdat := box("mdat", make([]byte, padding), []byte(packet))
	writeFile(t, path, bytes.Join([][]byte{ftyp, meta(offset), mdat}, nil))
}

const heifPacket = `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` +
	`<rdf:Description xmlns:xmp="http://ns.adobe.com/xap/1.0/" xmp:CreateDate="2022-10-11T12:13:14+02:00"/>` +
	`</rdf:RDF></x:xmpmeta>`

func TestHEICXMP_ItemBeyondScanWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IMG_0002.HEIC")
	writeHEIF(t, path, heicScanLimit+1024, heifPacket)

	got, prov, ok := heicXMPSource{media: NewMediaTypes(nil, nil)}.Read(path, nil)
	if !ok || prov != ProvHEICXMP {
		t.Fatalf("Read = %v, %s, %v", got, prov, ok)
	}
	want := ToLocalNaive(time.Date(2022, 10, 11, 12, 13, 14, 0, time.FixedZone("", 2*3600)))
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHEIFXMPItem_Located(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.heic")
	writeHEIF(t, path, 16, heifPacket)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	packet, ok := heifXMPItem(f)
	if !ok || string(packet) != heifPacket {
		t.Errorf("packet = %q, %v", packet, ok)
	}
}

func TestItemExtents_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"truncated": {0, 0, 0, 0, 0x44, 0x00, 0, 1, 0, 2},
	}
	for name, iloc := range tests {
		if _, ok := itemExtents(iloc, 2); ok {
			t.Errorf("%s: extents found", name)
		}
	}
	if _, ok := xmpItemID([]byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 99}); ok {
		t.Error("oversized infe accepted")
	}
}

func TestParseXMPPacket(t *testing.T) {
	tests := []struct {
		name   string
		packet string
		want   time.Time
	}{
		{"offset", heifPacket, ToLocalNaive(time.Date(2022, 10, 11, 12, 13, 14, 0, time.FixedZone("", 2*3600)))},
		{"no offset is wall clock",
			`<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:Description xmp:CreateDate="2022-10-11T12:13:14"/></x:xmpmeta>`,
			local(2022, 10, 11, 12, 13, 14)},
		{"photoshop element",
			`<x:xmpmeta xmlns:x="adobe:ns:meta/"><photoshop:DateCreated>2021-01-02T03:04:05</photoshop:DateCreated></x:xmpmeta>`,
			local(2021, 1, 2, 3, 4, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseXMPPacket([]byte(tt.packet))
			if !ok || !got.Equal(tt.want) {
				t.Errorf("got %v, %v; want %v", got, ok, tt.want)
			}
		})
	}
}
