package internal

import (
	"bytes"
	"io"

	mp4 "github.com/abema/go-mp4"
)

var (
	boxTypeIinf = mp4.StrToBoxType("iinf")
	boxTypeIloc = mp4.StrToBoxType("iloc")
)

const xmpContentType = "application/rdf+xml"

// byteCursor reads big-endian fields from a box payload. Any read past the
// end sets bad and returns zero values from then on.
type byteCursor struct {
	b   []byte
	bad bool
}

func (c *byteCursor) uint(n int) uint64 {
	if c.bad || n > len(c.b) {
		c.bad = true
		return 0
	}
	var v uint64
	for _, x := range c.b[:n] {
		v = v<<8 | uint64(x)
	}
	c.b = c.b[n:]
	return v
}

func (c *byteCursor) skip(n int) { c.uint(n) }

func (c *byteCursor) cstring() string {
	if c.bad {
		return ""
	}
	i := bytes.IndexByte(c.b, 0)
	if i < 0 {
		c.bad = true
		return ""
	}
	s := string(c.b[:i])
	c.b = c.b[i+1:]
	return s
}

// heifExtent is a byte range of an item in the file.
type heifExtent struct {
	offset, length uint64
}

// heifXMPItem reads the XMP packet of a HEIF file through its item boxes:
// iinf names the item whose content type is RDF/XML and iloc says where its
// bytes live, which may be anywhere in the file.
func heifXMPItem(r io.ReadSeeker) (packet []byte, ok bool) {
	defer func() {
		if recover() != nil {
			packet, ok = nil, false
		}
	}()
	metas, err := mp4.ExtractBox(r, nil, mp4.BoxPath{mp4.BoxTypeMeta()})
	if err != nil || len(metas) == 0 {
		return nil, false
	}
	boxes, err := mp4.ExtractBoxes(r, metas[0], []mp4.BoxPath{{boxTypeIinf}, {boxTypeIloc}})
	if err != nil {
		return nil, false
	}
	var iinf, iloc []byte
	for _, bi := range boxes {
		body, ok := readBoxPayload(r, bi)
		if !ok {
			continue
		}
		switch bi.Type {
		case boxTypeIinf:
			iinf = body
		case boxTypeIloc:
			iloc = body
		}
	}
	id, found := xmpItemID(iinf)
	if !found {
		return nil, false
	}
	extents, found := itemExtents(iloc, id)
	if !found {
		return nil, false
	}

	for _, e := range extents {
		if e.length == 0 || uint64(len(packet))+e.length > rawBoxLimit {
			return nil, false
		}
		if _, err := r.Seek(int64(e.offset), io.SeekStart); err != nil {
			return nil, false
		}
		buf := make([]byte, e.length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, false
		}
		packet = append(packet, buf...)
	}
	if p, ok := extractXMPPacket(packet); ok {
		return p, true
	}
	return packet, len(packet) > 0
}

func readBoxPayload(r io.ReadSeeker, bi *mp4.BoxInfo) ([]byte, bool) {
	if bi.Size <= bi.HeaderSize || bi.Size-bi.HeaderSize > rawBoxLimit {
		return nil, false
	}
	if _, err := bi.SeekToPayload(r); err != nil {
		return nil, false
	}
	buf := make([]byte, bi.Size-bi.HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, false
	}
	return buf, true
}

// xmpItemID finds the mime item carrying RDF/XML in an iinf payload. Only
// infe version 2 and 3 entries have item types; older ones are skipped.
func xmpItemID(iinf []byte) (uint32, bool) {
	c := &byteCursor{b: iinf}
	version := c.uint(1)
	c.skip(3)
	var count uint64
	if version == 0 {
		count = c.uint(2)
	} else {
		count = c.uint(4)
	}
	for i := uint64(0); i < count && !c.bad; i++ {
		size := int(c.uint(4))
		typ := c.uint(4)
		if c.bad || size < 8 || size-8 > len(c.b) {
			return 0, false
		}
		entry := &byteCursor{b: c.b[:size-8]}
		c.skip(size - 8)
		if typ != uint64(be32("infe")) {
			continue
		}
		ver := entry.uint(1)
		entry.skip(3)
		if ver < 2 {
			continue
		}
		var id uint64
		if ver == 2 {
			id = entry.uint(2)
		} else {
			id = entry.uint(4)
		}
		entry.skip(2) // protection index
		itemType := entry.uint(4)
		entry.cstring() // name
		if itemType != uint64(be32("mime")) {
			continue
		}
		if ct := entry.cstring(); !entry.bad && ct == xmpContentType {
			return uint32(id), true
		}
	}
	return 0, false
}

// itemExtents returns the file extents of item id from an iloc payload.
// Items built from other items or stored in idat are not supported.
func itemExtents(iloc []byte, id uint32) ([]heifExtent, bool) {
	c := &byteCursor{b: iloc}
	version := c.uint(1)
	c.skip(3)
	sizes := c.uint(1)
	offsetSize, lengthSize := int(sizes>>4), int(sizes&0x0f)
	sizes = c.uint(1)
	baseOffsetSize, indexSize := int(sizes>>4), int(sizes&0x0f)
	if version == 0 {
		indexSize = 0
	}
	var count uint64
	if version < 2 {
		count = c.uint(2)
	} else {
		count = c.uint(4)
	}

	for i := uint64(0); i < count && !c.bad; i++ {
		var itemID uint64
		if version < 2 {
			itemID = c.uint(2)
		} else {
			itemID = c.uint(4)
		}
		method := uint64(0)
		if version >= 1 {
			method = c.uint(2) & 0x0f
		}
		c.skip(2) // data reference index
		base := c.uint(baseOffsetSize)
		extentCount := int(c.uint(2))
		extents := make([]heifExtent, 0, extentCount)
		for j := 0; j < extentCount && !c.bad; j++ {
			c.skip(indexSize)
			off := c.uint(offsetSize)
			length := c.uint(lengthSize)
			extents = append(extents, heifExtent{offset: base + off, length: length})
		}
		if c.bad {
			return nil, false
		}
		if uint32(itemID) == id {
			if method != 0 || len(extents) == 0 {
				return nil, false
			}
			return extents, true
		}
	}
	return nil, false
}

func be32(s string) uint32 {
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}
