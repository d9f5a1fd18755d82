package internal

import (
	"encoding/binary"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	mp4 "github.com/abema/go-mp4"
	"github.com/charmbracelet/log"
)

// appleEpochOffset is the number of seconds between 1904-01-01 and 1970-01-01 UTC.
const appleEpochOffset = 2082844800

// rawBoxLimit caps how much of a metadata box is read into memory.
const rawBoxLimit = 1 << 20

var recordedDateBox = mp4.BoxType{0xA9, 'd', 'a', 'y'}

var isoStamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)

// containerKey is one candidate date key in an ISO-BMFF/QuickTime file.
type containerKey struct {
	name string
	read func(r io.ReadSeeker) (time.Time, bool)
}

// containerKeys are consulted in this order; the first parseable value wins.
var containerKeys = []containerKey{
	{"com.apple.quicktime.creationdate", readQuickTimeCreationDate},
	{"recorded_date", readRecordedDate},
	{"encoded_date", readEncodedDate},
	{"tagged_date", readTaggedDate},
}

// containerSource reads video container metadata with go-mp4.
type containerSource struct {
	media MediaTypes
	log   *log.Logger
}

func (containerSource) Name() string { return "mediainfo" }

func (s containerSource) Read(path string, _ *ToolRecord) (time.Time, Provenance, bool) {
	if !s.media.IsVideo(path) {
		return time.Time{}, "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, "", false
	}
	defer f.Close()

	t, key, ok := readContainerDate(f)
	if !ok {
		return time.Time{}, "", false
	}
	s.log.Debug("container date", "file", path, "key", key)
	return t, ProvMediaInfo, true
}

// readContainerDate tries every key, recovering from parser panics on
// malformed boxes.
func readContainerDate(r io.ReadSeeker) (time.Time, string, bool) {
	for _, k := range containerKeys {
		if t, ok := safeRead(k.read, r); ok {
			return t, k.name, true
		}
	}
	return time.Time{}, "", false
}

func safeRead(fn func(io.ReadSeeker) (time.Time, bool), r io.ReadSeeker) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return time.Time{}, false
	}
	return fn(r)
}

// boxBody returns the payload bytes of the first box at path.
func boxBody(r io.ReadSeeker, path mp4.BoxPath) ([]byte, bool) {
	infos, err := mp4.ExtractBox(r, nil, path)
	if err != nil || len(infos) == 0 {
		return nil, false
	}
	bi := infos[0]
	if bi.Size <= bi.HeaderSize || bi.Size-bi.HeaderSize > rawBoxLimit {
		return nil, false
	}
	buf := make([]byte, bi.Size-bi.HeaderSize)
	if _, err := bi.SeekToPayload(r); err != nil {
		return nil, false
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, false
	}
	return buf, true
}

// parseStamp reads a date from a single metadata value. The value is used
// whole when it parses; otherwise the first ISO stamp inside it is tried.
func parseStamp(value []byte) (time.Time, bool) {
	text := strings.TrimSpace(strings.TrimRight(string(value), "\x00"))
	if t, ok := ParseAny(text); ok {
		return t, true
	}
	m := isoStamp.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	return ParseAny(m)
}

// quickTimeItems returns the values of the moov/meta item list keyed by
// their mdta key names. go-mp4 resolves numbered ilst entries against the
// keys box, so each value is bounded by its own data atom.
func quickTimeItems(r io.ReadSeeker) (map[string][]byte, error) {
	var keys []string
	items := make(map[string][]byte)
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		path := h.Path
		switch {
		case len(path) == 1 && path[0] == mp4.BoxTypeMoov(),
			len(path) == 2 && path[1] == mp4.BoxTypeMeta(),
			len(path) == 3 && path[1] == mp4.BoxTypeMeta() && path[2] == mp4.BoxTypeIlst():
			return h.Expand()
		case len(path) == 3 && path[1] == mp4.BoxTypeMeta() && path[2] == mp4.BoxTypeKeys():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if k, ok := box.(*mp4.Keys); ok {
				for _, e := range k.Entries {
					keys = append(keys, string(e.KeyValue))
				}
			}
		case len(path) == 4 && path[2] == mp4.BoxTypeIlst():
			if !h.BoxInfo.IsSupportedType() || h.BoxInfo.Size > rawBoxLimit {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			item, ok := box.(*mp4.Item)
			if !ok {
				return nil, nil
			}
			idx := int(binary.BigEndian.Uint32(h.BoxInfo.Type[:]))
			if idx >= 1 && idx <= len(keys) {
				items[keys[idx-1]] = item.Data.Data
			}
		}
		return nil, nil
	})
	return items, err
}

func readQuickTimeCreationDate(r io.ReadSeeker) (time.Time, bool) {
	// Items read before a malformed box are still usable.
	items, _ := quickTimeItems(r)
	value, ok := items["com.apple.quicktime.creationdate"]
	if !ok {
		return time.Time{}, false
	}
	return parseStamp(value)
}

// readRecordedDate reads the moov/udta ©day atom: either a QuickTime text
// record (u16 length, u16 language, text) or an iTunes-style data atom.
func readRecordedDate(r io.ReadSeeker) (time.Time, bool) {
	body, ok := boxBody(r, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeUdta(), recordedDateBox})
	if !ok || len(body) < 4 {
		return time.Time{}, false
	}
	if len(body) >= 16 && string(body[4:8]) == "data" {
		size := int(binary.BigEndian.Uint32(body[:4]))
		if size < 16 || size > len(body) {
			return time.Time{}, false
		}
		return parseStamp(body[16:size])
	}
	n := int(binary.BigEndian.Uint16(body[:2]))
	if 4+n > len(body) {
		return time.Time{}, false
	}
	return parseStamp(body[4 : 4+n])
}

func appleTime(secs uint64) (time.Time, bool) {
	if secs <= appleEpochOffset {
		return time.Time{}, false
	}
	return ToLocalNaive(time.Unix(int64(secs)-appleEpochOffset, 0).UTC()), true
}

func readEncodedDate(r io.ReadSeeker) (time.Time, bool) {
	boxes, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return time.Time{}, false
	}
	for _, b := range boxes {
		if mvhd, ok := b.Payload.(*mp4.Mvhd); ok {
			return appleTime(mvhd.GetCreationTime())
		}
	}
	return time.Time{}, false
}

func readTaggedDate(r io.ReadSeeker) (time.Time, bool) {
	boxes, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeTkhd()})
	if err != nil {
		return time.Time{}, false
	}
	for _, b := range boxes {
		if tkhd, ok := b.Payload.(*mp4.Tkhd); ok {
			return appleTime(tkhd.GetCreationTime())
		}
	}
	return time.Time{}, false
}
