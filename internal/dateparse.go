package internal

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order by ParseAny. Go accepts a fractional
// second after the seconds field even when the layout omits it.
var dateLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006:01:02 15:04:05-0700",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
}

// bareLayouts are retried once the zone suffix has been stripped.
var bareLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	zoneSuffix = regexp.MustCompile(`([+-]\d{2}:?\d{2}|Z)$`)
)

// ToLocalNaive converts t to local time and drops the offset, so every
// timestamp in the pipeline compares and formats as a plain wall clock.
func ToLocalNaive(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

// wallClock re-stamps the wall clock of t as local time without shifting it.
// Used for decoders that hand back naive EXIF values labelled as UTC.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
}

// ParseAny parses the date strings found in EXIF, QuickTime, XMP and ISO-8601
// sources. A failure is reported as false, never as an error.
func ParseAny(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = spaceRun.ReplaceAllString(s, " ")

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ToLocalNaive(t), true
		}
	}

	bare := strings.TrimSpace(zoneSuffix.ReplaceAllString(s, ""))
	if i := strings.LastIndexByte(bare, '.'); i > 0 && isDigits(bare[i+1:]) {
		bare = bare[:i]
	}
	for _, layout := range bareLayouts {
		if t, err := time.ParseInLocation(layout, bare, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// filenamePattern is one entry of the filename precedence list. Vendor
// patterns come first so they outrank the generic ones. Digit runs are
// delimited by non-digits rather than \b so that IMG_... and PXL_... stems,
// where '_' is a word character, still match.
type filenamePattern struct {
	name string
	rx   *regexp.Regexp
}

var filenamePatterns = []filenamePattern{
	{"dji_fly", regexp.MustCompile(`(?i)(?:^|[^a-z])DJI[_-]?FLY[_-]((?:19|20)\d{6})[_-](\d{6})(?:\D|$)`)},
	{"dji", regexp.MustCompile(`(?i)(?:^|[^a-z])DJI[_-]((?:19|20)\d{6})[_-](\d{6})(?:\D|$)`)},
	{"compact", regexp.MustCompile(`(?:^|\D)((?:19|20)\d{6})[_-](\d{6})(?:\D|$)`)},
	{"img_vid", regexp.MustCompile(`(?i)(?:^|[^a-z])(?:IMG|VID)[-_]?((?:19|20)\d{6})[_-](\d{6})(?:\D|$)`)},
	{"iso", regexp.MustCompile(`(?:^|\D)(\d{4})[-_](\d{2})[-_](\d{2})[ _-](\d{2})[-_](\d{2})[-_](\d{2})(?:\D|$)`)},
	{"whatsapp", regexp.MustCompile(`(?i)(?:^|[^a-z])IMG-(\d{8})-WA\d+`)},
}

// ParseFilename extracts a timestamp from the stem of a filename.
func ParseFilename(name string) (time.Time, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, p := range filenamePatterns {
		m := p.rx.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		var compact string
		switch p.name {
		case "iso":
			compact = strings.Join(m[1:7], "")
		case "whatsapp":
			compact = m[1] + "000000"
		default:
			compact = m[1] + m[2]
		}
		t, err := time.ParseInLocation("20060102150405", compact, time.Local)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

var xmpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)xmp:CreateDate="([^"]+)"`),
	regexp.MustCompile(`(?i)<xmp:CreateDate>\s*([^<]+?)\s*</xmp:CreateDate>`),
	regexp.MustCompile(`(?i)<photoshop:DateCreated>\s*([^<]+?)\s*</photoshop:DateCreated>`),
}

// ParseXMP looks for a creation date in an XMP packet: the inline attribute
// form, then the element form, then the legacy photoshop element.
func ParseXMP(text string) (time.Time, bool) {
	for _, rx := range xmpPatterns {
		m := rx.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t, ok := ParseAny(m[1]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

var takeoutKeys = []string{"photoTakenTime", "creationTime", "modificationTime"}

// ParseTakeoutJSON reads the epoch timestamp of a Google Takeout sidecar.
func ParseTakeoutJSON(data []byte) (time.Time, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return time.Time{}, false
	}
	for _, key := range takeoutKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var node map[string]json.RawMessage
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		if t, ok := epochValue(node["timestamp"]); ok {
			return t, true
		}
	}
	return epochValue(obj["timestamp"])
}

// epochValue accepts the timestamp as a JSON string or number.
func epochValue(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return time.Time{}, false
		}
		secs = int64(f)
	}
	return ToLocalNaive(time.Unix(secs, 0)), true
}
