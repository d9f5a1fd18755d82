package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// DefaultTemplate renders as 2023-04-13_14-30-15.
const DefaultTemplate = "%Y-%m-%d_%H-%M-%S"

// PatternMode arranges the date stamp and the original stem.
type PatternMode string

const (
	PatternDate         PatternMode = "date"
	PatternDateOriginal PatternMode = "date-original"
	PatternOriginal     PatternMode = "original"
	PatternOriginalDate PatternMode = "original-date"
)

func ParsePatternMode(s string) (PatternMode, error) {
	switch m := PatternMode(strings.ToLower(strings.TrimSpace(s))); m {
	case PatternDate, PatternDateOriginal, PatternOriginal, PatternOriginalDate:
		return m, nil
	case "":
		return PatternDate, nil
	default:
		return "", fmt.Errorf("unknown pattern %q (want date, date-original, original or original-date)", s)
	}
}

// Template is a strftime naming template, e.g. "%Y%m%d_%I%M%p".
type Template struct {
	src string
}

// ParseTemplate wraps s; an empty template means DefaultTemplate.
func ParseTemplate(s string) Template {
	if strings.TrimSpace(s) == "" {
		s = DefaultTemplate
	}
	return Template{src: s}
}

func (t Template) String() string { return t.src }

// Format renders the template for ts.
func (t Template) Format(ts time.Time) string {
	if t.src == "" {
		t.src = DefaultTemplate
	}
	return strftime.Format(t.src, ts)
}

// NamingOptions is everything that shapes a new name besides the date.
type NamingOptions struct {
	Template Template
	Prefix   string
	Suffix   string
	Pattern  PatternMode
}

func DefaultNamingOptions() NamingOptions {
	return NamingOptions{Template: ParseTemplate(DefaultTemplate), Pattern: PatternDate}
}

// FormatName builds the candidate name for a file. It reports false when the
// pattern needs a date and d has none. The extension is kept as-is.
func FormatName(d ResolvedDate, original string, n NamingOptions) (string, bool) {
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)
	if n.Pattern == PatternOriginal {
		return n.Prefix + stem + n.Suffix + ext, true
	}
	if !d.Found {
		return "", false
	}

	stamp := n.Template.Format(d.Time)
	switch n.Pattern {
	case PatternDateOriginal:
		return n.Prefix + stamp + "_" + stem + n.Suffix + ext, true
	case PatternOriginalDate:
		return n.Prefix + stem + "_" + stamp + n.Suffix + ext, true
	default:
		return n.Prefix + stamp + n.Suffix + ext, true
	}
}

// nameTaken reports whether name is claimed this run or present on disk.
func nameTaken(dir, name string, claimed map[string]struct{}) bool {
	if _, ok := claimed[name]; ok {
		return true
	}
	_, err := os.Lstat(filepath.Join(dir, name))
	return !os.IsNotExist(err)
}

// UniqueName returns candidate, or candidate with _1, _2, ... before the
// extension, such that the result is neither in claimed nor on disk in dir.
// The returned name is added to claimed.
func UniqueName(dir, candidate string, claimed map[string]struct{}) string {
	name := candidate
	if nameTaken(dir, name, claimed) {
		ext := filepath.Ext(candidate)
		base := strings.TrimSuffix(candidate, ext)
		for i := 1; ; i++ {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
			if !nameTaken(dir, name, claimed) {
				break
			}
		}
	}
	claimed[name] = struct{}{}
	return name
}

// ClaimSet tracks names handed out per directory during one run. It is not
// safe for concurrent use; a single goroutine owns it.
type ClaimSet struct {
	dirs map[string]map[string]struct{}
}

func NewClaimSet() *ClaimSet {
	return &ClaimSet{dirs: make(map[string]map[string]struct{})}
}

func (c *ClaimSet) dir(dir string) map[string]struct{} {
	set, ok := c.dirs[dir]
	if !ok {
		set = make(map[string]struct{})
		c.dirs[dir] = set
	}
	return set
}

// Claim resolves a unique name for candidate in dir. A file whose current
// name already equals candidate keeps it, provided no earlier row took it.
func (c *ClaimSet) Claim(dir, current, candidate string) string {
	set := c.dir(dir)
	if candidate == current {
		if _, taken := set[candidate]; !taken {
			set[candidate] = struct{}{}
			return candidate
		}
	}
	return UniqueName(dir, candidate, set)
}

const (
	NameNoTimestamp = "(no timestamp)"
	NameCancelled   = "(cancelled)"

	StatusOK          = "OK"
	StatusNoTimestamp = "Skipped (no timestamp)"
	StatusCancelled   = "Skipped (cancelled)"
	statusErrorPrefix = "ERROR:"
)

func StatusError(detail string) string {
	return statusErrorPrefix + detail
}

// PreviewRow is one file in a scan result.
type PreviewRow struct {
	OldName string
	NewName string
	Date    ResolvedDate
	Path    string
	Status  string
}

func (r PreviewRow) IsError() bool {
	return strings.HasPrefix(r.Status, statusErrorPrefix)
}

func (r PreviewRow) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// Renamable reports whether the row has a usable new name.
func (r PreviewRow) Renamable() bool {
	return r.Status == StatusOK
}

func cancelledRow(path string) PreviewRow {
	return PreviewRow{
		OldName: filepath.Base(path),
		NewName: NameCancelled,
		Date:    ResolvedDate{Source: ProvCancelled},
		Path:    path,
		Status:  StatusCancelled,
	}
}

func errorRow(path string, detail string) PreviewRow {
	return PreviewRow{
		OldName: filepath.Base(path),
		NewName: NameNoTimestamp,
		Date:    ResolvedDate{Source: ProvError},
		Path:    path,
		Status:  StatusError(detail),
	}
}

// nameRow fills in NewName and Status from the row's date, claiming the
// name in claims.
func nameRow(row PreviewRow, naming NamingOptions, claims *ClaimSet) PreviewRow {
	candidate, ok := FormatName(row.Date, row.OldName, naming)
	if !ok {
		row.NewName = NameNoTimestamp
		row.Status = StatusNoTimestamp
		return row
	}
	row.NewName = claims.Claim(filepath.Dir(row.Path), row.OldName, candidate)
	row.Status = StatusOK
	return row
}

// Reapply re-derives names for rows from an earlier scan without reading any
// metadata. Error and cancelled rows are returned unchanged.
func Reapply(rows []PreviewRow, naming NamingOptions) []PreviewRow {
	claims := NewClaimSet()
	out := make([]PreviewRow, len(rows))
	for i, r := range rows {
		if r.IsError() || r.IsCancelled() {
			out[i] = r
			continue
		}
		out[i] = nameRow(r, naming, claims)
	}
	return out
}

// FilterRows keeps rows whose old or new name contains needle, ignoring case.
func FilterRows(rows []PreviewRow, needle string) []PreviewRow {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return rows
	}
	var out []PreviewRow
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.OldName), needle) ||
			strings.Contains(strings.ToLower(r.NewName), needle) {
			out = append(out, r)
		}
	}
	return out
}
