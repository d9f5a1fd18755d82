package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	MinWorkers = 1
	MaxWorkers = 32
)

// ResolveWorkers turns a configured worker count into a pool size. n <= 0
// means automatic: twice the CPU count, kept between 4 and 12.
func ResolveWorkers(n int) int {
	if n > 0 {
		return max(MinWorkers, min(n, MaxWorkers))
	}
	return max(4, min(2*runtime.NumCPU(), 12))
}

// ParseWorkers accepts "auto" (returned as 0) or a number in 1..32.
func ParseWorkers(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "auto" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < MinWorkers || n > MaxWorkers {
		return 0, fmt.Errorf("workers must be auto or %d-%d, got %q", MinWorkers, MaxWorkers, s)
	}
	return n, nil
}

// ScanRequest describes one scan run.
type ScanRequest struct {
	Folder       string
	Recursive    bool
	MediaOnly    bool
	SkipSidecars bool
	Read         ReadOptions
	Naming       NamingOptions
	Parallel     bool
	// Workers is the pool size; 0 picks one from the CPU count.
	Workers    int
	Generation uint64
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventRow
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventRow:
		return "row"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

type Progress struct {
	Processed int
	Total     int
	Renamable int
}

func (p Progress) String() string {
	return fmt.Sprintf("Scanning… (%d/%d)", p.Processed, p.Total)
}

// ScanEvent is one message of a scan's output stream. Rows arrive in
// enumeration order.
type ScanEvent struct {
	Generation uint64
	Kind       EventKind
	Row        PreviewRow
	Index      int
	Progress   Progress
	Summary    *ScanSummary
	ToolInfo   string
	Err        error
}

type ScanSummary struct {
	Generation uint64
	Folder     string
	Rows       []PreviewRow
	Total      int
	Renamable  int
	ToolInfo   string
	Sources    string
	Cancelled  bool
	Duration   time.Duration
	// Failures counts rows whose date resolution failed.
	Failures *ErrorStats
}

// Scanner resolves dates and proposed names for every file in a folder.
type Scanner struct {
	tool  *ExifToolSession
	media MediaTypes
	log   *log.Logger

	// onFileStart runs before each file's cancellation check. Tests only.
	onFileStart func(index int)
}

func NewScanner(tool *ExifToolSession, media MediaTypes, logger *log.Logger) *Scanner {
	return &Scanner{tool: tool, media: media, log: orDiscard(logger)}
}

type scanResult struct {
	index int
	row   PreviewRow
}

// Scan runs one scan. Events are sent with blocking sends, so the consumer
// must drain the channel until the terminal event; events may be nil.
// Cancellation is not an error: the summary reports it and every file not
// started gets a cancelled row. Only enumeration failures return an error.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest, events chan<- ScanEvent) (*ScanSummary, error) {
	start := time.Now()
	send := func(ev ScanEvent) {
		if events == nil {
			return
		}
		ev.Generation = req.Generation
		events <- ev
	}

	opts := EnumerateOptions{
		Recursive:    req.Recursive,
		SkipSidecars: req.SkipSidecars,
		OnError: func(path string, err error) {
			s.log.Warn("skipping unreadable directory", "path", path, "err", err)
		},
	}
	if req.MediaOnly {
		media := s.media
		opts.Media = &media
	}
	files, err := EnumerateFiles(req.Folder, opts)
	if err != nil {
		send(ScanEvent{Kind: EventFailed, Err: err, ToolInfo: s.tool.Info()})
		return nil, err
	}

	total := len(files)
	s.log.Info("scan started", "folder", req.Folder, "files", total, "generation", req.Generation)
	send(ScanEvent{Kind: EventStarted, Progress: Progress{Total: total}, ToolInfo: s.tool.Info()})

	var records map[string]*ToolRecord
	if s.tool.Available() && total > 0 {
		records = s.tool.MetadataMany(ctx, files)
		s.log.Debug("exiftool batch phase done", "records", len(records))
	}

	resolver := NewResolver(req.Read, s.tool, s.media, s.log)
	workers := 1
	if req.Parallel && total > 1 {
		workers = min(ResolveWorkers(req.Workers), total)
	}

	results := make(chan scanResult, workers)
	go func() {
		defer close(results)
		if workers == 1 {
			for i, path := range files {
				results <- scanResult{i, s.processOne(ctx, i, path, resolver, records)}
			}
			return
		}
		var g errgroup.Group
		g.SetLimit(workers)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				results <- scanResult{i, s.processOne(ctx, i, path, resolver, records)}
				return nil
			})
		}
		_ = g.Wait()
	}()

	// Single release loop: buffers out-of-order completions and names rows
	// strictly in enumeration order, so collision suffixes are deterministic.
	pending := make(map[int]PreviewRow)
	rows := make([]PreviewRow, 0, total)
	claims := NewClaimSet()
	failures := NewErrorStats()
	renamable := 0
	for res := range results {
		pending[res.index] = res.row
		for {
			row, ok := pending[len(rows)]
			if !ok {
				break
			}
			delete(pending, len(rows))
			switch {
			case row.IsError():
				detail := strings.TrimPrefix(row.Status, statusErrorPrefix)
				failures.Add(CategorizeError(row.Path, fmt.Errorf("%s: %w: %s", row.OldName, errMetadataRead, detail)))
			case !row.IsCancelled():
				row = nameRow(row, req.Naming, claims)
			}
			if row.Renamable() {
				renamable++
			}
			rows = append(rows, row)
			send(ScanEvent{
				Kind:     EventRow,
				Row:      row,
				Index:    len(rows) - 1,
				Progress: Progress{Processed: len(rows), Total: total, Renamable: renamable},
			})
		}
	}

	summary := &ScanSummary{
		Generation: req.Generation,
		Folder:     req.Folder,
		Rows:       rows,
		Total:      total,
		Renamable:  renamable,
		ToolInfo:   s.tool.Info(),
		Sources:    resolver.Describe(),
		Cancelled:  ctx.Err() != nil,
		Duration:   time.Since(start),
		Failures:   failures,
	}
	s.log.Info("scan finished", "files", total, "renamable", renamable, "errors", failures.Total, "cancelled", summary.Cancelled, "took", summary.Duration.Round(time.Millisecond))
	send(ScanEvent{Kind: EventFinished, Summary: summary, ToolInfo: summary.ToolInfo,
		Progress: Progress{Processed: len(rows), Total: total, Renamable: renamable}})
	return summary, nil
}

// recordFor returns the prefetched exiftool record. A file missing from the
// batch gets an empty record so the resolver does not query it again.
func (s *Scanner) recordFor(path string, records map[string]*ToolRecord) *ToolRecord {
	if !s.tool.Available() {
		return nil
	}
	if rec, ok := records[normPath(path)]; ok {
		return rec
	}
	return &ToolRecord{}
}

func (s *Scanner) processOne(ctx context.Context, index int, path string, resolver *Resolver, records map[string]*ToolRecord) (row PreviewRow) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("resolving file failed", "file", path, "err", r)
			row = errorRow(path, fmt.Sprint(r))
		}
	}()
	if s.onFileStart != nil {
		s.onFileStart(index)
	}
	if ctx.Err() != nil {
		return cancelledRow(path)
	}
	d := resolver.Resolve(path, s.recordFor(path, records))
	return PreviewRow{OldName: filepath.Base(path), Date: d, Path: path}
}
