package internal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const journalFile = "journal.jsonl"

// Journal is the append-only record of one rename run. It is what lets
// undo work after the process that renamed the files has exited.
type Journal struct {
	ID     string   // 2025-01-15-103045-1a2b3c4d
	Dir    string   // <state dir>/journals/<ID>
	Folder string   // folder that was renamed
	file   *os.File // journal.jsonl, append only
	mu     sync.Mutex
	stats  JournalStats
}

type JournalStats struct {
	Renamed int
	Skipped int
	Errors  int
}

// JournalEvent is a single JSON line of the journal.
type JournalEvent struct {
	Event  string `json:"event"`
	Ts     string `json:"ts"`
	Src    string `json:"src,omitempty"`
	Dest   string `json:"dest,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// run_start / run_end / undo fields
	RunID      string `json:"run_id,omitempty"`
	Folder     string `json:"folder,omitempty"`
	Template   string `json:"template,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
	TotalRows  int    `json:"total_rows,omitempty"`
	Renamed    int    `json:"renamed,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
	ErrorCount int    `json:"errors,omitempty"`
	Undone     int    `json:"undone,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

func journalsDir(stateDir string) string {
	return filepath.Join(stateDir, "journals")
}

func newRunID(now time.Time) string {
	return now.Format("2006-01-02-150405") + "-" + uuid.NewString()[:8]
}

// NewJournal creates a fresh journal under stateDir for a rename of folder.
func NewJournal(stateDir, folder string) (*Journal, error) {
	id := newRunID(time.Now())
	dir := filepath.Join(journalsDir(stateDir), id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, journalFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}
	return &Journal{ID: id, Dir: dir, Folder: folder, file: f}, nil
}

// Path is the journal file, the argument undo takes.
func (j *Journal) Path() string {
	return filepath.Join(j.Dir, journalFile)
}

func (j *Journal) Start(totalRows int, naming NamingOptions) error {
	return j.write(JournalEvent{
		Event:     "run_start",
		RunID:     j.ID,
		Folder:    j.Folder,
		Template:  naming.Template.String(),
		Pattern:   string(naming.Pattern),
		TotalRows: totalRows,
	})
}

func (j *Journal) RecordRenamed(src, dest string) error {
	j.mu.Lock()
	j.stats.Renamed++
	j.mu.Unlock()
	return j.write(JournalEvent{Event: "renamed", Src: src, Dest: dest})
}

func (j *Journal) RecordSkipped(src, reason string) error {
	j.mu.Lock()
	j.stats.Skipped++
	j.mu.Unlock()
	return j.write(JournalEvent{Event: "skipped", Src: src, Reason: reason})
}

func (j *Journal) RecordFailed(src string, perr *ProcessError) error {
	j.mu.Lock()
	j.stats.Errors++
	j.mu.Unlock()
	return j.write(JournalEvent{
		Event:           "rename_error",
		Src:             src,
		Dest:            perr.Context["destination"],
		Error:           perr.OriginalErr.Error(),
		ErrorCategory:   string(perr.Category),
		ErrorSeverity:   string(perr.Severity),
		ErrorSuggestion: perr.Suggestion,
	})
}

// End writes the closing summary.
func (j *Journal) End() error {
	st := j.Stats()
	return j.write(JournalEvent{
		Event:      "run_end",
		RunID:      j.ID,
		Renamed:    st.Renamed,
		Skipped:    st.Skipped,
		ErrorCount: st.Errors,
	})
}

func (j *Journal) Stats() JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

func (j *Journal) Close() error {
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// write appends one event as a JSON line and syncs it to disk.
func (j *Journal) write(ev JournalEvent) error {
	if ev.Ts == "" {
		ev.Ts = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to journal: %w", err)
	}
	return j.file.Sync()
}

// LoadJournal reads every event of a journal file.
func LoadJournal(path string) ([]JournalEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []JournalEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev JournalEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// LoadPairs rebuilds the rename pairs of a journal that are still to be
// undone, in rename order. Pairs restored by an earlier undo are left out,
// so an undo that failed or was cancelled part way can be run again.
func LoadPairs(path string) ([]RenamePair, error) {
	events, err := LoadJournal(path)
	if err != nil {
		return nil, err
	}
	var pairs []RenamePair
	restored := make(map[RenamePair]int)
	for _, ev := range events {
		switch ev.Event {
		case "renamed":
			pairs = append(pairs, RenamePair{Source: ev.Src, Destination: ev.Dest})
		case "restored":
			restored[RenamePair{Source: ev.Src, Destination: ev.Dest}]++
		}
	}
	// A later rename may reuse a pair, so each restore cancels the newest
	// matching rename.
	for i := len(pairs) - 1; i >= 0 && len(restored) > 0; i-- {
		if n := restored[pairs[i]]; n > 0 {
			restored[pairs[i]] = n - 1
			pairs = append(pairs[:i], pairs[i+1:]...)
		}
	}
	return pairs, nil
}

// LatestJournal returns the newest journal file under stateDir.
func LatestJournal(stateDir string) (string, error) {
	entries, err := os.ReadDir(journalsDir(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoJournal
		}
		return "", err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(journalsDir(stateDir), e.Name(), journalFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	if len(ids) == 0 {
		return "", ErrNoJournal
	}
	// Run ids start with a sortable timestamp.
	sort.Strings(ids)
	return filepath.Join(journalsDir(stateDir), ids[len(ids)-1], journalFile), nil
}

// AppendUndo records the outcome of an undo run: one "restored" event per
// pair moved back, then an "undo" summary. Pairs that failed or were not
// reached stay pending for the next undo.
func AppendUndo(path string, res UndoResult) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	ts := time.Now().UTC().Format(time.RFC3339)
	events := make([]JournalEvent, 0, len(res.Restored)+1)
	for _, p := range res.Restored {
		events = append(events, JournalEvent{Event: "restored", Ts: ts, Src: p.Source, Dest: p.Destination})
	}
	events = append(events, JournalEvent{
		Event:      "undo",
		Ts:         ts,
		Undone:     res.Undone,
		ErrorCount: res.Errors,
		Cancelled:  res.Cancelled,
	})

	var buf []byte
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		buf = append(append(buf, data...), '\n')
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}
