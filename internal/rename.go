package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// RenamePair is one completed rename, all that undo needs.
type RenamePair struct {
	Source      string `json:"src"`
	Destination string `json:"dest"`
}

type RenameResult struct {
	Renamed   int
	Skipped   int
	Errors    int
	Cancelled bool
	Pairs     []RenamePair
	Failures  *ErrorStats
}

type UndoResult struct {
	Undone    int
	Errors    int
	Cancelled bool
	Failures  *ErrorStats
	// Restored lists the pairs moved back, in undo order.
	Restored []RenamePair
}

// RenameRecorder receives every per-row outcome of a rename run.
type RenameRecorder interface {
	RecordRenamed(src, dest string) error
	RecordSkipped(src, reason string) error
	RecordFailed(src string, perr *ProcessError) error
}

const (
	skipNotRenamable = "not renamable"
	skipVanished     = "source vanished"
	skipNoName       = "no timestamp"
	skipUnchanged    = "name unchanged"
)

// Rename applies rows to disk in order. Names are re-derived from each row's
// date and re-checked against the filesystem, since it may have changed
// since the preview. A failed rename is counted and the run continues.
// Nothing is ever overwritten. rec may be nil.
func Rename(ctx context.Context, rows []PreviewRow, naming NamingOptions, rec RenameRecorder, logger *log.Logger) RenameResult {
	logger = orDiscard(logger)
	res := RenameResult{Failures: NewErrorStats()}
	claims := NewClaimSet()

	record := func(err error) {
		if err != nil {
			logger.Warn("journal write failed", "err", err)
		}
	}
	skip := func(row PreviewRow, reason string) {
		res.Skipped++
		logger.Debug("skip", "file", row.Path, "reason", reason)
		if rec != nil {
			record(rec.RecordSkipped(row.Path, reason))
		}
	}
	fail := func(row PreviewRow, dest string, err error) {
		res.Errors++
		perr := CategorizeError(row.Path, err)
		perr.Context["destination"] = dest
		perr.Context["operation"] = "rename"
		res.Failures.Add(perr)
		logger.Error("rename failed", "file", row.Path, "dest", dest, "err", err)
		if rec != nil {
			record(rec.RecordFailed(row.Path, perr))
		}
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if row.IsError() || row.IsCancelled() {
			skip(row, skipNotRenamable)
			continue
		}
		if _, err := os.Lstat(row.Path); err != nil {
			skip(row, skipVanished)
			continue
		}
		candidate, ok := FormatName(row.Date, row.OldName, naming)
		if !ok {
			skip(row, skipNoName)
			continue
		}

		dir := filepath.Dir(row.Path)
		final := claims.Claim(dir, row.OldName, candidate)
		if final == row.OldName {
			skip(row, skipUnchanged)
			continue
		}
		dest := filepath.Join(dir, final)
		if _, err := os.Lstat(dest); err == nil {
			fail(row, dest, fmt.Errorf("%s: %w", dest, errDestinationExists))
			continue
		}
		if err := os.Rename(row.Path, dest); err != nil {
			fail(row, dest, err)
			continue
		}

		res.Renamed++
		res.Pairs = append(res.Pairs, RenamePair{Source: row.Path, Destination: dest})
		logger.Debug("renamed", "from", row.OldName, "to", final)
		if rec != nil {
			record(rec.RecordRenamed(row.Path, dest))
		}
	}
	return res
}

// Undo reverses pairs newest first. A pair is only reversed when its
// destination still exists and its source name is free; anything else is
// counted as an error and left alone.
func Undo(ctx context.Context, pairs []RenamePair, logger *log.Logger) UndoResult {
	logger = orDiscard(logger)
	res := UndoResult{Failures: NewErrorStats()}

	fail := func(p RenamePair, err error) {
		res.Errors++
		perr := CategorizeError(p.Destination, err)
		perr.Context["destination"] = p.Source
		perr.Context["operation"] = "undo"
		res.Failures.Add(perr)
		logger.Error("undo failed", "file", p.Destination, "err", err)
	}

	for i := len(pairs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		p := pairs[i]
		if _, err := os.Lstat(p.Destination); err != nil {
			fail(p, fmt.Errorf("%s is gone: %w", p.Destination, errUndoPrecondition))
			continue
		}
		if _, err := os.Lstat(p.Source); err == nil {
			fail(p, fmt.Errorf("%s is occupied: %w", p.Source, errUndoPrecondition))
			continue
		}
		if err := os.Rename(p.Destination, p.Source); err != nil {
			fail(p, err)
			continue
		}
		res.Undone++
		res.Restored = append(res.Restored, p)
		logger.Debug("restored", "file", p.Source)
	}
	return res
}
