package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrFolderMissing = errors.New("folder does not exist")
	ErrNotDirectory  = errors.New("not a directory")
	ErrNoJournal     = errors.New("no rename journal found")
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryIO        ErrorCategory = "io_error"       // File system, permissions, path length
	ErrorCategoryVanished  ErrorCategory = "vanished"       // Source or destination disappeared
	ErrorCategoryCollision ErrorCategory = "collision"      // Target name appeared after it was claimed
	ErrorCategoryMetadata  ErrorCategory = "metadata_error" // Date resolution failed while scanning
	ErrorCategoryUnknown   ErrorCategory = "unknown_error"  // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // System-level issues (read-only volume, permissions)
	ErrorSeverityError    ErrorSeverity = "error"    // File-level issues
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recoverable issues
)

// errDestinationExists is returned when a claimed name shows up on disk
// between naming and renaming.
var errDestinationExists = errors.New("destination already exists")

// errMetadataRead wraps a failure to resolve a file's date during a scan.
var errMetadataRead = errors.New("metadata read failed")

// errUndoPrecondition is returned when a recorded pair can no longer be reversed.
var errUndoPrecondition = errors.New("undo precondition failed")

// ProcessError represents a categorized rename or undo failure
type ProcessError struct {
	FilePath    string
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Context     map[string]string // destination, operation
	Suggestion  string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *ProcessError) Unwrap() error { return e.OriginalErr }

// CategorizeError analyzes an error and returns a ProcessError with category and severity
func CategorizeError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	procErr := &ProcessError{
		FilePath:    filePath,
		OriginalErr: err,
		Context:     make(map[string]string),
	}

	switch {
	case errors.Is(err, errDestinationExists):
		procErr.Category = ErrorCategoryCollision
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Another file took the target name after the preview - rescan and retry"

	case errors.Is(err, errUndoPrecondition):
		procErr.Category = ErrorCategoryVanished
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "The file was moved or replaced since the rename - restore it by hand"

	case errors.Is(err, errMetadataRead):
		procErr.Category = ErrorCategoryMetadata
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Metadata could not be read - the file keeps its name; try with exiftool installed"

	case strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access is denied"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Check write permission on the folder"

	case strings.Contains(errStr, "read-only file system"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Folder is on a read-only filesystem - check mount options"

	case strings.Contains(errStr, "file name too long") || strings.Contains(errStr, "filename extension is too long"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Resulting name is too long - shorten the prefix, suffix or template"

	case strings.Contains(errStr, "input/output error"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "I/O error - check disk health with SMART tools"

	case strings.Contains(errStr, "no such file") || strings.Contains(errStr, "cannot find the file"):
		procErr.Category = ErrorCategoryVanished
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "File disappeared during the run - check if an external drive disconnected"

	default:
		procErr.Category = ErrorCategoryUnknown
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Unexpected error - check logs for details"
	}

	return procErr
}

// ErrorStats tracks failures across one scan, rename or undo run
type ErrorStats struct {
	Total      int
	Critical   int
	Errors     int
	Warnings   int
	ByCategory map[ErrorCategory]int
	LastErrors []*ProcessError // Last 5 errors for quick diagnosis
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByCategory: make(map[ErrorCategory]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.Total++
	s.ByCategory[err.Category]++

	switch err.Severity {
	case ErrorSeverityCritical:
		s.Critical++
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

// GenerateReport creates a human-readable error report
func (s *ErrorStats) GenerateReport(operation string) string {
	var report strings.Builder

	fmt.Fprintf(&report, "\n%s encountered %d errors:\n\n", operation, s.Total)

	if s.Critical > 0 {
		fmt.Fprintf(&report, "  Critical: %d (system-level issues)\n", s.Critical)
	}
	if s.Errors > 0 {
		fmt.Fprintf(&report, "  Errors:   %d (file-level issues)\n", s.Errors)
	}
	if s.Warnings > 0 {
		fmt.Fprintf(&report, "  Warnings: %d (recoverable issues)\n", s.Warnings)
	}

	report.WriteString("\nError categories:\n")
	cats := make([]string, 0, len(s.ByCategory))
	for cat := range s.ByCategory {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)
	for _, cat := range cats {
		fmt.Fprintf(&report, "  - %s: %d\n", cat, s.ByCategory[ErrorCategory(cat)])
	}

	report.WriteString("\nRecent errors:\n")
	for i, err := range s.LastErrors {
		fmt.Fprintf(&report, "\n%d. %s\n", i+1, err.FilePath)
		fmt.Fprintf(&report, "   Category: %s | Severity: %s\n", err.Category, err.Severity)
		fmt.Fprintf(&report, "   Error: %v\n", err.OriginalErr)
		if err.Suggestion != "" {
			fmt.Fprintf(&report, "   Suggestion: %s\n", err.Suggestion)
		}
	}

	report.WriteString("\n")
	report.WriteString(s.generateSuggestions())

	return report.String()
}

func (s *ErrorStats) generateSuggestions() string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggested next steps:\n")

	if s.ByCategory[ErrorCategoryIO] > 0 {
		suggestions.WriteString("  - Check folder permissions and free space\n")
	}
	if s.ByCategory[ErrorCategoryVanished] > 0 || s.ByCategory[ErrorCategoryCollision] > 0 {
		suggestions.WriteString("  - Files changed while renaming - rescan before retrying\n")
	}
	if s.ByCategory[ErrorCategoryMetadata] > 0 {
		suggestions.WriteString("  - Rerun with --log-level debug to see which reader failed\n")
	}

	suggestions.WriteString("  - Check the rename journal for the full event log\n")

	return suggestions.String()
}
