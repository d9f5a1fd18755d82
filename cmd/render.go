package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"

	"exifrename/internal"
)

// scanWithProgress runs one scan, drawing a progress bar on w while rows
// stream in.
func scanWithProgress(ctx context.Context, env *runtimeEnv, req internal.ScanRequest, w io.Writer, quiet bool) (*internal.ScanSummary, error) {
	events := make(chan internal.ScanEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var bar *progressbar.ProgressBar
		for ev := range events {
			if quiet {
				continue
			}
			switch ev.Kind {
			case internal.EventStarted:
				fmt.Fprintf(w, "Scanning %s (%d files, %s)\n", req.Folder, ev.Progress.Total, ev.ToolInfo)
				if ev.Progress.Total > 0 {
					bar = progressbar.NewOptions(ev.Progress.Total,
						progressbar.OptionSetWriter(w),
						progressbar.OptionSetDescription("resolving"),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}
			case internal.EventRow:
				if bar != nil {
					_ = bar.Add(1)
				}
			case internal.EventFinished:
				if bar != nil {
					_ = bar.Finish()
				}
			}
		}
	}()

	summary, err := env.scanner().Scan(ctx, req, events)
	close(events)
	<-done
	return summary, err
}

// statusLine is the one-line state shown under the table.
func statusLine(s *internal.ScanSummary) string {
	if s.Cancelled {
		done := 0
		for _, r := range s.Rows {
			if !r.IsCancelled() {
				done++
			}
		}
		return fmt.Sprintf("Cancelled (%d/%d resolved)", done, s.Total)
	}
	return fmt.Sprintf("Ready: %d of %d files can be renamed", s.Renamable, s.Total)
}

func printRows(w io.Writer, rows []internal.PreviewRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OLD NAME\tNEW NAME\tSTATUS\tSOURCE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.OldName, r.NewName, r.Status, r.Date.Source)
	}
	tw.Flush()
}

func printSummary(w io.Writer, s *internal.ScanSummary) {
	fmt.Fprintf(w, "\n%s\n", statusLine(s))
	fmt.Fprintf(w, "Metadata: %s\n", s.ToolInfo)
	fmt.Fprintf(w, "Sources:  %s\n", s.Sources)
	fmt.Fprintf(w, "Took:     %s\n", s.Duration.Round(time.Millisecond))
	if s.Failures != nil && s.Failures.Total > 0 {
		fmt.Fprint(w, s.Failures.GenerateReport("Scan"))
	}
}
