package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"exifrename/internal"
)

var (
	yesFlag    bool
	dryRunFlag bool
)

var renameCmd = &cobra.Command{
	Use:   "rename [folder]",
	Short: "Scan a folder and rename its media files by capture time",
	Long: `Scan the folder, show the preview and, after confirmation, rename the files.
Names are re-checked against the folder at rename time; existing files are
never overwritten. The run is written to a journal that "exifrename undo"
replays.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		env, err := newEnv(cmd, true, true)
		if err != nil {
			return err
		}
		defer env.Close()
		defer func() { env.dumpLogOnError(cmd.ErrOrStderr(), err) }()

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		out := cmd.OutOrStdout()
		req := env.cfg.ScanRequest(args[0])
		summary, err := scanWithProgress(ctx, env, req, cmd.ErrOrStderr(), quietFlag)
		if err != nil {
			return err
		}
		printRows(out, summary.Rows)
		printSummary(out, summary)

		if summary.Cancelled {
			return fmt.Errorf("scan was cancelled, nothing renamed")
		}
		if summary.Renamable == 0 {
			fmt.Fprintln(out, "Nothing to rename.")
			return nil
		}
		if dryRunFlag {
			fmt.Fprintln(out, "Dry run mode: no files will be renamed")
			return nil
		}
		if !yesFlag && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Rename %d files?", summary.Renamable)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}

		journal, err := internal.NewJournal(env.cfg.StateDir, req.Folder)
		if err != nil {
			return err
		}
		defer journal.Close()
		if err := journal.Start(len(summary.Rows), req.Naming); err != nil {
			return err
		}

		res := internal.Rename(ctx, summary.Rows, req.Naming, journal, env.log)
		if err := journal.End(); err != nil {
			env.log.Warn("journal end", "err", err)
		}

		fmt.Fprintf(out, "\nRenamed %d, skipped %d, errors %d\n", res.Renamed, res.Skipped, res.Errors)
		if res.Cancelled {
			fmt.Fprintln(out, "Cancelled: files renamed so far stay renamed.")
		}
		fmt.Fprintf(out, "Journal: %s\n", journal.Path())
		if res.Errors > 0 {
			fmt.Fprint(out, res.Failures.GenerateReport("Rename"))
			return fmt.Errorf("%d files could not be renamed", res.Errors)
		}
		return nil
	},
}

// confirm asks a yes/no question; anything but y/yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	addScanFlags(renameCmd)
	renameCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Rename without asking")
	renameCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Show the preview only")
	renameCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "No progress output")

	rootCmd.AddCommand(renameCmd)
}
