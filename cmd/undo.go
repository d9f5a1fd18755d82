package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"exifrename/internal"
)

var undoCmd = &cobra.Command{
	Use:   "undo [journal]",
	Short: "Restore the names changed by a rename run",
	Long: `Replay a rename journal in reverse. Without an argument the most recent
journal is used. A file is only restored when its new name still exists and
its old name is free.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		env, err := newEnv(cmd, false, false)
		if err != nil {
			return err
		}
		defer env.Close()
		defer func() { env.dumpLogOnError(cmd.ErrOrStderr(), err) }()

		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			path, err = internal.LatestJournal(env.cfg.StateDir)
			if errors.Is(err, internal.ErrNoJournal) {
				return fmt.Errorf("%w in %s", err, env.cfg.StateDir)
			}
			if err != nil {
				return err
			}
		}

		pairs, err := internal.LoadPairs(path)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(pairs) == 0 {
			fmt.Fprintf(out, "Nothing to undo in %s\n", path)
			return nil
		}

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		res := internal.Undo(ctx, pairs, env.log)
		if err := internal.AppendUndo(path, res); err != nil {
			env.log.Warn("could not record undo in journal", "journal", path, "err", err)
		}

		fmt.Fprintf(out, "Undone %d, errors %d\n", res.Undone, res.Errors)
		if res.Cancelled {
			fmt.Fprintln(out, "Cancelled: remaining files keep their new names.")
		}
		if res.Errors > 0 {
			fmt.Fprint(out, res.Failures.GenerateReport("Undo"))
			return fmt.Errorf("%d files could not be restored", res.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
}
