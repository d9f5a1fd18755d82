package cmd

import (
	"github.com/spf13/cobra"

	"exifrename/internal"
)

var (
	filterFlag string
	quietFlag  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [folder]",
	Short: "Preview the new name of every media file in a folder",
	Long: `Resolve the capture time of each file and print the name it would get.
Nothing on disk is changed. Press Ctrl-C to stop early; files not reached yet
are listed as cancelled.`,
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

		summary, err := scanWithProgress(ctx, env, env.cfg.ScanRequest(args[0]), cmd.ErrOrStderr(), quietFlag)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printRows(out, internal.FilterRows(summary.Rows, filterFlag))
		printSummary(out, summary)
		return nil
	},
}

func init() {
	addScanFlags(scanCmd)
	scanCmd.Flags().StringVar(&filterFlag, "filter", "", "Only list rows whose old or new name contains this text")
	scanCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "No progress output")

	rootCmd.AddCommand(scanCmd)
}
