package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"exifrename/internal"
)

var debounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Keep a live preview of a folder, rescanning when files change",
	Long: `Scan the folder, then watch it. Every burst of added, removed or renamed
media files restarts the scan; a scan still running is cancelled first and
its stale results are dropped. Nothing is renamed.`,
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

		req := env.cfg.ScanRequest(args[0])
		isMedia := env.media.IsMedia
		if !req.MediaOnly {
			isMedia = nil
		}
		watcher, err := internal.NewWatcher(req.Folder, req.Recursive, isMedia, debounceFlag)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", req.Folder, err)
		}
		defer watcher.Close()

		ctrl := internal.NewController(ctx, env.scanner(), env.log)
		defer ctrl.Close()
		if err := ctrl.Request(req); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", req.Folder)
		changed := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case wev := <-watcher.Events():
				changed++
				env.log.Debug("media changed", "op", wev.Type, "file", wev.Path)
			case <-watcher.Changes():
				env.log.Info("folder changed, rescanning", "folder", req.Folder, "events", changed)
				changed = 0
				if err := ctrl.Request(req); err != nil {
					return err
				}
			case werr := <-watcher.Errors():
				env.log.Warn("watch error", "err", werr)
			case ev := <-ctrl.Events():
				if !ctrl.IsCurrent(ev) {
					continue
				}
				switch ev.Kind {
				case internal.EventStarted:
					fmt.Fprintf(out, "\n[scan %d] %d files\n", ev.Generation, ev.Progress.Total)
				case internal.EventFailed:
					fmt.Fprintf(out, "[scan %d] failed: %v\n", ev.Generation, ev.Err)
				case internal.EventFinished:
					printRows(out, ev.Summary.Rows)
					printSummary(out, ev.Summary)
				}
			}
		}
	},
}

func init() {
	addScanFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", 750*time.Millisecond, "Quiet period before a rescan")

	rootCmd.AddCommand(watchCmd)
}
