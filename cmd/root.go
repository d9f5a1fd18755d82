package cmd

import (
	"github.com/spf13/cobra"
)

// Version is overridden from the embedded VERSION file by package main.
var Version = "dev"

var (
	logLevelFlag string
	logFileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "exifrename",
	Short: "Rename photos and videos after the moment they were taken",
	Long: `exifrename resolves the capture time of every media file in a folder from
exiftool, sidecars, embedded EXIF, container metadata, the filename or the
filesystem (in that order), previews the new names and renames on request.
Every rename run is journaled and can be undone.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// ApplyVersion pushes Version into the cobra command.
func ApplyVersion() {
	rootCmd.Version = Version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Write logs to this file instead of stderr")
	ApplyVersion()
}
