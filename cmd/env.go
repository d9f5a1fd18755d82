package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"exifrename/internal"
)

// Flags shared by scan, rename and watch. They override the config file
// only when given on the command line.
var (
	formatFlag        string
	prefixFlag        string
	suffixFlag        string
	patternFlag       string
	fallbackFlag      string
	parseFilenameFlag bool
	xmpSidecarFlag    bool
	takeoutJSONFlag   bool
	exifToolFlag      string
	workersFlag       string
	sequentialFlag    bool
	recursiveFlag     bool
	allFilesFlag      bool
)

func addScanFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&formatFlag, "format", internal.DefaultTemplate, "Date template (%Y %m %d %H %M %S %y %b %B %j)")
	f.StringVar(&prefixFlag, "prefix", "", "Text placed before the new name")
	f.StringVar(&suffixFlag, "suffix", "", "Text placed after the new name, before the extension")
	f.StringVar(&patternFlag, "pattern", "date", "Name pattern: date, date-original, original, original-date")
	f.StringVar(&fallbackFlag, "fallback", "skip", "When no metadata has a date: skip, created, modified")
	f.BoolVar(&parseFilenameFlag, "parse-filename", false, "Read dates from filenames like IMG_20230413_143015")
	f.BoolVar(&xmpSidecarFlag, "xmp-sidecar", true, "Read .xmp sidecar files")
	f.BoolVar(&takeoutJSONFlag, "takeout-json", true, "Read Google Takeout .json sidecar files")
	f.StringVar(&exifToolFlag, "exiftool", "auto", "exiftool binary: auto, bundled, system, off")
	f.StringVar(&workersFlag, "workers", "auto", "Worker count: auto or 1-32")
	f.BoolVar(&sequentialFlag, "sequential", false, "Resolve files one at a time")
	f.BoolVarP(&recursiveFlag, "recursive", "r", false, "Include subfolders")
	f.BoolVar(&allFilesFlag, "all-files", false, "Include files that are not known photo or video types")
}

// applyScanFlags copies explicitly set flags over the loaded config.
func applyScanFlags(c *cobra.Command, cfg *internal.Config) error {
	f := c.Flags()
	if f.Changed("format") {
		cfg.Format = formatFlag
	}
	if f.Changed("prefix") {
		cfg.Prefix = prefixFlag
	}
	if f.Changed("suffix") {
		cfg.Suffix = suffixFlag
	}
	if f.Changed("pattern") {
		cfg.Pattern = patternFlag
	}
	if f.Changed("fallback") {
		cfg.Fallback = fallbackFlag
	}
	if f.Changed("parse-filename") {
		cfg.ParseFilename = parseFilenameFlag
	}
	if f.Changed("xmp-sidecar") {
		cfg.XMPSidecar = xmpSidecarFlag
	}
	if f.Changed("takeout-json") {
		cfg.TakeoutJSON = takeoutJSONFlag
	}
	if f.Changed("exiftool") {
		cfg.ExifTool = exifToolFlag
	}
	if f.Changed("workers") {
		cfg.Workers = workersFlag
	}
	if f.Changed("sequential") {
		cfg.Parallel = !sequentialFlag
	}
	if f.Changed("recursive") {
		cfg.Recursive = recursiveFlag
	}
	if f.Changed("all-files") {
		cfg.MediaOnly = !allFilesFlag
	}
	return cfg.Validate()
}

// runtimeEnv is what every command needs once flags and config are merged.
type runtimeEnv struct {
	cfg     *internal.Config
	log     *log.Logger
	ring    *internal.RingBuffer
	tool    *internal.ExifToolSession
	media   internal.MediaTypes
	logFile *os.File
}

// loadConfig is swapped in tests.
var loadConfig = internal.LoadConfig

func newEnv(c *cobra.Command, withScanFlags, withTool bool) (*runtimeEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if withScanFlags {
		if err := applyScanFlags(c, cfg); err != nil {
			return nil, err
		}
	}

	env := &runtimeEnv{cfg: cfg, media: cfg.MediaTypes()}
	var out io.Writer = c.ErrOrStderr()
	if logFileFlag != "" {
		f, err := os.OpenFile(logFileFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		env.logFile = f
		out = f
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	env.ring = internal.NewRingBuffer(max(cfg.LogLines, 1))
	env.log, err = internal.NewLogger(internal.LogOptions{Level: level, Output: out, Buffer: env.ring})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	mode := internal.ExifToolOff
	if withTool {
		mode = cfg.ExifToolMode()
	}
	env.tool = internal.OpenExifTool(mode, env.log)
	return env, nil
}

func (e *runtimeEnv) scanner() *internal.Scanner {
	return internal.NewScanner(e.tool, e.media, e.log)
}

const recentLogLines = 20

// dumpLogOnError prints the tail of the log when logs went to a file, so a
// failure is explained on the terminal too.
func (e *runtimeEnv) dumpLogOnError(w io.Writer, err error) {
	if err == nil || e.logFile == nil {
		return
	}
	if len(e.ring.Lines()) == 0 {
		return
	}
	fmt.Fprintln(w, "Recent log lines:")
	_ = e.ring.Dump(w, recentLogLines, "  ")
}

func (e *runtimeEnv) Close() {
	if e.tool != nil {
		if err := e.tool.Close(); err != nil {
			e.log.Warn("closing exiftool", "err", err)
		}
	}
	if e.logFile != nil {
		e.logFile.Close()
	}
}

// interruptible cancels ctx on Ctrl-C.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}
