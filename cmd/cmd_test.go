package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exifrename/internal"
)

// useConfig points the commands at a throwaway state dir with exiftool off.
func useConfig(t *testing.T, edit func(*internal.Config)) string {
	t.Helper()
	state := t.TempDir()
	orig := loadConfig
	loadConfig = func() (*internal.Config, error) {
		cfg, err := internal.LoadConfigFrom(internal.NewViper(state))
		if err != nil {
			return nil, err
		}
		cfg.ExifTool = "off"
		if edit != nil {
			edit(cfg)
		}
		return cfg, nil
	}
	t.Cleanup(func() { loadConfig = orig })
	return state
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRenameAndUndo(t *testing.T) {
	useConfig(t, func(c *internal.Config) { c.ParseFilename = true })
	dir := t.TempDir()
	for _, name := range []string{"IMG_20230413_143015.jpg", "VID_20230413_143015.mp4", "holiday.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := run(t, "rename", dir, "--yes", "--quiet")
	if err != nil {
		t.Fatalf("rename: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Renamed 2, skipped 1, errors 0") {
		t.Errorf("unexpected output:\n%s", out)
	}
	for _, name := range []string{"2023-04-13_14-30-15.jpg", "2023-04-13_14-30-15.mp4", "holiday.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s after rename", name)
		}
	}

	out, err = run(t, "undo")
	if err != nil {
		t.Fatalf("undo: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Undone 2, errors 0") {
		t.Errorf("unexpected output:\n%s", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, "IMG_20230413_143015.jpg"))
	if err != nil || string(data) != "IMG_20230413_143015.jpg" {
		t.Errorf("original not restored: %v", err)
	}

	out, err = run(t, "undo")
	if err != nil || !strings.Contains(out, "Nothing to undo") {
		t.Errorf("second undo: %v\n%s", err, out)
	}
}

func TestUndo_NoJournal(t *testing.T) {
	useConfig(t, nil)
	if _, err := run(t, "undo"); err == nil || !strings.Contains(err.Error(), "no rename journal") {
		t.Errorf("err = %v", err)
	}
}

func TestScan_MissingFolder(t *testing.T) {
	useConfig(t, nil)
	_, err := run(t, "scan", filepath.Join(t.TempDir(), "nope"), "--quiet")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("err = %v", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.in), &out, "Rename 3 files?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if out.String() != "Rename 3 files? [y/N] " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestDumpLogOnError(t *testing.T) {
	logFile, err := os.CreateTemp(t.TempDir(), "run.log")
	if err != nil {
		t.Fatal(err)
	}
	defer logFile.Close()

	ring := internal.NewRingBuffer(50)
	for i := 0; i < recentLogLines+5; i++ {
		fmt.Fprintf(ring, "line %d\n", i)
	}
	env := &runtimeEnv{ring: ring, logFile: logFile}

	var out bytes.Buffer
	env.dumpLogOnError(&out, nil)
	if out.Len() != 0 {
		t.Errorf("success dumped %q", out.String())
	}

	env.dumpLogOnError(&out, errors.New("boom"))
	got := out.String()
	if !strings.HasPrefix(got, "Recent log lines:\n  line 5\n") || !strings.HasSuffix(got, "  line 24\n") {
		t.Errorf("dump = %q", got)
	}
	if strings.Contains(got, "line 4\n") {
		t.Error("dump not limited to the newest lines")
	}
}

func TestPrintSummary_ScanFailures(t *testing.T) {
	failures := internal.NewErrorStats()
	failures.Add(internal.CategorizeError("/p/a.jpg", errors.New("unexpected")))
	var out bytes.Buffer
	printSummary(&out, &internal.ScanSummary{Total: 1, Failures: failures})
	if !strings.Contains(out.String(), "Scan encountered 1 errors") {
		t.Errorf("summary = %q", out.String())
	}

	out.Reset()
	printSummary(&out, &internal.ScanSummary{Total: 1, Failures: internal.NewErrorStats()})
	if strings.Contains(out.String(), "encountered") {
		t.Errorf("clean scan printed a report: %q", out.String())
	}
}
