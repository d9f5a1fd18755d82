package internal

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestRingBuffer_KeepsNewestLines(t *testing.T) {
	b := NewRingBuffer(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}
	got := strings.Join(b.Lines(), ",")
	if got != "line 3,line 4,line 5" {
		t.Errorf("Lines() = %q", got)
	}
}

func TestRingBuffer_PartialWrites(t *testing.T) {
	b := NewRingBuffer(10)
	b.Write([]byte("hel"))
	b.Write([]byte("lo\nwor"))
	if got := b.Lines(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("Lines() = %q", got)
	}
	b.Write([]byte("ld\n"))
	var out bytes.Buffer
	if err := b.Dump(&out, 0, ""); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\nworld\n" {
		t.Errorf("Dump = %q", out.String())
	}
	out.Reset()
	if err := b.Dump(&out, 1, "  "); err != nil {
		t.Fatal(err)
	}
	if out.String() != "  world\n" {
		t.Errorf("Dump(1) = %q", out.String())
	}
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	ring := NewRingBuffer(10)
	logger, err := NewLogger(LogOptions{Level: "warn", Output: &out, Buffer: ring})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("exiftool not found", "mode", "auto")

	if strings.Contains(out.String(), "hidden") {
		t.Error("info line written at warn level")
	}
	lines := ring.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "exiftool not found") {
		t.Errorf("ring = %q", lines)
	}

	if _, err := NewLogger(LogOptions{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
