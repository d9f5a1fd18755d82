package internal

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// RingBuffer keeps the last N complete log lines written to it.
type RingBuffer struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{lines: make([]string, size)}
}

func (b *RingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.push(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *RingBuffer) push(line string) {
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	return append(out, b.lines[:b.next]...)
}

// Dump writes the newest n buffered lines to w, each prefixed with indent.
// n <= 0 writes all of them.
func (b *RingBuffer) Dump(w io.Writer, n int, indent string) error {
	lines := b.Lines()
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 0 {
		return nil
	}
	_, err := io.WriteString(w, indent+strings.Join(lines, "\n"+indent)+"\n")
	return err
}

type LogOptions struct {
	Level  string
	Output io.Writer
	// Buffer, when set, receives a copy of every line.
	Buffer *RingBuffer
}

// NewLogger builds the logger passed to the scanner, resolver and rename code.
func NewLogger(opts LogOptions) (*log.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Buffer != nil {
		out = io.MultiWriter(out, opts.Buffer)
	}
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}
	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	}), nil
}

var discardLogger = log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})

func orDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return discardLogger
	}
	return l
}
