package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_DebouncesMediaBursts(t *testing.T) {
	dir := t.TempDir()
	media := NewMediaTypes(nil, nil)
	w, err := NewWatcher(dir, true, media.IsMedia, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(dir, "card")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("x"))
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(sub, "IMG_000"+string(rune('0'+i))+".jpg"), []byte("x"))
	}

	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}

	seen := map[string]bool{}
	for len(w.Events()) > 0 {
		ev := <-w.Events()
		seen[filepath.Base(ev.Path)] = true
	}
	if seen["notes.txt"] {
		t.Error("non-media file reported")
	}
	if !seen["IMG_0000.jpg"] {
		t.Errorf("file in new subdirectory not reported: %v", seen)
	}

	select {
	case <-w.Changes():
		t.Error("burst produced more than one notification")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), false, nil, time.Second); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestEventType_String(t *testing.T) {
	want := map[EventType]string{EventCreate: "create", EventDelete: "delete", EventRename: "rename", EventWrite: "write", EventType(9): "unknown"}
	for typ, name := range want {
		if typ.String() != name {
			t.Errorf("%d.String() = %q, want %q", typ, typ.String(), name)
		}
	}
}
