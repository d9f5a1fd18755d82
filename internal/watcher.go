package internal

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of filesystem event
type EventType int

const (
	EventCreate EventType = iota
	EventDelete
	EventRename
	EventWrite
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	case EventWrite:
		return "write"
	}
	return "unknown"
}

// WatchEvent represents a filesystem event we care about
type WatchEvent struct {
	Type EventType
	Path string
}

// Watcher wraps an fsnotify watcher with media filtering and debouncing:
// a burst of events (a camera card being copied in) yields one notification
// on Changes once the folder has been quiet for the debounce interval.
type Watcher struct {
	watcher   *fsnotify.Watcher
	recursive bool
	isMedia   func(path string) bool
	debounce  time.Duration
	events    chan *WatchEvent
	changes   chan struct{}
	errors    chan error
	done      chan struct{}
}

// NewWatcher watches root, and its subdirectories when recursive is set.
// isMedia filters file events; nil accepts everything.
func NewWatcher(root string, recursive bool, isMedia func(string) bool, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if isMedia == nil {
		isMedia = func(string) bool { return true }
	}

	w := &Watcher{
		watcher:   fsWatcher,
		recursive: recursive,
		isMedia:   isMedia,
		debounce:  debounce,
		events:    make(chan *WatchEvent, 100),
		changes:   make(chan struct{}, 1),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}

	if err := w.add(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.processEvents()

	return w, nil
}

func (w *Watcher) add(root string) error {
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New subdirectories join a recursive watch.
			if w.recursive && event.Op&fsnotify.Create == fsnotify.Create {
				if isDir, err := statDir(event.Name); err == nil && isDir {
					_ = w.add(event.Name)
					continue
				}
			}
			if !w.isMedia(event.Name) {
				continue
			}

			watchEvent := &WatchEvent{Path: event.Name}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				watchEvent.Type = EventCreate
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				watchEvent.Type = EventDelete
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				watchEvent.Type = EventRename
			case event.Op&fsnotify.Write == fsnotify.Write:
				watchEvent.Type = EventWrite
			default:
				continue
			}

			select {
			case w.events <- watchEvent:
			default:
				// Event channel is full, drop event
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
				// A notification is already pending
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func statDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// Events returns the channel of filtered watch events
func (w *Watcher) Events() <-chan *WatchEvent {
	return w.events
}

// Changes receives one value per debounced burst of media events.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Errors returns the channel of watcher errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and cleans up resources
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
