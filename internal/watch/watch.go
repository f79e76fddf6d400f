// Package watch feeds file-system changes under the project root to the
// router as ordered batches.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/addonsync/internal/router"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/fulmenhq/addonsync/pkg/safeio"
)

// ErrClosed is returned when the feed has been closed.
var ErrClosed = errors.New("watch feed closed")

// IgnoreMatcher reports whether a root-relative slash path is ignored.
type IgnoreMatcher interface {
	Match(rel string, isDir bool) bool
}

// Handler receives one coalesced batch.
type Handler func(batch []router.Event)

// Options configures a Feed.
type Options struct {
	Root        string
	BatchWindow time.Duration
	Ignore      IgnoreMatcher
}

// Feed watches the project tree recursively and coalesces raw events.
type Feed struct {
	fsw    *fsnotify.Watcher
	root   string
	window time.Duration
	ignore IgnoreMatcher

	mu      sync.Mutex
	watched map[string]bool
	closed  bool
}

// New creates a feed watching every non-ignored directory under opts.Root.
func New(opts Options) (*Feed, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	window := opts.BatchWindow
	if window <= 0 {
		window = 75 * time.Millisecond
	}
	f := &Feed{
		fsw:     fsw,
		root:    root,
		window:  window,
		ignore:  opts.Ignore,
		watched: make(map[string]bool),
	}
	if err := f.watchTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return f, nil
}

// WatchedCount returns the number of watched directories.
func (f *Feed) WatchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watched)
}

func (f *Feed) ignored(abs string, isDir bool) bool {
	if f.ignore == nil {
		return false
	}
	rel, err := safeio.RelativeTo(f.root, abs)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	return f.ignore.Match(rel, isDir)
}

// watchTree adds dir and its non-ignored subdirectories.
func (f *Feed) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if f.ignored(p, true) {
			return filepath.SkipDir
		}
		return f.watchDir(p)
	})
}

func (f *Feed) watchDir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.watched[p] {
		return nil
	}
	if err := f.fsw.Add(p); err != nil {
		logger.Warn("Failed to watch directory", logger.String("path", p), logger.Err(err))
		return nil
	}
	f.watched[p] = true
	return nil
}

func (f *Feed) forget(p string) {
	f.mu.Lock()
	delete(f.watched, p)
	f.mu.Unlock()
}

// Close stops watching.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	return f.fsw.Close()
}

// Run delivers batches to handle until ctx is done or the feed is closed.
// A batch collects the raw events seen within one window after its first event.
func (f *Feed) Run(ctx context.Context, handle Handler) error {
	var (
		pending []fsnotify.Event
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	flush := func() {
		timerC = nil
		batch := Coalesce(pending)
		pending = nil
		if len(batch) > 0 {
			handle(batch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-f.fsw.Events:
			if !ok {
				return nil
			}
			evs := f.observe(ev)
			if len(evs) == 0 {
				continue
			}
			pending = append(pending, evs...)
			if timerC == nil {
				timer = time.NewTimer(f.window)
				timerC = timer.C
			}

		case err, ok := <-f.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error", logger.Err(err))

		case <-timerC:
			flush()
		}
	}
}

// observe keeps the watch set in step with the tree and returns the events
// worth batching. A directory that appears with content (moved or copied in)
// also yields a create for everything already inside it.
func (f *Feed) observe(ev fsnotify.Event) []fsnotify.Event {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return nil
	}
	out := []fsnotify.Event{ev}
	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if f.ignored(ev.Name, true) {
				return nil
			}
			if err := f.watchTree(ev.Name); err != nil && !errors.Is(err, ErrClosed) {
				logger.Warn("Failed to watch new directory", logger.String("path", ev.Name), logger.Err(err))
			}
			out = append(out, f.existing(ev.Name)...)
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		f.forget(ev.Name)
	}
	logger.Trace("File event", logger.String("op", ev.Op.String()), logger.String("path", ev.Name), logger.Int("contents", len(out)-1))
	return out
}

// existing returns create events for the non-ignored entries under dir,
// parents before children.
func (f *Feed) existing(dir string) []fsnotify.Event {
	var out []fsnotify.Event
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == dir {
			return nil
		}
		if f.ignored(p, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, fsnotify.Event{Name: p, Op: fsnotify.Create})
		return nil
	})
	return out
}

// Coalesce turns raw events into router events. A Rename immediately followed
// by a Create is one move; a Rename with no such partner left the tree and is
// a delete. Write and Chmod events are dropped.
func Coalesce(raw []fsnotify.Event) []router.Event {
	var out []router.Event
	for i := 0; i < len(raw); i++ {
		ev := raw[i]
		switch {
		case ev.Has(fsnotify.Rename):
			if i+1 < len(raw) && raw[i+1].Has(fsnotify.Create) && !raw[i+1].Has(fsnotify.Rename) {
				out = append(out, router.Event{Op: router.OpRename, OldPath: ev.Name, Path: raw[i+1].Name})
				i++
				continue
			}
			out = append(out, router.Event{Op: router.OpDelete, Path: ev.Name})
		case ev.Has(fsnotify.Create):
			out = append(out, router.Event{Op: router.OpCreate, Path: ev.Name})
		case ev.Has(fsnotify.Remove):
			out = append(out, router.Event{Op: router.OpDelete, Path: ev.Name})
		}
	}
	return out
}
