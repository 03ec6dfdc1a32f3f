// Package watch invalidates cached results when workspace files change.
// Source edits drop only the entries backed by the touched file; project
// structure changes drop everything.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	naverrors "github.com/standardbeagle/medlink/internal/errors"
)

// Invalidator is the slice of the result cache the watcher drives.
type Invalidator interface {
	InvalidateFile(path string) int
	Clear()
}

// DefaultDebounce coalesces editor write bursts into one invalidation.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a watcher.
type Options struct {
	// Debounce delays invalidation after the last event for a path.
	Debounce time.Duration

	// OnInvalidate is called after each applied invalidation, for logging.
	// The count is the number of dropped cache entries, -1 for a full clear.
	OnInvalidate func(path string, count int)
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	return o
}

// Watcher follows filesystem events under a workspace root.
type Watcher struct {
	root string
	inv  Invalidator
	opts Options
	fsw  *fsnotify.Watcher
}

// New creates a watcher over root, registering every non-excluded directory.
func New(root string, inv Invalidator, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, naverrors.Workspace("watch", root, err)
	}

	w := &Watcher{
		root: root,
		inv:  inv,
		opts: opts.withDefaults(),
		fsw:  fsw,
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		switch d.Name() {
		case "bin", "obj", ".git", ".vs", "node_modules":
			if path != root {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, naverrors.Workspace("watch", root, err)
	}
	return w, nil
}

// debouncer tracks one flush deadline per path. An event pushes out only its
// own path's deadline, so a file under sustained writes cannot postpone the
// invalidation of other pending paths.
type debouncer struct {
	window    time.Duration
	deadlines map[string]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, deadlines: make(map[string]time.Time)}
}

// observe records an event for path, moving its deadline to now plus the
// window.
func (d *debouncer) observe(path string, now time.Time) {
	d.deadlines[path] = now.Add(d.window)
}

// due pops every path whose deadline has passed, in sorted order.
func (d *debouncer) due(now time.Time) []string {
	var paths []string
	for path, deadline := range d.deadlines {
		if !deadline.After(now) {
			paths = append(paths, path)
			delete(d.deadlines, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// next returns the wait until the earliest remaining deadline, false when
// nothing is pending.
func (d *debouncer) next(now time.Time) (time.Duration, bool) {
	var earliest time.Time
	for _, deadline := range d.deadlines {
		if earliest.IsZero() || deadline.Before(earliest) {
			earliest = deadline
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	wait := earliest.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// Run processes events until the context is cancelled. Events for the same
// path within the debounce window collapse into one invalidation; each path
// keeps its own deadline.
func (w *Watcher) Run(ctx context.Context) error {
	deb := newDebouncer(w.opts.Debounce)
	var timer *time.Timer
	var fire <-chan time.Time

	arm := func() {
		wait, ok := deb.next(time.Now())
		if !ok {
			fire = nil
			return
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
		}
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			// New directories must be registered to see their contents.
			if event.Op.Has(fsnotify.Create) {
				_ = w.fsw.Add(event.Name)
			}
			deb.observe(event.Name, time.Now())
			arm()

		case <-fire:
			fire = nil
			for _, path := range deb.due(time.Now()) {
				w.applyChange(path)
			}
			arm()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			_ = err // transient watch errors do not stop the loop
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// applyChange routes one changed path to the right invalidation.
func (w *Watcher) applyChange(path string) {
	ApplyChange(w.inv, path, w.opts.OnInvalidate)
}

// ApplyChange applies the invalidation policy for one changed path: a .cs
// edit drops entries backed by that file, a project or solution change
// drops everything, anything else is ignored.
func ApplyChange(inv Invalidator, path string, onInvalidate func(string, int)) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cs":
		n := inv.InvalidateFile(path)
		if onInvalidate != nil {
			onInvalidate(path, n)
		}
	case ".csproj", ".sln", ".slnx":
		inv.Clear()
		if onInvalidate != nil {
			onInvalidate(path, -1)
		}
	}
}

// relevant filters out chmod-only noise.
func relevant(event fsnotify.Event) bool {
	return event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) ||
		event.Op.Has(fsnotify.Rename)
}
