// Package fsnotify implements the ports.FileWatcher interface using github.com/fsnotify/fsnotify.
// It watches the parent directory of every tracked file, so atomic saves
// (write temp file, rename over) are seen the same as in-place writes, and
// debounces rapid events (editors often trigger multiple writes per save).
package fsnotify

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long a tracked file must stay quiet before its
// callback fires.
const DebounceInterval = 50 * time.Millisecond

// Editor droppings next to the real file. Never reported.
var ignoreSuffixes = []string{".swp", ".swx", "~", ".tmp"}

// Watcher implements ports.FileWatcher using fsnotify.
type Watcher struct {
	fw       *fsnotify.Watcher
	done     chan struct{}
	interval time.Duration

	mu      sync.Mutex
	stopped bool
	tracked map[string]func(string) // abs path -> callback
	dirs    map[string]int          // watched dir -> tracked files in it
	pending map[string]*time.Timer
}

// NewWatcher creates a new file watcher and starts its event loop.
func NewWatcher() (*Watcher, error) {
	return newWatcher(DebounceInterval)
}

func newWatcher(interval time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fw:       fw,
		done:     make(chan struct{}),
		interval: interval,
		tracked:  make(map[string]func(string)),
		dirs:     make(map[string]int),
		pending:  make(map[string]*time.Timer),
	}
	go w.loop()
	return w, nil
}

// Track starts reporting changes of path.
func (w *Watcher) Track(path string, onChange func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fsnotify.ErrClosed
	}
	if _, ok := w.tracked[abs]; ok {
		w.tracked[abs] = onChange
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.tracked[abs] = onChange
	return nil
}

// Untrack stops reporting changes of path.
func (w *Watcher) Untrack(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[abs]; !ok {
		return
	}
	delete(w.tracked, abs)
	if t, ok := w.pending[abs]; ok {
		t.Stop()
		delete(w.pending, abs)
	}
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if !w.stopped {
			_ = w.fw.Remove(dir)
		}
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if shouldIgnorePath(event.Name) {
				continue
			}
			// Chmod alone carries no content change.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.schedule(filepath.Clean(event.Name))
			}

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Errors are swallowed; fsnotify recovers automatically

		case <-w.done:
			return
		}
	}
}

// schedule restarts the quiet-period timer of a tracked path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if _, ok := w.tracked[path]; !ok {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.interval, func() {
		w.mu.Lock()
		cb, ok := w.tracked[path]
		current := w.pending[path] == t
		if current {
			delete(w.pending, path)
		}
		stopped := w.stopped
		w.mu.Unlock()
		if ok && current && !stopped {
			cb(path)
		}
	})
	w.pending[path] = t
}

// Stop ends monitoring and releases all resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	close(w.done)
	return w.fw.Close()
}

// shouldIgnorePath returns true if the file path should not trigger onChange.
func shouldIgnorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".#") {
		return true
	}
	for _, s := range ignoreSuffixes {
		if strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}
