package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
	"github.com/fsnotify/fsnotify"
)

// pollInterval paces how often the event loop checks for paths whose
// debounce window has elapsed. The stop channel is observed immediately.
const pollInterval = 100 * time.Millisecond

// Sink receives each normalized operation, in observation order. It must not
// block for long; the update queue's enqueue is the intended implementation.
type Sink func(Operation)

// Watcher subscribes to recursive filesystem notifications under a root and
// delivers debounced Operations to a sink from a dedicated goroutine.
//
// fsnotify has no recursive mode, so every directory in the subtree gets an
// explicit watch and newly created directories are added as they appear.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
	sink Sink
	co   *coalescer

	mu   sync.Mutex
	dirs map[string]struct{}

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts watching root recursively. The returned watcher owns its OS
// subscription and event-loop goroutine until Close.
func New(root string, sink Sink) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root: root,
		fsw:  fsw,
		sink: sink,
		dirs: make(map[string]struct{}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	w.co = newCoalescer(w.classifyDir)

	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Close signals the event loop to stop, waits for it to drain pending
// operations, and releases the OS watch.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			// Drain everything still buffered so shutdown drops nothing.
			w.emit(w.co.drain(time.Now(), true))
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.emit(w.co.drain(time.Now(), true))
				return
			}
			w.absorb(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.emit(w.co.drain(time.Now(), true))
				return
			}
			logging.Errorf("watch: %v", err)
		case now := <-ticker.C:
			w.emit(w.co.drain(now, false))
		}
	}
}

func (w *Watcher) absorb(ev fsnotify.Event) {
	logging.Debugf("watch: raw event %s %s", ev.Op, ev.Name)
	paired := w.co.observe(ev, time.Now())

	if ev.Op&fsnotify.Create == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}

	// A brand new directory needs watches before events inside it are lost.
	if err := w.addRecursive(ev.Name); err != nil {
		logging.Errorf("watch: add %s: %v", ev.Name, err)
	}
	if paired {
		// Renamed-in directory; the rename operation re-enumerates its
		// contents, so synthetic per-file creates would be redundant.
		return
	}
	// A directory created in place (mkdir, archive extraction, checkout) may
	// already contain files that will never produce their own events.
	w.scanNewDirectory(ev.Name)
}

func (w *Watcher) scanNewDirectory(dir string) {
	now := time.Now()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		w.co.observe(fsnotify.Event{Name: path, Op: fsnotify.Create}, now)
		return nil
	})
	if err != nil {
		logging.Errorf("watch: scan %s: %v", dir, err)
	}
}

func (w *Watcher) emit(ops []Operation) {
	for _, op := range ops {
		logging.Debugf("watch: %s", op)
		switch o := op.(type) {
		case DirectoryDeleted:
			w.forgetDirs(o.Path)
		case DirectoryRenamed:
			w.forgetDirs(o.Old)
			if err := w.addRecursive(filepath.FromSlash(o.New)); err != nil {
				logging.Errorf("watch: add %s: %v", o.New, err)
			}
		}
		w.sink(op)
	}
}

// addRecursive installs a watch on dir and every directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		norm := file.NormalizePath(path)
		w.mu.Lock()
		_, seen := w.dirs[norm]
		if !seen {
			w.dirs[norm] = struct{}{}
		}
		w.mu.Unlock()
		if seen {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// classifyDir reports whether a (possibly already deleted) path is a
// directory: live stat first, then the watch registry for paths that are
// gone.
func (w *Watcher) classifyDir(path string) bool {
	if info, err := os.Stat(filepath.FromSlash(path)); err == nil {
		return info.IsDir()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) forgetDirs(prefix string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.dirs {
		if dir == prefix || strings.HasPrefix(dir, prefix+"/") {
			delete(w.dirs, dir)
		}
	}
}
