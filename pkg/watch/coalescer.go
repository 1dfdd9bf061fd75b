package watch

import (
	"sort"
	"time"

	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/fsnotify/fsnotify"
)

// debounceWindow is how long a path must stay quiet before its accumulated
// events are converted into operations. Editor saves that rewrite via a temp
// file plus rename collapse into a single operation this way.
const debounceWindow = time.Second

// pathEvent accumulates raw events for one path inside a debounce window.
type pathEvent struct {
	path     string
	seq      int
	last     time.Time
	created  bool
	modified bool
	removed  bool
	// renamedOut marks the old side of a rename that has not paired with a
	// create yet.
	renamedOut bool
	// renamedFrom holds the old path when this entry is the new side of a
	// paired rename.
	renamedFrom string
}

// coalescer groups raw fsnotify events per path inside a debounce window and
// converts each quiet group into zero or more Operations.
//
// fsnotify reports a rename as a Rename event on the old path followed by a
// Create on the new path, with no cookie linking the two. The coalescer pairs
// the most recent unmatched Rename with the next Create in the same window;
// an unmatched Rename means the path left the watched tree and degrades to a
// delete. isDir classifies paths that may no longer exist on disk.
type coalescer struct {
	pending map[string]*pathEvent
	seq     int
	isDir   func(path string) bool
}

func newCoalescer(isDir func(string) bool) *coalescer {
	return &coalescer{
		pending: make(map[string]*pathEvent),
		isDir:   isDir,
	}
}

func (c *coalescer) entry(path string, now time.Time) *pathEvent {
	e, ok := c.pending[path]
	if !ok {
		c.seq++
		e = &pathEvent{path: path, seq: c.seq}
		c.pending[path] = e
	}
	e.last = now
	return e
}

// observe folds one raw event into the pending state. It reports whether a
// Create event was absorbed as the new side of a rename, so callers can skip
// redundant content scans for renamed-in directories.
func (c *coalescer) observe(ev fsnotify.Event, now time.Time) (pairedRename bool) {
	path := file.NormalizePath(ev.Name)
	switch {
	case ev.Op&fsnotify.Create != 0:
		if old, ok := c.takeUnmatchedRename(now); ok {
			e := c.entry(path, now)
			e.renamedFrom = old
			return true
		}
		e := c.entry(path, now)
		e.created = true
		e.removed = false
	case ev.Op&fsnotify.Write != 0:
		c.entry(path, now).modified = true
	case ev.Op&fsnotify.Remove != 0:
		c.entry(path, now).removed = true
	case ev.Op&fsnotify.Rename != 0:
		c.entry(path, now).renamedOut = true
	}
	return false
}

// takeUnmatchedRename claims the most recent rename-out still inside the
// window, if any.
func (c *coalescer) takeUnmatchedRename(now time.Time) (string, bool) {
	var match *pathEvent
	for _, e := range c.pending {
		if !e.renamedOut || now.Sub(e.last) >= debounceWindow {
			continue
		}
		if match == nil || e.last.After(match.last) {
			match = e
		}
	}
	if match == nil {
		return "", false
	}
	delete(c.pending, match.path)
	return match.path, true
}

// drain converts every entry that has been quiet for the debounce window
// into operations, in first-observed order. With force set, all pending
// entries are drained regardless of age; shutdown uses this so nothing is
// silently dropped.
func (c *coalescer) drain(now time.Time, force bool) []Operation {
	var due []*pathEvent
	for path, e := range c.pending {
		if !force && now.Sub(e.last) < debounceWindow {
			continue
		}
		due = append(due, e)
		delete(c.pending, path)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	var ops []Operation
	for _, e := range due {
		ops = append(ops, c.convert(e)...)
	}
	return ops
}

func (c *coalescer) convert(e *pathEvent) []Operation {
	switch {
	case e.renamedFrom != "":
		if c.isDir(e.path) {
			return []Operation{DirectoryRenamed{Old: e.renamedFrom, New: e.path}}
		}
		return []Operation{FileRenamed{Old: e.renamedFrom, New: e.path}}
	case e.removed, e.renamedOut:
		// An unmatched rename-out left the watched tree; same as a removal.
		if e.created {
			// Created and gone inside one window; nothing to index.
			return nil
		}
		if c.isDir(e.path) {
			return []Operation{DirectoryDeleted{Path: e.path}}
		}
		return []Operation{FileDeleted{Path: e.path}}
	case e.created:
		return []Operation{FileCreated{Path: e.path}}
	case e.modified:
		return []Operation{FileModified{Path: e.path}}
	}
	return nil
}
