package file

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrReadFailed marks a file read that failed after the retry schedule was
// exhausted. The last underlying cause is wrapped alongside it.
var ErrReadFailed = errors.New("file read failed")

const (
	maxReadAttempts = 4
	retryBaseDelay  = 10 * time.Millisecond
)

// Document is a single indexable (path, content) record.
type Document struct {
	Path    string
	Content string
}

// Loader reads documents from a filesystem-like source.
type Loader interface {
	// LoadFile reads one path into a Document.
	LoadFile(path string) (Document, error)
	// LoadDirectory lazily walks a directory tree, yielding one result per
	// regular file encountered. It does not filter; selecting which paths to
	// index is the caller's policy so that the initial scan and event
	// handling share one.
	LoadDirectory(path string) iter.Seq2[Document, error]
}

// DiskLoader reads documents from the local filesystem.
//
// Reads retry a few times with short sleeps because filesystem events often
// arrive while the writer still holds the file; the bounded schedule keeps
// the worst case around 60 ms per file.
type DiskLoader struct{}

// NewDiskLoader returns a loader over the local filesystem.
func NewDiskLoader() *DiskLoader {
	return &DiskLoader{}
}

// LoadFile reads path as UTF-8 text, retrying up to three times with sleeps
// of 10, 20 and 30 ms between attempts.
func (l *DiskLoader) LoadFile(path string) (Document, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReadAttempts; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return Document{Path: NormalizePath(path), Content: string(data)}, nil
		}
		lastErr = err
		if attempt < maxReadAttempts {
			time.Sleep(retryBaseDelay * time.Duration(attempt))
		}
	}
	return Document{}, fmt.Errorf("%w after %d attempts: %w", ErrReadFailed, maxReadAttempts, lastErr)
}

// LoadDirectory walks dir recursively and yields one (Document, error) pair
// per regular file. Directories and irregular files are skipped. Walk errors
// for unreadable subtrees are yielded with an empty document and the walk
// continues with the rest of the tree.
func (l *DiskLoader) LoadDirectory(dir string) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		stop := errors.New("stop walking")
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if !yield(Document{}, walkErr) {
					return stop
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			doc, err := l.LoadFile(path)
			if !yield(doc, err) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield(Document{}, err)
		}
	}
}

// NormalizePath strips any leading current-directory components and
// normalizes separators to forward slashes. Watcher backends and walkers
// disagree on whether paths arrive as "./a/b.txt" or "a/b.txt"; index keys
// must not.
func NormalizePath(path string) string {
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}
