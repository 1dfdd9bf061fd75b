package search

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/foo-543674/fs-text-search-mcp/pkg/catalog"
	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
	"github.com/foo-543674/fs-text-search-mcp/pkg/watch"
)

// Options configures a Service. Filter and Loader are injection seams for
// tests; production runs use the extension filter and the disk loader.
type Options struct {
	// WatchDir is the root of the indexed subtree.
	WatchDir string
	// IndexDir houses the persisted index and scan catalog. Empty means
	// in-memory.
	IndexDir string
	// Extensions is the allow-list for the default filter, without leading
	// dots.
	Extensions []string

	Filter file.Filter
	Loader file.Loader
	// DisableWatcher skips the filesystem subscription. Tests drive the
	// pipeline by enqueuing operations directly.
	DisableWatcher bool
}

// Service owns the live-indexing subsystem: the text index, the update
// queue and its worker, and the directory watcher, wired together and torn
// down in a fixed order.
//
// The index is the only shared-mutable resource. One mutex guards it; the
// worker holds it for a whole batch, search handlers per query, so readers
// always observe a committed snapshot.
type Service struct {
	root   string
	filter file.Filter
	loader file.Loader

	mu      sync.Mutex
	index   *TextIndex
	catalog *catalog.Catalog

	queue   *UpdateQueue
	worker  *worker
	watcher *watch.Watcher

	closeOnce sync.Once
}

// NewService builds the subsystem and performs the initial scan. The scan
// completes before NewService returns, so the first search already sees a
// fully populated index. The watcher attaches before the scan; events
// racing the scan pile up in the queue and are applied only once the worker
// starts afterwards, which keeps scan and event drain serialized.
func NewService(opts Options) (*Service, error) {
	info, err := os.Stat(opts.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("watch directory %s: %w", opts.WatchDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory %s: not a directory", opts.WatchDir)
	}

	s := &Service{
		root:   opts.WatchDir,
		filter: opts.Filter,
		loader: opts.Loader,
		queue:  NewUpdateQueue(),
	}
	if s.filter == nil {
		s.filter = file.NewExtensionFilter(opts.Extensions)
	}
	if s.loader == nil {
		s.loader = file.NewDiskLoader()
	}

	if opts.IndexDir != "" {
		s.index, err = OpenDirectoryIndex(opts.IndexDir)
		if err != nil {
			return nil, err
		}
		s.catalog, err = catalog.Open(opts.IndexDir)
		if err != nil {
			_ = s.index.Close()
			return nil, err
		}
	} else {
		s.index, err = NewMemoryIndex()
		if err != nil {
			return nil, err
		}
	}

	if !opts.DisableWatcher {
		s.watcher, err = watch.New(opts.WatchDir, s.queue.Enqueue)
		if err != nil {
			s.teardownStorage()
			return nil, err
		}
	}

	if err := s.initialScan(); err != nil {
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		s.teardownStorage()
		return nil, err
	}

	s.worker = newWorker(s.queue, &s.mu, s.index, s.filter, s.loader, s.catalog)
	s.worker.start()
	return s, nil
}

func (s *Service) teardownStorage() {
	_ = s.index.Close()
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
}

// Search runs a query against the committed index state.
func (s *Service) Search(keyword string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Search(keyword)
}

// LoadFile reads one file through the loader's retry policy.
func (s *Service) LoadFile(path string) (file.Document, error) {
	return s.loader.LoadFile(path)
}

// Root returns the watched directory.
func (s *Service) Root() string {
	return s.root
}

// CommitCount exposes the index commit counter for tests observing batch
// coalescing.
func (s *Service) CommitCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.CommitCount()
}

// enqueue feeds one operation into the update queue. The watcher sink uses
// the queue directly; tests use this to drive the worker without a
// filesystem.
func (s *Service) enqueue(op watch.Operation) {
	s.queue.Enqueue(op)
}

// Close tears the subsystem down: stop the watcher, close the queue so the
// worker drains its final batch and exits, then flush and release the index
// and catalog. Nothing enqueued before Close is dropped.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.queue.Close()
		if s.worker != nil {
			<-s.worker.done
		}
		s.mu.Lock()
		if cerr := s.index.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.mu.Unlock()
		if s.catalog != nil {
			if cerr := s.catalog.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// initialScan populates the index before serving begins. With a catalog the
// scan diffs recorded mtime and size per file and only re-reads what
// changed; without one it loads everything.
func (s *Service) initialScan() error {
	if s.catalog != nil {
		return s.warmScan()
	}
	return s.coldScan()
}

func (s *Service) coldScan() error {
	for doc, err := range s.loader.LoadDirectory(s.root) {
		if err != nil {
			logging.Errorf("scan: %v", err)
			continue
		}
		if !s.filter.IsTarget(doc.Path) {
			continue
		}
		if err := s.index.Add(doc); err != nil {
			return err
		}
	}
	return s.index.Commit()
}

func (s *Service) warmScan() error {
	ctx := context.Background()
	known, err := s.catalog.All(ctx)
	if err != nil {
		logging.Errorf("scan: read catalog, rebuilding: %v", err)
		known = map[string]catalog.Entry{}
	}

	seen := make(map[string]struct{})
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			logging.Errorf("scan: %v", werr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		norm := file.NormalizePath(path)
		if !s.filter.IsTarget(norm) {
			return nil
		}
		seen[norm] = struct{}{}

		info, ierr := d.Info()
		if ierr != nil {
			logging.Errorf("scan: stat %s: %v", path, ierr)
			return nil
		}
		if prev, ok := known[norm]; ok && prev.MTime == info.ModTime().UnixNano() && prev.Size == info.Size() {
			return nil
		}

		doc, lerr := s.loader.LoadFile(path)
		if lerr != nil {
			logging.Errorf("scan: %v", lerr)
			return nil
		}
		if aerr := s.index.Replace(doc); aerr != nil {
			return aerr
		}
		if uerr := s.catalog.Upsert(ctx, norm, info.ModTime().UnixNano(), info.Size()); uerr != nil {
			logging.Errorf("scan: catalog upsert %s: %v", norm, uerr)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	// Files recorded on the last run but gone now.
	for path := range known {
		if _, ok := seen[path]; ok {
			continue
		}
		s.index.Delete(path)
		if derr := s.catalog.Delete(ctx, path); derr != nil {
			logging.Errorf("scan: catalog delete %s: %v", path, derr)
		}
	}
	return s.index.Commit()
}
