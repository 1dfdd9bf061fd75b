package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/foo-543674/fs-text-search-mcp/pkg/catalog"
	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
	"github.com/foo-543674/fs-text-search-mcp/pkg/watch"
)

const (
	// maxBatchSize flushes a batch as soon as it holds this many operations.
	maxBatchSize = 10
	// batchWindow bounds how long a non-empty batch waits for more
	// operations before flushing, keeping search freshness under a second
	// at steady load.
	batchWindow = 500 * time.Millisecond
)

// worker is the single consumer of the update queue. It batches operations
// and applies each batch to the text index as one commit under the shared
// index lock, so searches observe batches atomically.
type worker struct {
	queue   *UpdateQueue
	mu      *sync.Mutex
	index   *TextIndex
	filter  file.Filter
	loader  file.Loader
	catalog *catalog.Catalog // nil without a persisted index
	done    chan struct{}
}

func newWorker(queue *UpdateQueue, mu *sync.Mutex, index *TextIndex, filter file.Filter, loader file.Loader, cat *catalog.Catalog) *worker {
	return &worker{
		queue:   queue,
		mu:      mu,
		index:   index,
		filter:  filter,
		loader:  loader,
		catalog: cat,
		done:    make(chan struct{}),
	}
}

func (w *worker) start() {
	go w.run()
}

func (w *worker) run() {
	defer close(w.done)

	var batch []watch.Operation
	for {
		// Block indefinitely for the first operation of a batch; once one
		// is buffered, wait only the coalescing window for the next.
		var wait time.Duration
		if len(batch) > 0 {
			wait = batchWindow
		}

		op, status := w.queue.receive(wait)
		switch status {
		case recvOK:
			batch = append(batch, op)
			if len(batch) >= maxBatchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case recvTimeout:
			w.flush(batch)
			batch = batch[:0]
		case recvClosed:
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

// flush applies one batch under the index lock and commits it. A panic from
// any collaborator is contained here: the lock is released either way and
// the worker moves on to the next batch, because losing the live pipeline
// is worse than skipping one update.
func (w *worker) flush(ops []watch.Operation) {
	if len(ops) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("worker: recovered from panic during flush: %v", r)
		}
	}()

	w.apply(ops)
}

func (w *worker) apply(ops []watch.Operation) {
	for _, op := range ops {
		if err := w.applyOne(op); err != nil {
			if errors.Is(err, file.ErrReadFailed) {
				// Skip just this operation; the rest of the batch stands.
				logging.Errorf("worker: %s: %v", op, err)
				continue
			}
			// The engine rejected a mutation; abandon the rest of the batch
			// and let the commit publish whatever was staged before it.
			logging.Errorf("worker: %s: %v", op, err)
			break
		}
	}
	if err := w.index.Commit(); err != nil {
		logging.Errorf("worker: commit: %v", err)
	}
}

func (w *worker) applyOne(op watch.Operation) error {
	switch op := op.(type) {
	case watch.FileCreated:
		if !w.filter.IsTarget(op.Path) {
			return nil
		}
		doc, err := w.loader.LoadFile(op.Path)
		if err != nil {
			return err
		}
		if err := w.index.Add(doc); err != nil {
			return err
		}
		w.recordFile(doc.Path)
		return nil

	case watch.FileModified:
		if !w.filter.IsTarget(op.Path) {
			return nil
		}
		doc, err := w.loader.LoadFile(op.Path)
		if err != nil {
			return err
		}
		if err := w.index.Replace(doc); err != nil {
			return err
		}
		w.recordFile(doc.Path)
		return nil

	case watch.FileDeleted:
		// No filter check; deleting an unknown path is harmless.
		w.index.Delete(op.Path)
		w.forgetFile(op.Path)
		return nil

	case watch.FileRenamed:
		if w.filter.IsTarget(op.Old) {
			w.index.Delete(op.Old)
			w.forgetFile(op.Old)
		}
		if w.filter.IsTarget(op.New) {
			doc, err := w.loader.LoadFile(op.New)
			if err != nil {
				return err
			}
			if err := w.index.Add(doc); err != nil {
				return err
			}
			w.recordFile(doc.Path)
		}
		return nil

	case watch.DirectoryDeleted:
		if _, err := w.index.DeleteByPrefix(op.Path); err != nil {
			return err
		}
		w.forgetPrefix(op.Path)
		return nil

	case watch.DirectoryRenamed:
		if _, err := w.index.DeleteByPrefix(op.Old); err != nil {
			return err
		}
		w.forgetPrefix(op.Old)
		for doc, err := range w.loader.LoadDirectory(op.New) {
			if err != nil {
				logging.Errorf("worker: load %s: %v", op.New, err)
				continue
			}
			if !w.filter.IsTarget(doc.Path) {
				continue
			}
			if err := w.index.Add(doc); err != nil {
				return err
			}
			w.recordFile(doc.Path)
		}
		return nil
	}
	return nil
}

// recordFile mirrors a successful index mutation into the scan catalog.
// Catalog trouble never fails the batch; a stale entry only costs one
// redundant re-index on the next warm start.
func (w *worker) recordFile(path string) {
	if w.catalog == nil {
		return
	}
	info, err := os.Stat(filepath.FromSlash(path))
	if err != nil {
		return
	}
	if err := w.catalog.Upsert(context.Background(), path, info.ModTime().UnixNano(), info.Size()); err != nil {
		logging.Errorf("worker: catalog upsert %s: %v", path, err)
	}
}

func (w *worker) forgetFile(path string) {
	if w.catalog == nil {
		return
	}
	if err := w.catalog.Delete(context.Background(), path); err != nil {
		logging.Errorf("worker: catalog delete %s: %v", path, err)
	}
}

func (w *worker) forgetPrefix(prefix string) {
	if w.catalog == nil {
		return
	}
	if err := w.catalog.DeletePrefix(context.Background(), prefix); err != nil {
		logging.Errorf("worker: catalog delete prefix %s: %v", prefix, err)
	}
}
