package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitForFlush = 5 * time.Second
	pollEvery    = 50 * time.Millisecond
)

func startService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.WatchDir == "" {
		opts.WatchDir = t.TempDir()
	}
	if opts.Extensions == nil {
		opts.Extensions = []string{"txt", "md"}
	}
	opts.DisableWatcher = true
	svc, err := NewService(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func hitCount(t *testing.T, svc *Service, keyword string) int {
	t.Helper()
	hits, err := svc.Search(keyword)
	require.NoError(t, err)
	return len(hits)
}

// searchCount is hitCount without test assertions, safe inside Eventually
// conditions which run on their own goroutine.
func searchCount(svc *Service, keyword string) int {
	hits, err := svc.Search(keyword)
	if err != nil {
		return -1
	}
	return len(hits)
}

func TestWorkerAppliesCreateThenModify(t *testing.T) {
	dir := t.TempDir()
	svc := startService(t, Options{WatchDir: dir})

	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(path)})
	require.NoError(t, os.WriteFile(path, []byte("beta"), 0o644))
	svc.enqueue(watch.FileModified{Path: file.NormalizePath(path)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "beta") == 1
	}, waitForFlush, pollEvery)
	assert.Zero(t, hitCount(t, svc, "alpha"))
}

func TestWorkerSkipsFilteredCreates(t *testing.T) {
	dir := t.TempDir()
	svc := startService(t, Options{WatchDir: dir})

	path := filepath.Join(dir, "skip.log")
	require.NoError(t, os.WriteFile(path, []byte("invisible"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(path)})

	// Anchor on a second, indexable operation so we know the batch flushed.
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("visible"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(marker)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "visible") == 1
	}, waitForFlush, pollEvery)
	assert.Zero(t, hitCount(t, svc, "invisible"))
}

func TestWorkerDeleteOfUnindexedPathIsHarmless(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("staying"), 0o644))
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, 1, hitCount(t, svc, "staying"))

	// Never indexed, never filter-eligible; must not disturb the document set.
	svc.enqueue(watch.FileDeleted{Path: "foo.log"})

	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("flushed"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(marker)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "flushed") == 1
	}, waitForFlush, pollEvery)
	assert.Equal(t, 1, hitCount(t, svc, "staying"))
}

func TestWorkerRenameMovesDocument(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("carried content"), 0o644))
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, 1, hitCount(t, svc, "carried"))

	newPath := filepath.Join(dir, "new.txt")
	require.NoError(t, os.Rename(oldPath, newPath))
	svc.enqueue(watch.FileRenamed{
		Old: file.NormalizePath(oldPath),
		New: file.NormalizePath(newPath),
	})

	require.Eventually(t, func() bool {
		hits, err := svc.Search("carried")
		return err == nil && len(hits) == 1 && strings.Contains(hits[0], `"`+file.NormalizePath(newPath)+`"`)
	}, waitForFlush, pollEvery)
}

func TestWorkerRenameOutOfFilterDeletesOnly(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("doomed content"), 0o644))
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, 1, hitCount(t, svc, "doomed"))

	newPath := filepath.Join(dir, "old.bak")
	require.NoError(t, os.Rename(oldPath, newPath))
	svc.enqueue(watch.FileRenamed{
		Old: file.NormalizePath(oldPath),
		New: file.NormalizePath(newPath),
	})

	require.Eventually(t, func() bool {
		return searchCount(svc, "doomed") == 0
	}, waitForFlush, pollEvery)
}

func TestWorkerDirectoryRename(t *testing.T) {
	dir := t.TempDir()
	oldDir := filepath.Join(dir, "indir")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "a.txt"), []byte("shared words"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "b.txt"), []byte("shared words"), 0o644))
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, 2, hitCount(t, svc, "shared"))

	newDir := filepath.Join(dir, "renamed")
	require.NoError(t, os.Rename(oldDir, newDir))
	svc.enqueue(watch.DirectoryRenamed{
		Old: file.NormalizePath(oldDir),
		New: file.NormalizePath(newDir),
	})

	require.Eventually(t, func() bool {
		hits, err := svc.Search("shared")
		if err != nil || len(hits) != 2 {
			return false
		}
		for _, hit := range hits {
			if strings.Contains(hit, "/indir/") {
				return false
			}
		}
		return true
	}, waitForFlush, pollEvery)
}

func TestWorkerDirectoryDelete(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("ephemeral"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("permanent"), 0o644))
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, 1, hitCount(t, svc, "ephemeral"))

	require.NoError(t, os.RemoveAll(sub))
	svc.enqueue(watch.DirectoryDeleted{Path: file.NormalizePath(sub)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "ephemeral") == 0
	}, waitForFlush, pollEvery)
	assert.Equal(t, 1, hitCount(t, svc, "permanent"))
}

func TestWorkerBatchCoalescing(t *testing.T) {
	dir := t.TempDir()
	svc := startService(t, Options{WatchDir: dir})
	require.Equal(t, uint64(0), svc.CommitCount(), "empty scan must not commit")

	for i := 0; i < maxBatchSize; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.txt", i))
		require.NoError(t, os.WriteFile(path, []byte("coalesced batch"), 0o644))
		svc.enqueue(watch.FileCreated{Path: file.NormalizePath(path)})
	}

	require.Eventually(t, func() bool {
		return searchCount(svc, "coalesced") == maxBatchSize
	}, waitForFlush, pollEvery)
	assert.Equal(t, uint64(1), svc.CommitCount(), "a full batch should flush as a single commit")
}

func TestWorkerSkipsUnreadableFileButKeepsBatch(t *testing.T) {
	dir := t.TempDir()
	svc := startService(t, Options{WatchDir: dir})

	// Enqueued path never exists; the read fails after retries and only
	// this operation is dropped.
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(filepath.Join(dir, "ghost.txt"))})

	real := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("survivor"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(real)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "survivor") == 1
	}, waitForFlush, pollEvery)
}

// panickyLoader panics on the first load of a chosen path and behaves
// normally afterwards.
type panickyLoader struct {
	file.Loader
	suffix string
	fired  bool
}

func (p *panickyLoader) LoadFile(path string) (file.Document, error) {
	if !p.fired && strings.HasSuffix(path, p.suffix) {
		p.fired = true
		panic("synthetic loader panic")
	}
	return p.Loader.LoadFile(path)
}

func TestWorkerRecoversFromPanicDuringFlush(t *testing.T) {
	dir := t.TempDir()
	svc := startService(t, Options{
		WatchDir: dir,
		Loader:   &panickyLoader{Loader: file.NewDiskLoader(), suffix: "boom.txt"},
	})

	boom := filepath.Join(dir, "boom.txt")
	require.NoError(t, os.WriteFile(boom, []byte("kaboom"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(boom)})

	// The panicking flush must release the index lock and leave the worker
	// alive; the next batch still lands.
	time.Sleep(time.Second)
	after := filepath.Join(dir, "after.txt")
	require.NoError(t, os.WriteFile(after, []byte("alive"), 0o644))
	svc.enqueue(watch.FileCreated{Path: file.NormalizePath(after)})

	require.Eventually(t, func() bool {
		return searchCount(svc, "alive") == 1
	}, waitForFlush, pollEvery)
}
