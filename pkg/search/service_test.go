package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceInitialScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("goodbye"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.log"), []byte("ignored"), 0o644))

	svc := startService(t, Options{WatchDir: dir})

	hits, err := svc.Search("hello")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0], `"a.txt"`)

	hits, err = svc.Search("goodbye")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = svc.Search("ignored")
	require.NoError(t, err)
	assert.Empty(t, hits, "filtered extensions must not be indexed")
}

func TestServiceScanIndexesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "deep", "deeper"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deep", "deeper", "n.txt"), []byte("nested"), 0o644))

	svc := startService(t, Options{WatchDir: dir})

	assert.Equal(t, 1, hitCount(t, svc, "nested"))
}

func TestServiceRejectsMissingWatchDir(t *testing.T) {
	_, err := NewService(Options{
		WatchDir:       filepath.Join(t.TempDir(), "nope"),
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	assert.Error(t, err)
}

func TestServiceRejectsFileAsWatchDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewService(Options{
		WatchDir:       path,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	assert.Error(t, err)
}

func TestServiceLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("raw content"), 0o644))

	svc := startService(t, Options{WatchDir: dir})

	doc, err := svc.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw content", doc.Content)

	_, err = svc.LoadFile(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, file.ErrReadFailed)
}

func TestServiceShutdownFlushesEnqueuedOperations(t *testing.T) {
	watchRoot := t.TempDir()
	indexDir := t.TempDir()

	svc, err := NewService(Options{
		WatchDir:       watchRoot,
		IndexDir:       indexDir,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	require.NoError(t, err)

	const enqueued = 5
	for i := 0; i < enqueued; i++ {
		name := filepath.Join(watchRoot, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("durable content"), 0o644))
		svc.enqueue(watch.FileCreated{Path: file.NormalizePath(name)})
	}
	// Close before any batch window elapses; the worker must drain and the
	// index must land every operation in its final commit.
	require.NoError(t, svc.Close())

	idx, err := OpenDirectoryIndex(indexDir)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search("durable")
	require.NoError(t, err)
	assert.Len(t, hits, enqueued)
}

func TestServiceWarmStartSkipsUnchangedFiles(t *testing.T) {
	watchRoot := t.TempDir()
	indexDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(watchRoot, "a.txt"), []byte("first run"), 0o644))

	svc, err := NewService(Options{
		WatchDir:       watchRoot,
		IndexDir:       indexDir,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, hitCount(t, svc, "first"))
	require.NoError(t, svc.Close())

	// Second run over an unchanged tree: the catalog diff finds nothing to
	// re-index, so the scan commits nothing yet search still works off the
	// persisted segments.
	svc, err = NewService(Options{
		WatchDir:       watchRoot,
		IndexDir:       indexDir,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, uint64(0), svc.CommitCount())
	assert.Equal(t, 1, hitCount(t, svc, "first"))
}

func TestServiceWarmStartPicksUpChangesAndDeletes(t *testing.T) {
	watchRoot := t.TempDir()
	indexDir := t.TempDir()
	keep := filepath.Join(watchRoot, "keep.txt")
	gone := filepath.Join(watchRoot, "gone.txt")
	require.NoError(t, os.WriteFile(keep, []byte("original words"), 0o644))
	require.NoError(t, os.WriteFile(gone, []byte("disappearing words"), 0o644))

	svc, err := NewService(Options{
		WatchDir:       watchRoot,
		IndexDir:       indexDir,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, hitCount(t, svc, "words"))
	require.NoError(t, svc.Close())

	// Between runs: one file rewritten, one removed, one added.
	require.NoError(t, os.WriteFile(keep, []byte("rewritten words"), 0o644))
	require.NoError(t, os.Remove(gone))
	require.NoError(t, os.WriteFile(filepath.Join(watchRoot, "new.txt"), []byte("fresh words"), 0o644))

	svc, err = NewService(Options{
		WatchDir:       watchRoot,
		IndexDir:       indexDir,
		Extensions:     []string{"txt"},
		DisableWatcher: true,
	})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, 2, hitCount(t, svc, "words"))
	assert.Equal(t, 1, hitCount(t, svc, "rewritten"))
	assert.Equal(t, 1, hitCount(t, svc, "fresh"))
	assert.Zero(t, hitCount(t, svc, "disappearing"))
	assert.Zero(t, hitCount(t, svc, "original"))
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc := startService(t, Options{WatchDir: t.TempDir()})

	require.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestServiceWithRealWatcherEndToEnd(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(Options{
		WatchDir:   dir,
		Extensions: []string{"txt"},
	})
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "live.txt"), []byte("watched words"), 0o644))

	// Debounce (1s) plus batch window (500ms) sit between the write and
	// visibility; allow a wide margin.
	require.Eventually(t, func() bool {
		return searchCount(svc, "watched") == 1
	}, 10*waitForFlush, pollEvery)
}
