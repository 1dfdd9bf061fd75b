package search

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bleve "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/foo-543674/fs-text-search-mcp/pkg/file"
	"github.com/foo-543674/fs-text-search-mcp/pkg/logging"
)

// searchResultLimit caps how many hits a single search returns.
const searchResultLimit = 10

const (
	fieldFilePath = "file_path"
	fieldContent  = "content"
)

// engineMetaFile is the marker bleve leaves in a persisted index directory;
// its presence selects open-existing over create-new.
const engineMetaFile = "index_meta.json"

// TextIndex wraps the embedded full-text engine. Mutations stage into a
// pending batch and become visible to Search only at Commit, so readers
// observe whole batches and never a partial one.
//
// TextIndex is not internally synchronized. The owning service guards it
// with one mutex shared by the update worker and the search handlers.
type TextIndex struct {
	idx     bleve.Index
	batch   *bleve.Batch
	pending int
	commits uint64
}

// indexMapping declares the two-field schema: file_path as a stored,
// untokenized keyword (so a delete by term matches exactly one document and
// prefix iteration over the term dictionary corresponds to path prefixes)
// and content as tokenized, unstored full text.
func indexMapping() mapping.IndexMapping {
	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	pathField.IncludeInAll = false
	pathField.IncludeTermVectors = false

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldFilePath, pathField)
	doc.AddFieldMappingsAt(fieldContent, contentField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// NewMemoryIndex creates an in-memory index.
func NewMemoryIndex() (*TextIndex, error) {
	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return newTextIndex(idx), nil
}

// OpenDirectoryIndex opens the index persisted under dir, creating the
// directory and a fresh index when none exists yet.
func OpenDirectoryIndex(dir string) (*TextIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(filepath.Join(dir, engineMetaFile)); statErr == nil {
		idx, err = bleve.Open(dir)
	} else {
		idx, err = bleve.New(dir, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open index at %s: %w", dir, err)
	}
	return newTextIndex(idx), nil
}

func newTextIndex(idx bleve.Index) *TextIndex {
	return &TextIndex{idx: idx, batch: idx.NewBatch()}
}

// Add stages a new document.
func (t *TextIndex) Add(doc file.Document) error {
	err := t.batch.Index(doc.Path, map[string]interface{}{
		fieldFilePath: doc.Path,
		fieldContent:  doc.Content,
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.Path, err)
	}
	t.pending++
	return nil
}

// Replace stages a delete of any document keyed by doc.Path followed by an
// add of the new content.
func (t *TextIndex) Replace(doc file.Document) error {
	t.batch.Delete(doc.Path)
	return t.Add(doc)
}

// Delete stages removal of the document keyed by path. Unknown paths are
// harmless.
func (t *TextIndex) Delete(path string) {
	t.batch.Delete(path)
	t.pending++
}

// DeleteByPrefix stages removal of every committed document whose path
// starts with prefix, walking the file_path term dictionary. It returns how
// many deletes were staged.
func (t *TextIndex) DeleteByPrefix(prefix string) (int, error) {
	dict, err := t.idx.FieldDictPrefix(fieldFilePath, []byte(prefix))
	if err != nil {
		return 0, fmt.Errorf("read term dictionary: %w", err)
	}
	defer func() {
		_ = dict.Close()
	}()

	count := 0
	for {
		entry, err := dict.Next()
		if err != nil {
			return count, fmt.Errorf("iterate term dictionary: %w", err)
		}
		if entry == nil {
			break
		}
		t.batch.Delete(entry.Term)
		count++
	}
	t.pending += count
	return count, nil
}

// Commit applies the staged batch, making it visible to subsequent searches.
// A commit with nothing pending is a no-op. The staged batch is discarded
// either way; a failed batch is not retried.
func (t *TextIndex) Commit() error {
	if t.pending == 0 {
		return nil
	}
	err := t.idx.Batch(t.batch)
	t.batch = t.idx.NewBatch()
	t.pending = 0
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	t.commits++
	return nil
}

// Pending returns how many staged mutations await the next commit.
func (t *TextIndex) Pending() int {
	return t.pending
}

// CommitCount returns how many non-empty commits have been applied. Tests
// use it to observe batch coalescing.
func (t *TextIndex) CommitCount() uint64 {
	return t.commits
}

// Search runs keyword through the engine's default analysis scoped to the
// content field and returns up to ten hits ranked by the default scorer.
// Each hit is the JSON serialization of its stored fields.
func (t *TextIndex) Search(keyword string) ([]string, error) {
	q := bleve.NewMatchQuery(keyword)
	q.SetField(fieldContent)
	req := bleve.NewSearchRequest(q)
	req.Size = searchResultLimit
	req.Fields = []string{fieldFilePath}

	res, err := t.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	results := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		encoded, err := json.Marshal(hit.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode hit %s: %w", hit.ID, err)
		}
		results = append(results, string(encoded))
	}
	return results, nil
}

// Close flushes any pending mutations and releases the engine. Flush errors
// are logged and discarded; losing a final partial batch is preferable to
// failing shutdown.
func (t *TextIndex) Close() error {
	if t.pending > 0 {
		if err := t.Commit(); err != nil {
			logging.Errorf("index: final commit: %v", err)
		}
	}
	return t.idx.Close()
}
