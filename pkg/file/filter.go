package file

import (
	"path/filepath"
	"strings"
)

// Filter decides whether a path should be indexed.
type Filter interface {
	IsTarget(path string) bool
}

// ExtensionFilter accepts paths whose extension is in a fixed allow-list.
// Matching is case-sensitive. The zero value accepts nothing.
type ExtensionFilter struct {
	allowed map[string]struct{}
}

// NewExtensionFilter builds a filter from extension names without a leading
// dot, e.g. ["txt", "md"]. Entries are trimmed; empty entries are ignored.
func NewExtensionFilter(extensions []string) *ExtensionFilter {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(strings.TrimPrefix(ext, "."))
		if ext == "" {
			continue
		}
		allowed[ext] = struct{}{}
	}
	return &ExtensionFilter{allowed: allowed}
}

// IsTarget reports whether the final path component carries an allowed
// extension. The extension is the substring after the last '.'; a name
// without a dot has no extension and never matches.
func (f *ExtensionFilter) IsTarget(path string) bool {
	base := filepath.Base(filepath.ToSlash(path))
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 {
		return false
	}
	_, ok := f.allowed[base[idx+1:]]
	return ok
}
