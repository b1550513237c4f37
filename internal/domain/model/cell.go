package model

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CellEntry is one (name, contents) pair of a spreadsheet document.
// It doubles as an undo-history record, where Contents holds the value
// the cell had before the edit being recorded.
type CellEntry struct {
	Name     string `json:"name"`
	Contents string `json:"contents"`
}

// NormalizeCellName folds a cell name to its canonical upper-case form.
// Cell names are compared case-insensitively everywhere.
func NormalizeCellName(name string) string {
	return strings.ToUpper(name)
}

// IsFormula reports whether contents denote a formula rather than a literal.
func IsFormula(contents string) bool {
	return len(contents) > 0 && contents[0] == '='
}

// ScanFormulaRefs extracts the cell names referenced by a formula.
//
// The remainder after the leading '=' is scanned for maximal runs of
// letters followed by at least one digit; each such token is emitted
// upper-cased. A letters-only run (a function name like "SUM") references
// nothing. Non-formula contents reference nothing.
func ScanFormulaRefs(contents string) []string {
	if !IsFormula(contents) {
		return nil
	}

	var refs []string
	seen := map[string]struct{}{}

	i := 1
	for i < len(contents) {
		if !isLetter(contents[i]) {
			i++
			continue
		}

		start := i
		for i < len(contents) && isLetter(contents[i]) {
			i++
		}
		letters := i - start
		for i < len(contents) && isDigit(contents[i]) {
			i++
		}

		// Require the digit part; "=SUM(" must not reference "SUM".
		if i-start == letters {
			continue
		}

		name := NormalizeCellName(contents[start:i])
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			refs = append(refs, name)
		}
	}

	return refs
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// RefCache memoizes formula reference scans. Formulas repeat heavily in
// practice (clients re-send the same contents on undo and sync), so hot
// entries are kept in a small LRU.
type RefCache struct {
	cache *lru.Cache[string, []string]
}

// NewRefCache returns a cache holding up to size scanned formulas.
func NewRefCache(size int) *RefCache {
	cache, _ := lru.New[string, []string](size)
	return &RefCache{cache: cache}
}

// Refs returns the referenced cell names of contents. Callers must not
// mutate the returned slice.
func (rc *RefCache) Refs(contents string) []string {
	if !IsFormula(contents) {
		return nil
	}
	if refs, ok := rc.cache.Get(contents); ok {
		return refs
	}
	refs := ScanFormulaRefs(contents)
	rc.cache.Add(contents, refs)
	return refs
}
