package filewarden

import (
	"context"
	"path/filepath"
	"time"
)

// FileSelector filters files during listing operations. Selectors are
// composable (And, Not) and let the retention sweep walk the
// day-partitioned quarantine tree without materializing everything first.
//
// Example:
//
//	old := filewarden.And(
//	    filewarden.Glob("*.log"),
//	    filewarden.OlderThan(30*24*time.Hour),
//	)
//	files, err := filewarden.ListWithSelector(ctx, fs, "quarantine", old, true)
type FileSelector interface {
	// Match returns true if the file should be included in results.
	Match(file *FileInfo) bool

	// TraverseDescendants returns true if directory descendants should be
	// traversed. Only called for directories; returning false skips the
	// whole subtree, enabling early termination for deep trees.
	TraverseDescendants(file *FileInfo) bool
}

// ListWithSelector lists files matching the given selector.
// Set recursive to true for deep traversal.
func ListWithSelector(ctx context.Context, fs FileReader, path string, selector FileSelector, recursive bool) ([]FileInfo, error) {
	if selector == nil {
		selector = All()
	}

	var results []FileInfo
	if err := listRecursive(ctx, fs, path, selector, recursive, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func listRecursive(ctx context.Context, fs FileReader, path string, selector FileSelector, recursive bool, results *[]FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	files, err := fs.ListContents(ctx, path, false)
	if err != nil {
		return err
	}

	for i := range files {
		file := &files[i]
		if file.IsDir {
			if recursive && selector.TraverseDescendants(file) {
				if err := listRecursive(ctx, fs, file.Path, selector, recursive, results); err != nil {
					return err
				}
			}
			continue
		}
		if selector.Match(file) {
			*results = append(*results, *file)
		}
	}

	return nil
}

// AllSelector matches all files and traverses all directories.
type AllSelector struct{}

func (s AllSelector) Match(file *FileInfo) bool               { return true }
func (s AllSelector) TraverseDescendants(file *FileInfo) bool { return true }

// All returns a selector that matches every file.
func All() FileSelector {
	return AllSelector{}
}

type globSelector struct {
	pattern string
}

// Glob creates a selector matching file names against a glob pattern.
// Supports: *, ?, [abc], [a-z]
func Glob(pattern string) FileSelector {
	return &globSelector{pattern: pattern}
}

func (s *globSelector) Match(file *FileInfo) bool {
	matched, err := filepath.Match(s.pattern, file.Name)
	if err != nil {
		return false
	}
	return matched
}

func (s *globSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type olderThanSelector struct {
	cutoff time.Time
}

// OlderThan matches files whose modification time is before now-age.
// The retention sweep's primary filter.
func OlderThan(age time.Duration) FileSelector {
	return &olderThanSelector{cutoff: time.Now().Add(-age)}
}

// ModifiedBefore matches files whose modification time is before cutoff.
func ModifiedBefore(cutoff time.Time) FileSelector {
	return &olderThanSelector{cutoff: cutoff}
}

func (s *olderThanSelector) Match(file *FileInfo) bool {
	return file.ModTime.Before(s.cutoff)
}

func (s *olderThanSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type andSelector struct {
	selectors []FileSelector
}

// And matches only if ALL selectors match.
func And(selectors ...FileSelector) FileSelector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(file) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector FileSelector
}

// Not inverts a selector's match result.
func Not(selector FileSelector) FileSelector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(file *FileInfo) bool {
	return !s.selector.Match(file)
}

func (s *notSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type funcSelector struct {
	matchFn func(*FileInfo) bool
}

// FuncSelector creates a selector from a custom function, the escape
// hatch for filtering logic not covered by the built-ins.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return &funcSelector{matchFn: fn}
}

func (s *funcSelector) Match(file *FileInfo) bool               { return s.matchFn(file) }
func (s *funcSelector) TraverseDescendants(file *FileInfo) bool { return true }
