package artifactkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// FileSelector filters entries while walking a store directory.
type FileSelector interface {
	// Match reports whether a file belongs in the result.
	Match(file *FileInfo) bool

	// TraverseDescendants reports whether a directory should be entered.
	TraverseDescendants(dir *FileInfo) bool
}

// ListWithSelector returns the files below dir that the selector matches.
// Directories themselves are never returned. A nil selector matches all.
//
//	apks, err := artifactkit.ListWithSelector(ctx, store, "android/1042",
//	    artifactkit.MustGlob("*.apk"), true)
func ListWithSelector(ctx context.Context, store FileReader, dir string, selector FileSelector, recursive bool) ([]FileInfo, error) {
	if selector == nil {
		selector = All()
	}
	var results []FileInfo
	if err := listSelected(ctx, store, dir, selector, recursive, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func listSelected(ctx context.Context, store FileReader, dir string, selector FileSelector, recursive bool, results *[]FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := store.ListContents(ctx, dir, false)
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.IsDir {
			if recursive && selector.TraverseDescendants(e) {
				if err := listSelected(ctx, store, e.Path, selector, recursive, results); err != nil {
					return err
				}
			}
			continue
		}
		if selector.Match(e) {
			*results = append(*results, *e)
		}
	}
	return nil
}

type allSelector struct{}

func (allSelector) Match(*FileInfo) bool               { return true }
func (allSelector) TraverseDescendants(*FileInfo) bool { return true }

// All matches every file.
func All() FileSelector {
	return allSelector{}
}

type globSelector struct {
	g        glob.Glob
	fullPath bool
}

// Glob builds a selector from a glob pattern. A pattern without a slash is
// matched against the file name, otherwise against the full store path,
// where "**" crosses directories and "*" does not.
func Glob(pattern string) (FileSelector, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	return &globSelector{g: g, fullPath: strings.Contains(pattern, "/")}, nil
}

// MustGlob is like Glob but panics on a bad pattern.
func MustGlob(pattern string) FileSelector {
	s, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *globSelector) Match(file *FileInfo) bool {
	if s.fullPath {
		return s.g.Match(strings.TrimPrefix(file.Path, "/"))
	}
	return s.g.Match(file.Name)
}

func (s *globSelector) TraverseDescendants(*FileInfo) bool { return true }

type depthSelector struct {
	max  int
	base string
}

// Depth limits the walk to maxDepth levels below base. Depth 1 keeps the
// immediate children of base.
func Depth(maxDepth int, base string) FileSelector {
	return &depthSelector{max: maxDepth, base: strings.Trim(base, "/")}
}

func (s *depthSelector) depth(p string) int {
	rel := strings.Trim(strings.TrimPrefix(strings.Trim(p, "/"), s.base), "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *depthSelector) Match(file *FileInfo) bool {
	return s.depth(file.Path) <= s.max
}

func (s *depthSelector) TraverseDescendants(dir *FileInfo) bool {
	return s.depth(dir.Path) < s.max
}

type andSelector []FileSelector

// And matches when every selector matches.
func And(selectors ...FileSelector) FileSelector {
	return andSelector(selectors)
}

func (s andSelector) Match(file *FileInfo) bool {
	for _, sel := range s {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s andSelector) TraverseDescendants(dir *FileInfo) bool {
	for _, sel := range s {
		if !sel.TraverseDescendants(dir) {
			return false
		}
	}
	return true
}

type orSelector []FileSelector

// Or matches when any selector matches.
func Or(selectors ...FileSelector) FileSelector {
	return orSelector(selectors)
}

func (s orSelector) Match(file *FileInfo) bool {
	for _, sel := range s {
		if sel.Match(file) {
			return true
		}
	}
	return false
}

func (s orSelector) TraverseDescendants(dir *FileInfo) bool {
	for _, sel := range s {
		if sel.TraverseDescendants(dir) {
			return true
		}
	}
	return false
}

type notSelector struct{ s FileSelector }

// Not inverts a selector's match. Traversal is unaffected.
func Not(selector FileSelector) FileSelector {
	return notSelector{selector}
}

func (n notSelector) Match(file *FileInfo) bool          { return !n.s.Match(file) }
func (n notSelector) TraverseDescendants(*FileInfo) bool { return true }

type funcSelector func(*FileInfo) bool

// FuncSelector matches files for which fn returns true.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return funcSelector(fn)
}

func (f funcSelector) Match(file *FileInfo) bool          { return f(file) }
func (f funcSelector) TraverseDescendants(*FileInfo) bool { return true }
