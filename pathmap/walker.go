package pathmap

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Match is one resolved path together with the captures gathered while
// matching it.
type Match struct {
	// Path is the absolute OS path for Locate, or the fs.FS path for LocateFS.
	Path string
	// Rel is the slash-separated path relative to the walk root.
	Rel string
	// IsDir reports whether the match is a directory (symlinks are followed).
	IsDir bool
	// Captures holds every capture in segment order.
	Captures []string
}

// Locate resolves p against the directory tree rooted at rootDir. A missing
// root yields no matches and no error. Entry names are taken as the OS
// reports them, so names that are not valid UTF-8 still match.
func Locate(p *Pattern, rootDir string) ([]Match, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	osPath := func(rel string) string {
		if rel == "." {
			return root
		}
		return filepath.Join(root, filepath.FromSlash(rel))
	}
	w := &walker{
		segments: p.segments,
		readDir:  func(rel string) ([]fs.DirEntry, error) { return os.ReadDir(osPath(rel)) },
		stat:     func(rel string) (fs.FileInfo, error) { return os.Stat(osPath(rel)) },
		path:     osPath,
	}
	if err := w.walk(".", 0, nil); err != nil {
		return nil, err
	}
	return w.matches, nil
}

// LocateFS resolves p against fsys. Results follow the directory listing
// order of each level, which for fs.ReadDir is sorted by name.
func LocateFS(fsys fs.FS, p *Pattern) ([]Match, error) {
	info, err := fs.Stat(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	w := &walker{
		segments: p.segments,
		readDir:  func(rel string) ([]fs.DirEntry, error) { return fs.ReadDir(fsys, rel) },
		stat:     func(rel string) (fs.FileInfo, error) { return fs.Stat(fsys, rel) },
		path:     func(rel string) string { return rel },
	}
	if err := w.walk(".", 0, nil); err != nil {
		return nil, err
	}
	return w.matches, nil
}

type walker struct {
	segments []segment
	readDir  func(rel string) ([]fs.DirEntry, error)
	stat     func(rel string) (fs.FileInfo, error)
	path     func(rel string) string
	matches  []Match
}

// walk matches the children of dir against segments[depth]. captures is the
// list inherited from the parent level and is never mutated.
func (w *walker) walk(dir string, depth int, captures []string) error {
	entries, err := w.readDir(dir)
	if err != nil {
		// A directory removed under us is not an error.
		if depth > 0 && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	seg := w.segments[depth]
	last := depth == len(w.segments)-1

	for _, entry := range entries {
		got, ok := seg.match(entry.Name())
		if !ok {
			continue
		}

		rel := entry.Name()
		if dir != "." {
			rel = path.Join(dir, entry.Name())
		}
		isDir := w.isDir(rel, entry)

		acc := make([]string, 0, len(captures)+len(got))
		acc = append(acc, captures...)
		acc = append(acc, got...)

		if last {
			w.matches = append(w.matches, Match{Path: w.path(rel), Rel: rel, IsDir: isDir, Captures: acc})
			continue
		}
		if !isDir {
			continue
		}
		if err := w.walk(rel, depth+1, acc); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) isDir(rel string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := w.stat(rel)
	if err != nil {
		return false
	}
	return info.IsDir()
}
