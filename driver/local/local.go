// Package local stores artifacts in a directory on the local disk.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobeaver/artifactkit"
)

// Adapter provides a local filesystem implementation of artifactkit.FileSystem.
// Store paths are slash-separated and relative to the root.
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the absolute directory backing the store.
func (a *Adapter) Root() string {
	return a.root
}

// resolve maps a store path to a path on disk, refusing anything outside root.
func (a *Adapter) resolve(op, p string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(p))
	fullPath := filepath.Join(a.root, filepath.FromSlash(clean))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotAllowed}
	}
	return fullPath, nil
}

// Write implements artifactkit.FileWriter. Content is written to a temporary
// file and renamed into place, so readers never see a partial artifact.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...artifactkit.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("write", path)
	if err != nil {
		return err
	}

	opts := artifactkit.ApplyOptions(options...)
	if !opts.Overwrite {
		if _, err := os.Stat(fullPath); err == nil {
			return &artifactkit.PathError{Op: "write", Path: path, Err: artifactkit.ErrExist}
		}
	}

	// Ensure the directory exists
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &artifactkit.PathError{Op: "write", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".artifactkit-*")
	if err != nil {
		return &artifactkit.PathError{Op: "write", Path: path, Err: err}
	}

	_, err = io.Copy(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0644)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), fullPath)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return &artifactkit.PathError{Op: "write", Path: path, Err: err}
	}

	return nil
}

// Read implements artifactkit.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("read", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapOSError("read", path, err)
	}

	return f, nil
}

// ReadAll implements artifactkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements artifactkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("delete", path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapOSError("delete", path, err)
	}
	if info.IsDir() {
		return &artifactkit.PathError{Op: "delete", Path: path, Err: artifactkit.ErrIsDir}
	}

	if err := os.Remove(fullPath); err != nil {
		return mapOSError("delete", path, err)
	}

	return nil
}

// FileExists implements artifactkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	info, err := a.stat(ctx, "fileexists", path)
	if err != nil {
		if artifactkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DirExists implements artifactkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	info, err := a.stat(ctx, "direxists", path)
	if err != nil {
		if artifactkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (a *Adapter) stat(ctx context.Context, op, path string) (os.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve(op, path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapOSError(op, path, err)
	}
	return info, nil
}

// Stat implements artifactkit.FileReader
func (a *Adapter) Stat(ctx context.Context, path string) (*artifactkit.FileInfo, error) {
	info, err := a.stat(ctx, "stat", path)
	if err != nil {
		return nil, err
	}
	return fileInfo(storePath(path), info), nil
}

// ListContents implements artifactkit.FileReader. Returned paths are full
// store paths.
func (a *Adapter) ListContents(ctx context.Context, dir string, recursive bool) ([]artifactkit.FileInfo, error) {
	info, err := a.stat(ctx, "listcontents", dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &artifactkit.PathError{Op: "listcontents", Path: dir, Err: artifactkit.ErrNotDir}
	}

	fullPath, _ := a.resolve("listcontents", dir)
	base := storePath(dir)

	var files []artifactkit.FileInfo

	if !recursive {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return nil, &artifactkit.PathError{Op: "listcontents", Path: dir, Err: err}
		}
		files = make([]artifactkit.FileInfo, 0, len(entries))
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, *fileInfo(joinStore(base, entry.Name()), info))
		}
		return files, nil
	}

	err = filepath.WalkDir(fullPath, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if walkPath == fullPath {
			return nil
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(fullPath, walkPath)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, *fileInfo(joinStore(base, filepath.ToSlash(rel)), info))
		return nil
	})
	if err != nil {
		return nil, &artifactkit.PathError{Op: "listcontents", Path: dir, Err: err}
	}

	return files, nil
}

// CreateDir implements artifactkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Continue
	}

	fullPath, err := a.resolve("createdir", path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return mapOSError("createdir", path, err)
	}

	return nil
}

// DeleteDir implements artifactkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	info, err := a.stat(ctx, "deletedir", path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &artifactkit.PathError{Op: "deletedir", Path: path, Err: artifactkit.ErrNotDir}
	}

	fullPath, _ := a.resolve("deletedir", path)
	if fullPath == a.root {
		return &artifactkit.PathError{Op: "deletedir", Path: path, Err: artifactkit.ErrNotAllowed}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return &artifactkit.PathError{Op: "deletedir", Path: path, Err: err}
	}

	return nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func mapOSError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &artifactkit.PathError{Op: op, Path: path, Err: artifactkit.ErrNotExist}
	case errors.Is(err, fs.ErrPermission):
		return &artifactkit.PathError{Op: op, Path: path, Err: artifactkit.ErrPermission}
	case errors.Is(err, fs.ErrExist):
		return &artifactkit.PathError{Op: op, Path: path, Err: artifactkit.ErrExist}
	}
	return &artifactkit.PathError{Op: op, Path: path, Err: err}
}

func fileInfo(p string, info os.FileInfo) *artifactkit.FileInfo {
	fi := &artifactkit.FileInfo{
		Name:    info.Name(),
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !info.IsDir() {
		fi.ContentType = artifactkit.ContentTypeByName(info.Name())
	}
	return fi
}

// storePath normalises a caller path to the slash form used in FileInfo.
func storePath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
}

func joinStore(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

var _ artifactkit.FileSystem = (*Adapter)(nil)
