// Package memory keeps an artifact store in process memory. It backs tests and
// dry runs of publish pipelines.
package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/artifactkit"
)

// memoryFile represents a file stored in memory
type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
}

// Adapter provides an in-memory implementation of artifactkit.FileSystem.
// The root directory always exists and is keyed "".
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]time.Time
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory store
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    map[string]time.Time{"": time.Now()},
		maxSize: maxSize,
	}
}

// Write implements artifactkit.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...artifactkit.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, ok := normalizePath(p)
	if !ok || p == "" {
		return &artifactkit.PathError{Op: "write", Path: p, Err: artifactkit.ErrNotAllowed}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &artifactkit.PathError{Op: "write", Path: p, Err: err}
	}

	opts := artifactkit.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return &artifactkit.PathError{Op: "write", Path: p, Err: artifactkit.ErrIsDir}
	}

	newSize := a.size + int64(len(data))
	if existing, exists := a.files[p]; exists {
		if !opts.Overwrite {
			return &artifactkit.PathError{Op: "write", Path: p, Err: artifactkit.ErrExist}
		}
		newSize -= int64(len(existing.content))
	}

	if a.maxSize > 0 && newSize > a.maxSize {
		return &artifactkit.PathError{Op: "write", Path: p, Err: artifactkit.ErrInvalidSize}
	}

	a.ensureParentDirs(p)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = artifactkit.GuessContentType(p, data)
	}

	a.files[p] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		modTime:     time.Now(),
	}
	a.size = newSize

	return nil
}

// Read implements artifactkit.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[p]
	if !exists {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &artifactkit.PathError{Op: "read", Path: p, Err: artifactkit.ErrIsDir}
		}
		return nil, &artifactkit.PathError{Op: "read", Path: p, Err: artifactkit.ErrNotExist}
	}

	// content is never mutated in place, so sharing the slice is safe
	return io.NopCloser(bytes.NewReader(file.content)), nil
}

// ReadAll implements artifactkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements artifactkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.Lock()
	defer a.mu.Unlock()

	file, exists := a.files[p]
	if !exists {
		return &artifactkit.PathError{Op: "delete", Path: p, Err: artifactkit.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, p)

	return nil
}

// FileExists implements artifactkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.files[p]
	return exists, nil
}

// DirExists implements artifactkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.dirs[p]
	return exists, nil
}

// Stat implements artifactkit.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*artifactkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if info, ok := a.info(p); ok {
		return &info, nil
	}

	return nil, &artifactkit.PathError{Op: "stat", Path: p, Err: artifactkit.ErrNotExist}
}

// info must be called with the lock held.
func (a *Adapter) info(p string) (artifactkit.FileInfo, bool) {
	if file, exists := a.files[p]; exists {
		return artifactkit.FileInfo{
			Name:        path.Base(p),
			Path:        p,
			Size:        int64(len(file.content)),
			ModTime:     file.modTime,
			ContentType: file.contentType,
			Metadata:    file.metadata,
		}, true
	}
	if modTime, exists := a.dirs[p]; exists {
		return artifactkit.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			ModTime: modTime,
			IsDir:   true,
		}, true
	}
	return artifactkit.FileInfo{}, false
}

// ListContents implements artifactkit.FileReader. Entries carry full store
// paths and are sorted by path.
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]artifactkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p, _ = normalizePath(p)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return nil, &artifactkit.PathError{Op: "listcontents", Path: p, Err: artifactkit.ErrNotDir}
		}
		return nil, &artifactkit.PathError{Op: "listcontents", Path: p, Err: artifactkit.ErrNotExist}
	}

	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	under := func(candidate string) bool {
		if candidate == "" || !strings.HasPrefix(candidate, prefix) {
			return false
		}
		return recursive || !strings.Contains(candidate[len(prefix):], "/")
	}

	var names []string
	for name := range a.files {
		if under(name) {
			names = append(names, name)
		}
	}
	for name := range a.dirs {
		if under(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	files := make([]artifactkit.FileInfo, 0, len(names))
	for _, name := range names {
		info, _ := a.info(name)
		files = append(files, info)
	}
	return files, nil
}

// CreateDir implements artifactkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, ok := normalizePath(p)
	if !ok {
		return &artifactkit.PathError{Op: "createdir", Path: p, Err: artifactkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[p]; exists {
		return &artifactkit.PathError{Op: "createdir", Path: p, Err: artifactkit.ErrExist}
	}

	a.ensureParentDirs(p)
	if _, exists := a.dirs[p]; !exists {
		a.dirs[p] = time.Now()
	}

	return nil
}

// DeleteDir implements artifactkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, _ = normalizePath(p)
	if p == "" {
		return &artifactkit.PathError{Op: "deletedir", Path: p, Err: artifactkit.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return &artifactkit.PathError{Op: "deletedir", Path: p, Err: artifactkit.ErrNotDir}
		}
		return &artifactkit.PathError{Op: "deletedir", Path: p, Err: artifactkit.ErrNotExist}
	}

	prefix := p + "/"
	for name, file := range a.files {
		if strings.HasPrefix(name, prefix) {
			a.size -= int64(len(file.content))
			delete(a.files, name)
		}
	}
	for name := range a.dirs {
		if name == p || strings.HasPrefix(name, prefix) {
			delete(a.dirs, name)
		}
	}

	return nil
}

// Clear removes all files and directories
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = map[string]time.Time{"": time.Now()}
	a.size = 0
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// Paths returns every stored file path, sorted.
func (a *Adapter) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.files))
	for name := range a.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ensureParentDirs creates all parent directories for a given path.
// Must be called with lock held.
func (a *Adapter) ensureParentDirs(p string) {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = time.Now()
		}
	}
}

// normalizePath cleans p to the key form "a/b". It reports false when p
// climbs above the root.
func normalizePath(p string) (string, bool) {
	p = strings.ReplaceAll(p, `\`, "/")
	clean := path.Clean("/" + p)
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return strings.TrimPrefix(clean, "/"), false
		}
	}
	return strings.TrimPrefix(clean, "/"), true
}
