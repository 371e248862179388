// Package webdav stores artifacts on a WebDAV server (Apache mod_dav, nginx,
// Nextcloud and the like). It is the default artifactkit driver.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/gobeaver/artifactkit"
)

// Adapter provides a WebDAV implementation of artifactkit.FileSystem
type Adapter struct {
	client *gowebdav.Client
	config Config

	// collections already known to exist on the server
	dirs sync.Map
}

// Config holds WebDAV connection configuration
type Config struct {
	// URL is the collection all store paths are relative to.
	URL      string
	Username string
	Password string
	// Timeout bounds each HTTP request. Zero keeps the client default.
	Timeout time.Duration
}

// AdapterOption is a function that configures the WebDAV Adapter
type AdapterOption func(*Adapter)

// WithTransport replaces the HTTP transport, e.g. to add custom TLS roots.
func WithTransport(rt http.RoundTripper) AdapterOption {
	return func(a *Adapter) {
		a.client.SetTransport(rt)
	}
}

// WithHeader sends an extra header with every request.
func WithHeader(key, value string) AdapterOption {
	return func(a *Adapter) {
		a.client.SetHeader(key, value)
	}
}

// New creates a new WebDAV store adapter. No request is made until the
// first operation.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webdav URL is required")
	}

	client := gowebdav.NewClient(strings.TrimSuffix(cfg.URL, "/"), cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	adapter := &Adapter{
		client: client,
		config: cfg,
	}
	for _, option := range options {
		option(adapter)
	}

	return adapter, nil
}

// URL returns the server collection the adapter writes to.
func (a *Adapter) URL() string {
	return a.config.URL
}

// Ping checks that the server answers and accepts the credentials.
func (a *Adapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := a.client.Connect(); err != nil {
		return mapWebDAVError("connect", a.config.URL, err)
	}
	return nil
}

// Write implements artifactkit.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...artifactkit.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p, err := cleanPath("write", filePath)
	if err != nil {
		return err
	}
	if p == "" {
		return &artifactkit.PathError{Op: "write", Path: filePath, Err: artifactkit.ErrNotAllowed}
	}

	opts := artifactkit.ApplyOptions(options...)
	if !opts.Overwrite {
		exists, err := a.FileExists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			return &artifactkit.PathError{Op: "write", Path: p, Err: artifactkit.ErrExist}
		}
	}

	if parent := path.Dir(p); parent != "." {
		if err := a.CreateDir(ctx, parent); err != nil {
			return err
		}
	}

	if err := a.client.WriteStream(remote(p), content, 0644); err != nil {
		return mapWebDAVError("write", p, err)
	}

	return nil
}

// Read implements artifactkit.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p, err := cleanPath("read", filePath)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.ReadStream(remote(p))
	if err != nil {
		return nil, mapWebDAVError("read", p, err)
	}
	return rc, nil
}

// ReadAll implements artifactkit.FileReader
func (a *Adapter) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements artifactkit.FileWriter
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	info, err := a.Stat(ctx, filePath)
	if err != nil {
		return err
	}
	if info.IsDir {
		return &artifactkit.PathError{Op: "delete", Path: info.Path, Err: artifactkit.ErrIsDir}
	}

	if err := a.client.Remove(remote(info.Path)); err != nil {
		return mapWebDAVError("delete", info.Path, err)
	}
	return nil
}

// FileExists implements artifactkit.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	info, err := a.Stat(ctx, filePath)
	if err != nil {
		if artifactkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir, nil
}

// DirExists implements artifactkit.FileReader
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	info, err := a.Stat(ctx, dirPath)
	if err != nil {
		if artifactkit.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir, nil
}

// Stat implements artifactkit.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*artifactkit.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p, err := cleanPath("stat", filePath)
	if err != nil {
		return nil, err
	}

	info, err := a.client.Stat(remote(p))
	if err != nil {
		return nil, mapWebDAVError("stat", p, err)
	}

	fi := fileInfo(p, info)
	if p == "" {
		fi.IsDir = true
	}
	return fi, nil
}

// ListContents implements artifactkit.FileReader. Entries carry full store
// paths, parents before children.
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]artifactkit.FileInfo, error) {
	info, err := a.Stat(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir {
		return nil, &artifactkit.PathError{Op: "listcontents", Path: info.Path, Err: artifactkit.ErrNotDir}
	}

	var files []artifactkit.FileInfo
	if err := a.list(ctx, info.Path, recursive, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (a *Adapter) list(ctx context.Context, dir string, recursive bool, out *[]artifactkit.FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := a.client.ReadDir(remote(dir))
	if err != nil {
		return mapWebDAVError("listcontents", dir, err)
	}

	for _, entry := range entries {
		child := path.Join(dir, entry.Name())
		*out = append(*out, *fileInfo(child, entry))
		if recursive && entry.IsDir() {
			if err := a.list(ctx, child, true, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateDir implements artifactkit.FileWriter. Missing collections are
// created one level at a time, since MKCOL never creates parents.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	p, err := cleanPath("createdir", dirPath)
	if err != nil {
		return err
	}

	var sub string
	for _, name := range strings.Split(p, "/") {
		if name == "" {
			continue
		}
		sub = path.Join(sub, name)
		if _, ok := a.dirs.Load(sub); ok {
			continue
		}

		exists, err := a.DirExists(ctx, sub)
		if err != nil {
			return err
		}
		if !exists {
			if err := a.client.Mkdir(remote(sub), 0755); err != nil {
				// another publisher may have won the race
				if ok, _ := a.DirExists(ctx, sub); !ok {
					return mapWebDAVError("createdir", sub, err)
				}
			}
		}
		a.dirs.Store(sub, struct{}{})
	}
	return nil
}

// DeleteDir implements artifactkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	info, err := a.Stat(ctx, dirPath)
	if err != nil {
		return err
	}
	if !info.IsDir {
		return &artifactkit.PathError{Op: "deletedir", Path: info.Path, Err: artifactkit.ErrNotDir}
	}
	if info.Path == "" {
		return &artifactkit.PathError{Op: "deletedir", Path: dirPath, Err: artifactkit.ErrNotAllowed}
	}

	if err := a.client.RemoveAll(remote(info.Path)); err != nil {
		return mapWebDAVError("deletedir", info.Path, err)
	}

	prefix := info.Path + "/"
	a.dirs.Range(func(key, _ any) bool {
		if k := key.(string); k == info.Path || strings.HasPrefix(k, prefix) {
			a.dirs.Delete(k)
		}
		return true
	})
	return nil
}

// cleanPath reduces a store path to the "a/b" form, rejecting paths that
// climb out of the collection.
func cleanPath(op, p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotAllowed}
		}
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/"), nil
}

func remote(p string) string {
	return "/" + p
}

func fileInfo(p string, info os.FileInfo) *artifactkit.FileInfo {
	fi := &artifactkit.FileInfo{
		Name:    path.Base(p),
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if p == "" {
		fi.Name = ""
	}
	if ct, ok := info.(interface{ ContentType() string }); ok && !fi.IsDir {
		fi.ContentType = ct.ContentType()
	}
	return fi
}

// mapWebDAVError converts client errors to artifactkit errors
func mapWebDAVError(op, p string, err error) error {
	switch {
	case gowebdav.IsErrNotFound(err), errors.Is(err, fs.ErrNotExist):
		return &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotExist}
	case gowebdav.IsErrCode(err, http.StatusUnauthorized), gowebdav.IsErrCode(err, http.StatusForbidden):
		return &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrPermission}
	case gowebdav.IsErrCode(err, http.StatusInsufficientStorage):
		return &artifactkit.PathError{Op: op, Path: p, Err: fmt.Errorf("%w: %v", artifactkit.ErrInvalidSize, err)}
	}
	return &artifactkit.PathError{Op: op, Path: p, Err: err}
}

var _ artifactkit.FileSystem = (*Adapter)(nil)
