package artifactkit

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// ErrReadOnly is returned when a write operation is attempted on a read-only store.
var ErrReadOnly = errors.New("store is read-only")

// ReadOnlyFileSystem wraps a store so that only reads pass through. Agents
// that only fetch artifacts are configured with it (Config.ReadOnly).
//
//	store := artifactkit.NewReadOnlyFileSystem(webdavStore)
//	_, err := artifactkit.Fetch(ctx, store, req)   // fine
//	_, err = artifactkit.Publish(ctx, store, pub)  // wraps ErrReadOnly
type ReadOnlyFileSystem struct {
	fs   FileSystem
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyFileSystem behavior.
type ReadOnlyOptions struct {
	// OnWriteAttempt is called when a write operation is attempted.
	// If it returns nil the write is allowed.
	OnWriteAttempt func(op, path string) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// LogWriteAttempt is a write handler that refuses every write and logs it
// as a warning. New installs it when Config.ReadOnly is set, so a publish
// misdirected at a fetch-only agent shows up in the build log.
func LogWriteAttempt(op, path string) error {
	log.Warn().Str("op", op).Str("path", path).Msg("write refused by read-only store")
	return ErrReadOnly
}

// NewReadOnlyFileSystem creates a read-only wrapper around a store.
func NewReadOnlyFileSystem(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyFileSystem{
		fs:   fs,
		opts: options,
	}
}

// Unwrap returns the underlying store.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem {
	return r.fs
}

func (r *ReadOnlyFileSystem) deny(op, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			return &PathError{Op: op, Path: path, Err: err}
		}
		return nil
	}
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

func (r *ReadOnlyFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Read(ctx, path)
}

func (r *ReadOnlyFileSystem) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return r.fs.ReadAll(ctx, path)
}

func (r *ReadOnlyFileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	return r.fs.FileExists(ctx, path)
}

func (r *ReadOnlyFileSystem) DirExists(ctx context.Context, path string) (bool, error) {
	return r.fs.DirExists(ctx, path)
}

func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

func (r *ReadOnlyFileSystem) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	return r.fs.ListContents(ctx, path, recursive)
}

// Write returns ErrReadOnly unless the write handler allows it.
func (r *ReadOnlyFileSystem) Write(ctx context.Context, path string, content io.Reader, options ...Option) error {
	if err := r.deny("write", path); err != nil {
		return err
	}
	return r.fs.Write(ctx, path, content, options...)
}

// Delete returns ErrReadOnly unless the write handler allows it.
func (r *ReadOnlyFileSystem) Delete(ctx context.Context, path string) error {
	if err := r.deny("delete", path); err != nil {
		return err
	}
	return r.fs.Delete(ctx, path)
}

// CreateDir returns ErrReadOnly unless the write handler allows it.
func (r *ReadOnlyFileSystem) CreateDir(ctx context.Context, path string) error {
	if err := r.deny("createdir", path); err != nil {
		return err
	}
	return r.fs.CreateDir(ctx, path)
}

// DeleteDir returns ErrReadOnly unless the write handler allows it.
func (r *ReadOnlyFileSystem) DeleteDir(ctx context.Context, path string) error {
	if err := r.deny("deletedir", path); err != nil {
		return err
	}
	return r.fs.DeleteDir(ctx, path)
}

var _ FileSystem = (*ReadOnlyFileSystem)(nil)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
