// Package sftp stores artifacts on an SSH server over SFTP.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gobeaver/artifactkit"
)

// Adapter provides an SFTP implementation of artifactkit.FileSystem
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	BasePath   string
	// HostKeyCallback verifies the server key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// New creates a new SFTP store adapter and connects to the server
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:   cfg,
		basePath: cfg.BasePath,
	}

	for _, option := range options {
		option(adapter)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if err := adapter.connectLocked(); err != nil {
		return nil, err
	}

	return adapter, nil
}

// NewWithClient wraps an already established SFTP session. The adapter does
// not reconnect it.
func NewWithClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	adapter := &Adapter{client: client}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// connectLocked establishes SSH and SFTP connections. a.mu must be held.
func (a *Adapter) connectLocked() error {
	if a.config.Host == "" {
		return errors.New("sftp: not connected and no host configured")
	}

	hostKey := a.config.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}
	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: hostKey,
	}

	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}

	if len(sshConfig.Auth) == 0 {
		return errors.New("no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient

	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}

	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}

	return errors.Join(errs...)
}

// session returns a live client, reconnecting when the old session died.
func (a *Adapter) session() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		// connection lost
		a.client.Close()
		a.client = nil
		if a.sshConn != nil {
			a.sshConn.Close()
			a.sshConn = nil
		}
	}

	if err := a.connectLocked(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// prepare runs the checks every operation starts with and returns the
// session and the server side path.
func (a *Adapter) prepare(ctx context.Context, op, p string) (*sftp.Client, string, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", "", ctx.Err()
	default:
	}

	rel, ok := storePath(p)
	if !ok {
		return nil, "", "", &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotAllowed}
	}

	client, err := a.session()
	if err != nil {
		return nil, "", "", &artifactkit.PathError{Op: op, Path: p, Err: err}
	}

	return client, rel, a.fullPath(rel), nil
}

// fullPath returns the full path combining base path and store path
func (a *Adapter) fullPath(rel string) string {
	if a.basePath == "" {
		if rel == "" {
			return "."
		}
		return rel
	}
	return path.Join(a.basePath, rel)
}

// Write implements artifactkit.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...artifactkit.Option) error {
	client, rel, full, err := a.prepare(ctx, "write", filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &artifactkit.PathError{Op: "write", Path: filePath, Err: artifactkit.ErrNotAllowed}
	}

	opts := artifactkit.ApplyOptions(options...)
	if !opts.Overwrite {
		_, err := client.Stat(full)
		if err == nil {
			return &artifactkit.PathError{Op: "write", Path: rel, Err: artifactkit.ErrExist}
		}
		if !errors.Is(err, os.ErrNotExist) {
			return mapSFTPError("write", rel, err)
		}
	}

	if err := client.MkdirAll(path.Dir(full)); err != nil {
		return mapSFTPError("write", rel, err)
	}

	file, err := client.Create(full)
	if err != nil {
		return mapSFTPError("write", rel, err)
	}

	_, err = io.Copy(file, content)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &artifactkit.PathError{Op: "write", Path: rel, Err: err}
	}

	return nil
}

// Read implements artifactkit.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	client, rel, full, err := a.prepare(ctx, "read", filePath)
	if err != nil {
		return nil, err
	}

	file, err := client.Open(full)
	if err != nil {
		return nil, mapSFTPError("read", rel, err)
	}

	return file, nil
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
	client, rel, full, err := a.prepare(ctx, "delete", filePath)
	if err != nil {
		return err
	}

	info, err := client.Stat(full)
	if err != nil {
		return mapSFTPError("delete", rel, err)
	}
	if info.IsDir() {
		return &artifactkit.PathError{Op: "delete", Path: rel, Err: artifactkit.ErrIsDir}
	}

	if err := client.Remove(full); err != nil {
		return mapSFTPError("delete", rel, err)
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
	client, rel, full, err := a.prepare(ctx, "stat", filePath)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError("stat", rel, err)
	}

	return fileInfo(rel, info), nil
}

// ListContents implements artifactkit.FileReader. Entries carry full store
// paths.
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]artifactkit.FileInfo, error) {
	client, rel, full, err := a.prepare(ctx, "listcontents", dirPath)
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError("listcontents", rel, err)
	}
	if !info.IsDir() {
		return nil, &artifactkit.PathError{Op: "listcontents", Path: rel, Err: artifactkit.ErrNotDir}
	}

	var files []artifactkit.FileInfo
	if err := a.list(ctx, client, full, rel, recursive, &files); err != nil {
		return nil, mapSFTPError("listcontents", rel, err)
	}
	return files, nil
}

func (a *Adapter) list(ctx context.Context, client *sftp.Client, full, rel string, recursive bool, results *[]artifactkit.FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := client.ReadDir(full)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		childRel := path.Join(rel, entry.Name())
		*results = append(*results, *fileInfo(childRel, entry))

		if recursive && entry.IsDir() {
			if err := a.list(ctx, client, path.Join(full, entry.Name()), childRel, true, results); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateDir implements artifactkit.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	client, rel, full, err := a.prepare(ctx, "createdir", dirPath)
	if err != nil {
		return err
	}

	if err := client.MkdirAll(full); err != nil {
		return mapSFTPError("createdir", rel, err)
	}

	return nil
}

// DeleteDir implements artifactkit.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	client, rel, full, err := a.prepare(ctx, "deletedir", dirPath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &artifactkit.PathError{Op: "deletedir", Path: dirPath, Err: artifactkit.ErrNotAllowed}
	}

	info, err := client.Stat(full)
	if err != nil {
		return mapSFTPError("deletedir", rel, err)
	}
	if !info.IsDir() {
		return &artifactkit.PathError{Op: "deletedir", Path: rel, Err: artifactkit.ErrNotDir}
	}

	if err := removeAll(client, full); err != nil {
		return mapSFTPError("deletedir", rel, err)
	}

	return nil
}

// removeAll recursively removes a directory and its contents
func removeAll(client *sftp.Client, dirPath string) error {
	entries, err := client.ReadDir(dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryPath := path.Join(dirPath, entry.Name())
		if entry.IsDir() {
			if err := removeAll(client, entryPath); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(entryPath); err != nil {
			return err
		}
	}

	return client.RemoveDirectory(dirPath)
}

// storePath cleans p to "a/b" form and reports false for paths that climb
// above the base.
func storePath(p string) (string, bool) {
	p = strings.ReplaceAll(p, `\`, "/")
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", false
		}
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/"), true
}

func fileInfo(rel string, info os.FileInfo) *artifactkit.FileInfo {
	fi := &artifactkit.FileInfo{
		Name:    path.Base(rel),
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if rel == "" {
		fi.Name = ""
	}
	if !fi.IsDir {
		fi.ContentType = artifactkit.ContentTypeByName(rel)
	}
	return fi
}

// mapSFTPError maps SFTP errors to artifactkit errors
func mapSFTPError(op, p string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotExist}
	case errors.Is(err, os.ErrPermission):
		return &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrPermission}
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) && statusErr.FxCode() == sftp.ErrSSHFxNoSuchFile {
		return &artifactkit.PathError{Op: op, Path: p, Err: artifactkit.ErrNotExist}
	}

	return &artifactkit.PathError{Op: op, Path: p, Err: err}
}

var _ artifactkit.FileSystem = (*Adapter)(nil)
