package artifactkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

func init() {
	// Stand-ins for the real drivers, which cannot be imported from here.
	RegisterDriver("local", func(cfg *Config) (FileSystem, error) {
		if cfg.LocalBasePath == "" {
			return nil, fmt.Errorf("local base path is required")
		}
		return newFakeStore(), nil
	})
	RegisterDriver("s3", func(cfg *Config) (FileSystem, error) {
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required")
		}
		return newFakeStore(), nil
	})
}

// fakeStore keeps files in a map and counts calls per operation.
type fakeStore struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"": true},
		calls: make(map[string]int),
	}
}

func fakeClean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (s *fakeStore) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *fakeStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeStore) mkdirs(p string) {
	for ; p != "" && p != "."; p = path.Dir(p) {
		s.dirs[p] = true
	}
}

func (s *fakeStore) Write(ctx context.Context, p string, r io.Reader, opts ...Option) error {
	s.count("write")
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p = fakeClean(p)
	o := ApplyOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[p]; ok && !o.Overwrite {
		return &PathError{Op: "write", Path: p, Err: ErrExist}
	}
	s.files[p] = data
	s.mkdirs(path.Dir(p))
	return nil
}

func (s *fakeStore) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := s.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) ReadAll(ctx context.Context, p string) ([]byte, error) {
	s.count("read")
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[fakeClean(p)]
	if !ok {
		return nil, &PathError{Op: "read", Path: p, Err: ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) FileExists(ctx context.Context, p string) (bool, error) {
	s.count("fileexists")
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[fakeClean(p)]
	return ok, nil
}

func (s *fakeStore) DirExists(ctx context.Context, p string) (bool, error) {
	s.count("direxists")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[fakeClean(p)], nil
}

func (s *fakeStore) Stat(ctx context.Context, p string) (*FileInfo, error) {
	s.count("stat")
	p = fakeClean(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.files[p]; ok {
		return &FileInfo{Name: path.Base(p), Path: p, Size: int64(len(data))}, nil
	}
	if s.dirs[p] {
		return &FileInfo{Name: path.Base(p), Path: p, IsDir: true}, nil
	}
	return nil, &PathError{Op: "stat", Path: p, Err: ErrNotExist}
}

func (s *fakeStore) ListContents(ctx context.Context, p string, recursive bool) ([]FileInfo, error) {
	s.count("list")
	p = fakeClean(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirs[p] {
		return nil, &PathError{Op: "list", Path: p, Err: ErrNotExist}
	}

	under := func(q string) bool {
		if q == "" || q == p {
			return false
		}
		if p != "" && !strings.HasPrefix(q, p+"/") {
			return false
		}
		return recursive || path.Dir(q) == p || (p == "" && !strings.Contains(q, "/"))
	}

	var out []FileInfo
	for d := range s.dirs {
		if under(d) {
			out = append(out, FileInfo{Name: path.Base(d), Path: d, IsDir: true})
		}
	}
	for f, data := range s.files {
		if under(f) {
			out = append(out, FileInfo{Name: path.Base(f), Path: f, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, p string) error {
	s.count("delete")
	p = fakeClean(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[p]; !ok {
		return &PathError{Op: "delete", Path: p, Err: ErrNotExist}
	}
	delete(s.files, p)
	return nil
}

func (s *fakeStore) CreateDir(ctx context.Context, p string) error {
	s.count("createdir")
	s.mu.Lock()
	s.mkdirs(fakeClean(p))
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) DeleteDir(ctx context.Context, p string) error {
	s.count("deletedir")
	p = fakeClean(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	for f := range s.files {
		if strings.HasPrefix(f, p+"/") {
			delete(s.files, f)
		}
	}
	for d := range s.dirs {
		if d == p || strings.HasPrefix(d, p+"/") {
			delete(s.dirs, d)
		}
	}
	return nil
}

var _ FileSystem = (*fakeStore)(nil)
