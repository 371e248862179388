package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Result summarises a completed extraction.
type Result struct {
	// TargetDir is the absolute, symlink-resolved extraction root.
	TargetDir string
	// LatestModTime is the newest modification time across all entries,
	// skipped ones included. It is zero for an empty archive.
	LatestModTime time.Time
	// Files and Dirs count the entries written.
	Files int
	Dirs  int
	// Skipped lists entries that were not extracted (links and devices).
	Skipped []string
}

// Extract unpacks archivePath into targetDir, creating targetDir if needed.
// The format is chosen by Detect.
//
// Extraction stops at the first failing entry. Files already written are
// left in place.
func Extract(archivePath, targetDir string, opts ...Option) (*Result, error) {
	format, err := Detect(archivePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, newError("extract", archivePath, "", ErrArchiveRead, err)
	}
	defer f.Close()

	root, err := prepareRoot(targetDir)
	if err != nil {
		return nil, newError("extract", archivePath, "", ErrIO, err)
	}

	x := &extractor{
		archive:            archivePath,
		root:               root,
		opts:               newOptions(opts),
		result:             &Result{TargetDir: root},
		backslashSeparates: format == Zip,
	}

	switch format {
	case Zip:
		err = x.extractZip(f)
	case Tar:
		err = x.extractTar(f)
	case TarGz:
		err = x.extractTarGz(f)
	}
	if err != nil {
		return nil, err
	}

	if err := x.restoreDirTimes(); err != nil {
		return nil, err
	}
	return x.result, nil
}

func prepareRoot(targetDir string) (string, error) {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(root)
}

// extractor carries the state of a single extraction.
type extractor struct {
	archive string
	root    string
	opts    options
	result  *Result
	written int64
	dirs    []dirTime

	backslashSeparates bool
}

type dirTime struct {
	path  string
	mtime time.Time
}

func (x *extractor) fail(entry string, kind, cause error) error {
	return newError("extract", x.archive, entry, kind, cause)
}

func (x *extractor) observe(mtime time.Time) {
	if mtime.After(x.result.LatestModTime) {
		x.result.LatestModTime = mtime
	}
}

// skip records an entry that is not written. Its time still counts.
func (x *extractor) skip(name string, mtime time.Time) {
	x.result.Skipped = append(x.result.Skipped, name)
	x.observe(mtime)
}

// dir creates a directory entry. Its time is applied after all entries are
// written so that later children do not bump it.
func (x *extractor) dir(name string, mtime time.Time) error {
	dst, isRoot, err := x.resolve(name)
	if err != nil {
		return err
	}
	if isRoot {
		return nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return x.fail(name, ErrIO, err)
	}
	x.dirs = append(x.dirs, dirTime{path: dst, mtime: mtime})
	x.result.Dirs++
	x.observe(mtime)
	return nil
}

// file streams r into a new file for entry name. size is the size declared by
// the archive, or -1 when unknown.
func (x *extractor) file(name string, r io.Reader, size int64, mode os.FileMode, mtime time.Time) error {
	dst, isRoot, err := x.resolve(name)
	if err != nil {
		return err
	}
	if isRoot {
		return x.fail(name, ErrPathTraversal, errors.New("file entry names the target directory"))
	}
	if err := x.checkLimits(name, size); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return x.fail(name, ErrIO, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return x.fail(name, ErrIO, err)
	}

	src := &countingReader{r: r, x: x}
	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	switch {
	case copyErr != nil && errors.Is(copyErr, ErrLimitExceeded):
		return x.fail(name, ErrLimitExceeded, nil)
	case copyErr != nil && src.err != nil:
		return x.fail(name, ErrArchiveRead, src.err)
	case copyErr != nil:
		return x.fail(name, ErrIO, copyErr)
	case closeErr != nil:
		return x.fail(name, ErrIO, closeErr)
	}

	// An existing file keeps its old mode and the create mode is subject to
	// umask, so set it explicitly.
	if err := os.Chmod(dst, mode); err != nil {
		return x.fail(name, ErrIO, err)
	}
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return x.fail(name, ErrIO, err)
	}

	x.result.Files++
	x.observe(mtime)
	return nil
}

func (x *extractor) checkLimits(name string, size int64) error {
	o := x.opts
	if o.maxFiles > 0 && x.result.Files >= o.maxFiles {
		return x.fail(name, ErrLimitExceeded, fmt.Errorf("more than %d files", o.maxFiles))
	}
	if o.maxFileSize > 0 && size > o.maxFileSize {
		return x.fail(name, ErrLimitExceeded, fmt.Errorf("size %d exceeds %d", size, o.maxFileSize))
	}
	if o.maxSize > 0 && size > 0 && x.written+size > o.maxSize {
		return x.fail(name, ErrLimitExceeded, fmt.Errorf("total size exceeds %d", o.maxSize))
	}
	return nil
}

// restoreDirTimes applies directory times deepest first.
func (x *extractor) restoreDirTimes() error {
	sort.SliceStable(x.dirs, func(i, j int) bool {
		return strings.Count(x.dirs[i].path, string(os.PathSeparator)) >
			strings.Count(x.dirs[j].path, string(os.PathSeparator))
	})
	for _, d := range x.dirs {
		if err := os.Chtimes(d.path, d.mtime, d.mtime); err != nil {
			return x.fail(d.path, ErrIO, err)
		}
	}
	return nil
}

// countingReader enforces size limits on the bytes actually read and
// remembers read failures so copy errors can be attributed to the archive.
type countingReader struct {
	r   io.Reader
	x   *extractor
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	c.x.written += int64(n)

	o := c.x.opts
	if (o.maxFileSize > 0 && c.n > o.maxFileSize) || (o.maxSize > 0 && c.x.written > o.maxSize) {
		return n, ErrLimitExceeded
	}
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}
