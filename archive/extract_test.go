package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name    string
	body    string
	dir     bool
	mode    int64
	mtime   time.Time
	symlink string
}

var (
	older = time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	newer = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
)

func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: e.mtime}
		if e.dir {
			hdr.Name += "/"
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		if !e.dir {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, ModTime: e.mtime, Typeflag: tar.TypeReg, Size: int64(len(e.body))}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		case e.symlink != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.symlink
			hdr.Size = 0
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeTar(t *testing.T, path string, entries []entry) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, tarBytes(t, entries), 0o644))
}

func writeTarGz(t *testing.T, path string, entries []entry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(tarBytes(t, entries))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExtract_TarGzScenario(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not represented on windows")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "app.tar.gz")
	writeTarGz(t, src, []entry{
		{name: "bin/run", body: "#!/bin/sh\n", mode: 0o755, mtime: newer},
		{name: "README.md", body: "# app\n", mode: 0o644, mtime: older},
	})

	target := filepath.Join(dir, "x")
	res, err := Extract(src, target)
	require.NoError(t, err)

	run, err := os.Stat(filepath.Join(target, "bin", "run"))
	require.NoError(t, err)
	assert.NotZero(t, run.Mode().Perm()&0o111, "bin/run should be executable")

	readme, err := os.Stat(filepath.Join(target, "README.md"))
	require.NoError(t, err)
	assert.Zero(t, readme.Mode().Perm()&0o111, "README.md should not be executable")

	assert.True(t, res.LatestModTime.Equal(newer))
	assert.Equal(t, 2, res.Files)
	assert.True(t, readme.ModTime().Equal(older))
	assert.True(t, run.ModTime().Equal(newer))
}

func TestExtract_ZipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "lib.jar")
	entries := []entry{
		{name: "META-INF", dir: true, mtime: older},
		{name: "META-INF/MANIFEST.MF", body: "Manifest-Version: 1.0\n", mtime: older},
		{name: "com/example/App.class", body: "\xca\xfe\xba\xbe", mtime: newer},
		{name: "empty.txt", body: "", mtime: older},
	}
	writeZip(t, src, entries)

	target := filepath.Join(dir, "out")
	res, err := Extract(src, target)
	require.NoError(t, err)

	for _, e := range entries {
		p := filepath.Join(target, filepath.FromSlash(e.name))
		if e.dir {
			assert.DirExists(t, p)
			continue
		}
		assert.Equal(t, e.body, readFile(t, p), e.name)
	}
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 1, res.Dirs)
	assert.True(t, res.LatestModTime.Equal(newer))

	info, err := os.Stat(filepath.Join(target, "META-INF"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(older), "directory time restored after children were written")
}

func TestExtract_Tar(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bundle.tar")
	writeTar(t, src, []entry{
		{name: "./", dir: true, mtime: older},
		{name: "conf/", dir: true, mtime: older},
		{name: "conf/app.yaml", body: "a: 1\n", mtime: newer},
		{name: "conf/current", symlink: "app.yaml", mtime: newer},
	})

	target := filepath.Join(dir, "bundle")
	res, err := Extract(src, target)
	require.NoError(t, err)

	assert.Equal(t, "a: 1\n", readFile(t, filepath.Join(target, "conf", "app.yaml")))
	assert.Equal(t, []string{"conf/current"}, res.Skipped)
	assert.NoFileExists(t, filepath.Join(target, "conf", "current"))
}

func TestExtract_SkippedEntriesCountTowardsModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "links.tar")
	writeTar(t, src, []entry{
		{name: "a.txt", body: "a", mtime: older},
		{name: "link", symlink: "a.txt", mtime: newer},
	})

	res, err := Extract(src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, []string{"link"}, res.Skipped)
	assert.Equal(t, 1, res.Files)
	assert.True(t, res.LatestModTime.Equal(newer))
}

func TestExtract_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.zip")
	writeZip(t, src, []entry{
		{name: "a.txt", body: "alpha", mtime: older},
		{name: "nested/b.txt", body: "beta", mtime: newer},
	})

	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")
	r1, err := Extract(src, first)
	require.NoError(t, err)
	r2, err := Extract(src, second)
	require.NoError(t, err)
	_, err = Extract(src, second)
	require.NoError(t, err)

	for _, name := range []string{"a.txt", "nested/b.txt"} {
		assert.Equal(t,
			readFile(t, filepath.Join(first, filepath.FromSlash(name))),
			readFile(t, filepath.Join(second, filepath.FromSlash(name))))
	}
	assert.True(t, r1.LatestModTime.Equal(r2.LatestModTime))
}

func TestExtract_PathTraversal(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		write   func(t *testing.T, path string, entries []entry)
		entry   string
	}{
		{"zip dotdot", "evil.zip", writeZip, "../../evil.txt"},
		{"zip absolute", "evil.zip", writeZip, "/tmp/evil.txt"},
		{"zip backslash", "evil.zip", writeZip, `..\..\evil.txt`},
		{"tar dotdot", "evil.tar", writeTar, "../../evil.txt"},
		{"tar nested dotdot", "evil.tar", writeTar, "ok/../../evil.txt"},
		{"tar.gz absolute", "evil.tar.gz", writeTarGz, "/evil.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, tt.archive)
			tt.write(t, src, []entry{
				{name: tt.entry, body: "pwned", mtime: newer},
				{name: "after.txt", body: "never", mtime: newer},
			})

			target := filepath.Join(dir, "a", "b", "target")
			_, err := Extract(src, target)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPathTraversal)

			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.entry, aerr.Entry)

			assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
			assert.NoFileExists(t, filepath.Join(dir, "a", "evil.txt"))
			assert.NoFileExists(t, filepath.Join(target, "after.txt"))
		})
	}
}

func TestExtract_Backslashes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("backslash is a separator on windows")
	}
	dir := t.TempDir()

	tarSrc := filepath.Join(dir, "names.tar")
	writeTar(t, tarSrc, []entry{{name: `a\b.txt`, body: "tar", mtime: newer}})
	_, err := Extract(tarSrc, filepath.Join(dir, "tar"))
	require.NoError(t, err)
	assert.Equal(t, "tar", readFile(t, filepath.Join(dir, "tar", `a\b.txt`)))
	assert.NoDirExists(t, filepath.Join(dir, "tar", "a"))

	zipSrc := filepath.Join(dir, "names.zip")
	writeZip(t, zipSrc, []entry{{name: `a\b.txt`, body: "zip", mtime: newer}})
	_, err = Extract(zipSrc, filepath.Join(dir, "zip"))
	require.NoError(t, err)
	assert.Equal(t, "zip", readFile(t, filepath.Join(dir, "zip", "a", "b.txt")))
}

func TestExtract_SymlinkInTarget(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.Mkdir(outside, 0o755))

	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	if err := os.Symlink(outside, filepath.Join(target, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	src := filepath.Join(dir, "app.zip")
	writeZip(t, src, []entry{{name: "link/evil.txt", body: "pwned", mtime: newer}})

	_, err := Extract(src, target)
	require.ErrorIs(t, err, ErrPathTraversal)
	assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
}

func TestExtract_RootFileEntry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "odd.tar")
	writeTar(t, src, []entry{{name: "a/..", body: "x", mtime: newer}})

	_, err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestExtract_Corrupt(t *testing.T) {
	dir := t.TempDir()

	tests := map[string][]byte{
		"broken.zip":    []byte("PK\x03\x04 definitely not a zip"),
		"broken.tar.gz": []byte("not gzip at all"),
		"broken.tar":    bytes.Repeat([]byte{0xff}, 1024),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(src, data, 0o644))

			_, err := Extract(src, filepath.Join(dir, name+".out"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrArchiveRead)
		})
	}
}

func TestExtract_TruncatedTarGz(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.tar.gz")
	writeTarGz(t, full, []entry{{name: "big.bin", body: string(bytes.Repeat([]byte("abcdefgh"), 4096)), mtime: newer}})

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	src := filepath.Join(dir, "cut.tar.gz")
	require.NoError(t, os.WriteFile(src, data[:len(data)/2], 0o644))

	_, err = Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrArchiveRead)
}

func TestExtract_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(filepath.Join(dir, "missing.zip"), filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrArchiveRead)
	assert.NoDirExists(t, filepath.Join(dir, "out"), "target is not created for an unreadable archive")
}

func TestExtract_Unsupported(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(filepath.Join(dir, "app.rar"), dir)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtract_IOError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.zip")
	writeZip(t, src, []entry{{name: "blocked/file.txt", body: "x", mtime: newer}})

	target := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(target, 0o755))
	// A regular file where a directory is needed.
	require.NoError(t, os.WriteFile(filepath.Join(target, "blocked"), []byte("file"), 0o644))

	_, err := Extract(src, target)
	assert.ErrorIs(t, err, ErrIO)
}

func TestExtract_Limits(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.tar.gz")
	writeTarGz(t, src, []entry{
		{name: "one.txt", body: "0123456789", mtime: older},
		{name: "two.txt", body: "0123456789", mtime: older},
		{name: "three.txt", body: "0123456789", mtime: older},
	})

	tests := []struct {
		name string
		opts []Option
		ok   bool
	}{
		{"unlimited", nil, true},
		{"files ok", []Option{WithMaxFiles(3)}, true},
		{"too many files", []Option{WithMaxFiles(2)}, false},
		{"file size ok", []Option{WithMaxFileSize(10)}, true},
		{"file too large", []Option{WithMaxFileSize(9)}, false},
		{"total ok", []Option{WithMaxSize(30)}, true},
		{"total too large", []Option{WithMaxSize(25)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(src, filepath.Join(t.TempDir(), "out"), tt.opts...)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrLimitExceeded)
		})
	}
}

func TestCountingReader_LyingHeader(t *testing.T) {
	x := &extractor{opts: options{maxFileSize: 4}, result: &Result{}}
	c := &countingReader{r: bytes.NewReader([]byte("more than four")), x: x}

	_, err := bytes.NewBuffer(nil).ReadFrom(c)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.zip")
	writeZip(t, src, nil)

	res, err := Extract(src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.True(t, res.LatestModTime.IsZero())
	assert.DirExists(t, res.TargetDir)
}
