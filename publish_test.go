package artifactkit_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/artifactkit"
	"github.com/gobeaver/artifactkit/driver/memory"
	"github.com/gobeaver/artifactkit/pathmap"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// recorder logs the mutating calls that reach the store.
type recorder struct {
	artifactkit.FileSystem
	mu  sync.Mutex
	ops []string
}

func (r *recorder) log(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recorder) Write(ctx context.Context, p string, content io.Reader, opts ...artifactkit.Option) error {
	r.log("put " + p)
	return r.FileSystem.Write(ctx, p, content, opts...)
}

func (r *recorder) CreateDir(ctx context.Context, p string) error {
	r.log("mkdir " + p)
	return r.FileSystem.CreateDir(ctx, p)
}

func TestPublishFile(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "app", "build", "outputs", "release.aab"), "bundle")
	store := memory.New()

	res, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{
		Source:     "app/build/outputs/%.aab",
		WorkingDir: work,
		Target:     "android/$BUILD/$1.aab",
		Params:     map[string]string{"BUILD": "1042"},
	})
	require.NoError(t, err)

	assert.Equal(t, "android/1042/release.aab", res.Location)
	assert.Equal(t, []string{"android/1042/release.aab"}, res.Destinations)
	assert.Equal(t, map[string]string{"Location": "android/1042/release.aab"}, res.Metadata())
	assert.Equal(t, 1, res.Uploaded)

	data, err := store.ReadAll(ctx, "android/1042/release.aab")
	require.NoError(t, err)
	assert.Equal(t, "bundle", string(data))

	want, err := artifactkit.CalculateChecksum(strings.NewReader("bundle"), artifactkit.ChecksumXXHash)
	require.NoError(t, err)
	assert.Equal(t, want, res.Checksums["android/1042/release.aab"])

	info, err := store.Stat(ctx, "android/1042/release.aab")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.ContentType)
}

func TestPublishKeepsRelativePath(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "dist", "a.js"), "a")
	writeFile(t, filepath.Join(work, "dist", "b.js"), "b")
	store := memory.New()

	res, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "dist/%.js", WorkingDir: work})
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/a.js", "dist/b.js"}, res.Destinations)
	assert.Equal(t, "dist/a.js", res.Location)
	assert.Equal(t, []string{"dist/a.js", "dist/b.js"}, store.Paths())
}

func TestPublishDirectory(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	site := filepath.Join(work, "build", "site")
	writeFile(t, filepath.Join(site, "index.html"), "i")
	writeFile(t, filepath.Join(site, "a.css"), "c")
	writeFile(t, filepath.Join(site, "js", "vendor", "lib.js"), "l")
	writeFile(t, filepath.Join(site, "js", "app.js.map"), "m")
	require.NoError(t, os.MkdirAll(filepath.Join(site, "empty"), 0o755))

	rec := &recorder{FileSystem: memory.New()}
	res, err := artifactkit.Publish(ctx, rec, artifactkit.PublishRequest{
		Source:     "build/%",
		WorkingDir: work,
		Target:     "web/$1/$REV",
		Params:     map[string]string{"REV": "abc123"},
	}, artifactkit.WithExclude("**.map"))
	require.NoError(t, err)

	assert.Equal(t, "web/site/abc123", res.Location)
	assert.Equal(t, 3, res.Uploaded)

	// every directory exists before the first file goes out
	firstPut := -1
	lastMkdir := -1
	for i, op := range rec.ops {
		if strings.HasPrefix(op, "put ") && firstPut < 0 {
			firstPut = i
		}
		if strings.HasPrefix(op, "mkdir ") {
			lastMkdir = i
		}
	}
	assert.Less(t, lastMkdir, firstPut)
	assert.Contains(t, rec.ops, "mkdir web/site/abc123/empty")

	// shortest names first
	assert.Equal(t, []string{
		"put web/site/abc123/a.css",
		"put web/site/abc123/index.html",
		"put web/site/abc123/js/vendor/lib.js",
	}, rec.ops[firstPut:])

	ok, err := rec.FileExists(ctx, "web/site/abc123/js/app.js.map")
	require.NoError(t, err)
	assert.False(t, ok, "excluded")
}

func TestPublishSkipExisting(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "out", "a.txt"), "new-a")
	writeFile(t, filepath.Join(work, "out", "b.txt"), "new-b")
	store := memory.New()
	require.NoError(t, store.Write(ctx, "out/a.txt", strings.NewReader("old-a")))

	res, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "out/%.txt", WorkingDir: work},
		artifactkit.WithSkipExisting(true))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Uploaded)
	assert.Equal(t, 1, res.Skipped)
	assert.NotContains(t, res.Checksums, "out/a.txt")

	data, _ := store.ReadAll(ctx, "out/a.txt")
	assert.Equal(t, "old-a", string(data))

	_, err = artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "out/%.txt", WorkingDir: work})
	require.NoError(t, err)
	data, _ = store.ReadAll(ctx, "out/a.txt")
	assert.Equal(t, "new-a", string(data), "overwrite is the default")
}

func TestPublishConcurrency(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		writeFile(t, filepath.Join(work, "libs", name+".so"), name)
	}
	store := memory.New()

	var mu sync.Mutex
	progressed := map[string]int64{}
	res, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{
		Source:     "libs",
		WorkingDir: work,
		Target:     "native",
	}, artifactkit.WithConcurrency(4), artifactkit.WithProgress(func(p string, done, total int64) {
		mu.Lock()
		progressed[p] = done
		mu.Unlock()
	}))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Uploaded)
	assert.Len(t, res.Checksums, 6)
	assert.Len(t, progressed, 6)
	assert.Equal(t, int64(1), progressed["native/c.so"])
	assert.Equal(t, 6, store.FileCount())
}

func TestPublishErrors(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "a.txt"), "a")
	store := memory.New()

	_, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "b/%.txt", WorkingDir: work})
	assert.ErrorIs(t, err, artifactkit.ErrNoArtifacts)

	_, err = artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "%.txt", WorkingDir: work},
		artifactkit.WithExclude("*.txt"))
	assert.ErrorIs(t, err, artifactkit.ErrNoArtifacts)

	_, err = artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "../%.txt", WorkingDir: work})
	assert.ErrorIs(t, err, pathmap.ErrInvalidPattern)

	_, err = artifactkit.Publish(ctx, store, artifactkit.PublishRequest{
		Source: "%.txt", WorkingDir: work, Target: "x/$MISSING",
	})
	assert.ErrorIs(t, err, pathmap.ErrUnresolvedPlaceholder)

	_, err = artifactkit.Publish(ctx, store, artifactkit.PublishRequest{Source: "a.txt", WorkingDir: work},
		artifactkit.WithExclude("["))
	assert.ErrorContains(t, err, "invalid exclude pattern")

	ro := artifactkit.NewReadOnlyFileSystem(store)
	_, err = artifactkit.Publish(ctx, ro, artifactkit.PublishRequest{Source: "a.txt", WorkingDir: work, Target: "d/a.txt"})
	assert.True(t, artifactkit.IsReadOnlyError(err))

	assert.Zero(t, store.FileCount())
}

func TestPublishThroughCache(t *testing.T) {
	ctx := context.Background()
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "r", "one.txt"), "1")
	writeFile(t, filepath.Join(work, "r", "two.txt"), "2")

	rec := &recorder{FileSystem: memory.New()}
	store := artifactkit.NewCachingFileSystem(rec, nil)

	for i := 0; i < 2; i++ {
		_, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{
			Source: "r/%.txt", WorkingDir: work, Target: "deep/tree/$1.txt",
		})
		require.NoError(t, err)
	}

	mkdirs := 0
	for _, op := range rec.ops {
		if strings.HasPrefix(op, "mkdir ") {
			mkdirs++
		}
	}
	assert.Equal(t, 1, mkdirs)
}
