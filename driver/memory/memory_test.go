package memory

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/artifactkit"
)

func TestNew(t *testing.T) {
	a := New()
	assert.Zero(t, a.maxSize)
	assert.Zero(t, a.FileCount())

	ok, err := a.DirExists(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int64(1024), New(Config{MaxSize: 1024}).maxSize)
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("creates parents and tracks size", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Write(ctx, "/android/1042/app.aab", strings.NewReader("bundle")))

		assert.Equal(t, int64(6), a.Size())
		for _, dir := range []string{"android", "android/1042"} {
			ok, err := a.DirExists(ctx, dir)
			require.NoError(t, err)
			assert.True(t, ok, dir)
		}
	})

	t.Run("rejects traversal", func(t *testing.T) {
		a := New()
		err := a.Write(ctx, "../etc/passwd", strings.NewReader("x"))
		assert.ErrorIs(t, err, artifactkit.ErrNotAllowed)
		assert.Zero(t, a.FileCount())
	})

	t.Run("rejects the root", func(t *testing.T) {
		assert.ErrorIs(t, New().Write(ctx, "/", strings.NewReader("x")), artifactkit.ErrNotAllowed)
	})

	t.Run("overwrite is the default", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Write(ctx, "f.txt", strings.NewReader("long content")))
		require.NoError(t, a.Write(ctx, "f.txt", strings.NewReader("short")))

		data, err := a.ReadAll(ctx, "f.txt")
		require.NoError(t, err)
		assert.Equal(t, "short", string(data))
		assert.Equal(t, int64(5), a.Size())
	})

	t.Run("refuses existing file without overwrite", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Write(ctx, "f.txt", strings.NewReader("v1")))
		err := a.Write(ctx, "f.txt", strings.NewReader("v2"), artifactkit.WithOverwrite(false))
		assert.True(t, artifactkit.IsExist(err))
	})

	t.Run("respects max size", func(t *testing.T) {
		a := New(Config{MaxSize: 10})
		err := a.Write(ctx, "large.txt", strings.NewReader("this is too large"))
		assert.ErrorIs(t, err, artifactkit.ErrInvalidSize)
	})

	t.Run("keeps content type and metadata", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Write(ctx, "blob", strings.NewReader("x"),
			artifactkit.WithContentType("application/x-custom"),
			artifactkit.WithMetadata(map[string]string{"build": "7"}),
		))

		info, err := a.Stat(ctx, "blob")
		require.NoError(t, err)
		assert.Equal(t, "application/x-custom", info.ContentType)
		assert.Equal(t, "7", info.Metadata["build"])
	})

	t.Run("detects content type from extension", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Write(ctx, "page.html", strings.NewReader("<p>")))
		info, err := a.Stat(ctx, "page.html")
		require.NoError(t, err)
		assert.Contains(t, info.ContentType, "text/html")
	})
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Write(ctx, "dir/f.txt", strings.NewReader("data")))

	_, err := a.Read(ctx, "missing")
	assert.True(t, artifactkit.IsNotExist(err))

	_, err = a.Read(ctx, "dir")
	assert.ErrorIs(t, err, artifactkit.ErrIsDir)
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	a := New()
	for _, p := range []string{"site/index.html", "site/css/app.css", "site/js/app.js", "other.txt"} {
		require.NoError(t, a.Write(ctx, p, strings.NewReader(p)))
	}

	paths := func(infos []artifactkit.FileInfo) []string {
		out := make([]string, len(infos))
		for i, fi := range infos {
			out[i] = fi.Path
		}
		return out
	}

	flat, err := a.ListContents(ctx, "site", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"site/css", "site/index.html", "site/js"}, paths(flat))

	all, err := a.ListContents(ctx, "/site/", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"site/css", "site/css/app.css", "site/index.html", "site/js", "site/js/app.js"}, paths(all))

	root, err := a.ListContents(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"other.txt", "site"}, paths(root))

	_, err = a.ListContents(ctx, "other.txt", false)
	assert.ErrorIs(t, err, artifactkit.ErrNotDir)
	_, err = a.ListContents(ctx, "nope", false)
	assert.True(t, artifactkit.IsNotExist(err))
}

func TestCreateDir(t *testing.T) {
	ctx := context.Background()
	a := New()

	require.NoError(t, a.CreateDir(ctx, "a/b/c"))
	require.NoError(t, a.CreateDir(ctx, "a/b/c"))
	ok, err := a.DirExists(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Write(ctx, "a/file", strings.NewReader("x")))
	assert.True(t, artifactkit.IsExist(a.CreateDir(ctx, "a/file")))
	assert.ErrorIs(t, a.CreateDir(ctx, "../up"), artifactkit.ErrNotAllowed)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Write(ctx, "a/b/one.txt", strings.NewReader("111")))
	require.NoError(t, a.Write(ctx, "a/two.txt", strings.NewReader("22")))
	require.NoError(t, a.Write(ctx, "ab.txt", strings.NewReader("4")))

	require.NoError(t, a.Delete(ctx, "a/two.txt"))
	assert.True(t, artifactkit.IsNotExist(a.Delete(ctx, "a/two.txt")))
	assert.Equal(t, int64(4), a.Size())

	assert.ErrorIs(t, a.DeleteDir(ctx, "ab.txt"), artifactkit.ErrNotDir)
	require.NoError(t, a.DeleteDir(ctx, "a"))
	assert.Equal(t, []string{"ab.txt"}, a.Paths())
	assert.Equal(t, int64(1), a.Size())

	assert.ErrorIs(t, a.DeleteDir(ctx, ""), artifactkit.ErrNotAllowed)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Write(ctx, "x/y", strings.NewReader("z")))

	a.Clear()
	assert.Zero(t, a.FileCount())
	assert.Zero(t, a.Size())
	ok, _ := a.DirExists(ctx, "x")
	assert.False(t, ok)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New()

	assert.ErrorIs(t, a.Write(ctx, "f", strings.NewReader("x")), context.Canceled)
	_, err := a.Stat(ctx, "f")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = a.ListContents(ctx, "", true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	a := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = a.Write(ctx, "dir/"+strings.Repeat("f", i+1), strings.NewReader("x"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, a.FileCount())
	assert.Equal(t, int64(50), a.Size())
}

func TestRegisteredDriver(t *testing.T) {
	fs, err := artifactkit.CreateDriver(&artifactkit.Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, fs)
}
