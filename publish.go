package artifactkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/artifactkit/pathmap"
)

// MetadataLocation is the metadata key under which Publish records where
// the artifact went and from which Fetch reads it back.
const MetadataLocation = "Location"

// PublishRequest describes which local build outputs to publish and where.
type PublishRequest struct {
	// Source is a wildcard pattern resolved under WorkingDir, e.g. "build/%.aab".
	Source string
	// WorkingDir is the local directory Source is resolved against.
	WorkingDir string
	// Target is a destination template such as "apps/$BUILD/$1.aab". When
	// empty each match keeps its path relative to WorkingDir.
	Target string
	// Params resolves named placeholders in Target.
	Params map[string]string
}

// PublishResult reports what Publish did.
type PublishResult struct {
	// Destinations holds the remapped path of every match, in match order.
	Destinations []string
	// Location is the first destination.
	Location string
	// Uploaded and Skipped count individual files.
	Uploaded int
	Skipped  int
	// Checksums maps each uploaded store path to its xxhash digest.
	Checksums map[string]string
}

// Metadata returns the artifact metadata to hand back to the build server.
func (r *PublishResult) Metadata() map[string]string {
	return map[string]string{MetadataLocation: r.Location}
}

// PublishOption configures Publish.
type PublishOption func(*publishOptions)

type publishOptions struct {
	skipExisting bool
	exclude      []glob.Glob
	excludeErr   error
	concurrency  int
	progress     ProgressFunc
}

// WithSkipExisting leaves files that already exist in the store untouched
// instead of overwriting them.
func WithSkipExisting(skip bool) PublishOption {
	return func(o *publishOptions) {
		o.skipExisting = skip
	}
}

// WithExclude drops local files whose path relative to the working
// directory matches any of the glob patterns ("**/*.map", "*.tmp").
func WithExclude(patterns ...string) PublishOption {
	return func(o *publishOptions) {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				o.excludeErr = fmt.Errorf("invalid exclude pattern %q: %w", p, err)
				return
			}
			o.exclude = append(o.exclude, g)
		}
	}
}

// WithConcurrency sets how many files are uploaded at once. Default 1.
func WithConcurrency(n int) PublishOption {
	return func(o *publishOptions) {
		o.concurrency = n
	}
}

// WithProgress reports per-file upload progress.
func WithProgress(fn ProgressFunc) PublishOption {
	return func(o *publishOptions) {
		o.progress = fn
	}
}

func (o *publishOptions) excluded(rel string) bool {
	for _, g := range o.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// upload is one local file bound for the store.
type upload struct {
	local  string
	remote string
	size   int64
}

// Publish locates req.Source under req.WorkingDir, maps each match through
// req.Target and copies it to the store. A matched directory is copied with
// its whole tree below the mapped path.
//
// All directories are created before the first file is sent. Within a
// matched directory, files go shortest name first, which is the order
// mod_dav based servers cope with best.
func Publish(ctx context.Context, store FileSystem, req PublishRequest, opts ...PublishOption) (*PublishResult, error) {
	o := &publishOptions{concurrency: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.excludeErr != nil {
		return nil, o.excludeErr
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	logger := zerolog.Ctx(ctx)

	pattern, err := pathmap.Compile(req.Source)
	if err != nil {
		return nil, err
	}
	matches, err := pathmap.Locate(pattern, req.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", req.Source, err)
	}

	kept := matches[:0]
	for _, m := range matches {
		if !o.excluded(m.Rel) {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrNoArtifacts, req.Source, req.WorkingDir)
	}
	logger.Debug().Str("source", req.Source).Int("matches", len(kept)).Msg("located artifacts")

	result := &PublishResult{Checksums: make(map[string]string)}
	var dirs []string
	var uploads []upload

	for _, m := range kept {
		dest, err := destination(m, req)
		if err != nil {
			return nil, err
		}
		result.Destinations = append(result.Destinations, dest)

		if m.IsDir {
			d, u, err := planDir(m, dest, o)
			if err != nil {
				return nil, err
			}
			dirs = append(dirs, d...)
			uploads = append(uploads, u...)
			continue
		}

		if dest == "" {
			return nil, fmt.Errorf("%w: %s maps to the store root", ErrInvalidLocation, m.Rel)
		}
		info, err := os.Stat(m.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m.Path, err)
		}
		if parent := path.Dir(dest); parent != "." {
			dirs = append(dirs, parent)
		}
		uploads = append(uploads, upload{local: m.Path, remote: dest, size: info.Size()})
	}
	result.Location = result.Destinations[0]

	for _, dir := range dedupe(dirs) {
		if err := store.CreateDir(ctx, dir); err != nil {
			return nil, err
		}
		logger.Trace().Str("dir", dir).Msg("created directory")
	}

	if err := runUploads(ctx, store, uploads, o, result); err != nil {
		return nil, err
	}

	logger.Info().
		Str("location", result.Location).
		Int("uploaded", result.Uploaded).
		Int("skipped", result.Skipped).
		Msg("published artifacts")
	return result, nil
}

// destination maps a match to its store path.
func destination(m pathmap.Match, req PublishRequest) (string, error) {
	dest := m.Rel
	if req.Target != "" {
		var err error
		dest, err = pathmap.Remap(m, req.Target, req.Params)
		if err != nil {
			return "", err
		}
	}
	dest = path.Clean("/" + strings.ReplaceAll(dest, `\`, "/"))
	return strings.TrimPrefix(dest, "/"), nil
}

// planDir lists the directories and files below a matched directory.
func planDir(m pathmap.Match, dest string, o *publishOptions) ([]string, []upload, error) {
	var dirs []string
	var files []upload

	if dest != "" {
		dirs = append(dirs, dest)
	}

	err := filepath.WalkDir(m.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(m.Path, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if o.excluded(path.Join(m.Rel, rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		remote := path.Join(dest, rel)
		if d.IsDir() {
			dirs = append(dirs, remote)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, upload{local: p, remote: remote, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", m.Path, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if len(files[i].remote) != len(files[j].remote) {
			return len(files[i].remote) < len(files[j].remote)
		}
		return files[i].remote < files[j].remote
	})
	return dirs, files, nil
}

func runUploads(ctx context.Context, store FileSystem, uploads []upload, o *publishOptions, result *PublishResult) error {
	logger := zerolog.Ctx(ctx)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, u := range uploads {
		g.Go(func() error {
			if o.skipExisting {
				exists, err := store.FileExists(gctx, u.remote)
				if err != nil {
					return err
				}
				if exists {
					logger.Debug().Str("destination", u.remote).Msg("skipped existing file")
					mu.Lock()
					result.Skipped++
					mu.Unlock()
					return nil
				}
			}

			sum, err := uploadFile(gctx, store, u, o.progress)
			if err != nil {
				return err
			}
			logger.Debug().Str("file", u.local).Str("destination", u.remote).Int64("size", u.size).Msg("uploaded file")

			mu.Lock()
			result.Uploaded++
			result.Checksums[u.remote] = sum
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func uploadFile(ctx context.Context, store FileSystem, u upload, progress ProgressFunc) (string, error) {
	f, err := os.Open(u.local)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", u.local, err)
	}
	defer f.Close()

	hr, err := newHashingReader(f, ChecksumXXHash)
	if err != nil {
		return "", err
	}
	err = Upload(ctx, store, u.remote, hr, u.size, &UploadOptions{
		ContentType: ContentTypeByName(u.remote),
		Progress:    progress,
	})
	if err != nil {
		return "", err
	}
	return hr.Sum(), nil
}

// dedupe drops repeated entries, keeping first occurrences in order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
