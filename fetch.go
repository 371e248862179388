package artifactkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gobeaver/artifactkit/archive"
)

// FetchRequest names an artifact in the store and where to put it locally.
type FetchRequest struct {
	// Location is the store path to fetch. When empty it is read from Metadata.
	Location string
	// Metadata is the map Publish produced; its Location key is used.
	Metadata map[string]string
	// WorkingDir receives the artifact under its base name.
	WorkingDir string
}

// FetchResult reports where a fetched artifact ended up.
type FetchResult struct {
	// Path is the local file or directory written.
	Path string
	// Size is the number of bytes downloaded.
	Size int64
	// ExtractedTo is set when the artifact was unpacked.
	ExtractedTo string
	// LatestModTime is the newest entry time of the unpacked archive.
	LatestModTime time.Time
}

// FetchOption configures Fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	extract     bool
	extractTo   string
	archiveOpts []archive.Option
	progress    ProgressFunc
	selector    FileSelector
	selectErr   error
}

// WithExtract unpacks a fetched archive next to it, into a directory named
// after the archive without its suffix.
func WithExtract(extract bool) FetchOption {
	return func(o *fetchOptions) {
		o.extract = extract
	}
}

// WithExtractTo unpacks a fetched archive into dir.
func WithExtractTo(dir string) FetchOption {
	return func(o *fetchOptions) {
		o.extract = true
		o.extractTo = dir
	}
}

// WithExtractOptions passes limits to the archive extractor.
func WithExtractOptions(opts ...archive.Option) FetchOption {
	return func(o *fetchOptions) {
		o.archiveOpts = append(o.archiveOpts, opts...)
	}
}

// WithFetchProgress reports download progress per file.
func WithFetchProgress(fn ProgressFunc) FetchOption {
	return func(o *fetchOptions) {
		o.progress = fn
	}
}

// WithInclude restricts a directory fetch to files matching any of the
// glob patterns. See Glob for how patterns are matched.
func WithInclude(patterns ...string) FetchOption {
	return func(o *fetchOptions) {
		var sels []FileSelector
		for _, p := range patterns {
			sel, err := Glob(p)
			if err != nil {
				o.selectErr = err
				return
			}
			sels = append(sels, sel)
		}
		if len(sels) > 0 {
			o.selector = Or(sels...)
		}
	}
}

// WithSelector restricts a directory fetch to the files sel matches.
func WithSelector(sel FileSelector) FetchOption {
	return func(o *fetchOptions) {
		o.selector = sel
	}
}

// LocationFromMetadata returns the artifact location recorded by Publish.
func LocationFromMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		return "", fmt.Errorf("%w: no artifact metadata", ErrInvalidLocation)
	}
	loc, ok := metadata[MetadataLocation]
	if !ok || strings.TrimSpace(loc) == "" {
		return "", fmt.Errorf("%w: metadata has no %s", ErrInvalidLocation, MetadataLocation)
	}
	return loc, nil
}

// Fetch downloads the artifact at the request's location into
// WorkingDir/<base name>. A directory location is downloaded with its whole
// tree. Files are written to a temporary name and renamed into place.
func Fetch(ctx context.Context, store FileReader, req FetchRequest, opts ...FetchOption) (*FetchResult, error) {
	o := &fetchOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.selectErr != nil {
		return nil, o.selectErr
	}

	loc := req.Location
	if loc == "" {
		var err error
		if loc, err = LocationFromMetadata(req.Metadata); err != nil {
			return nil, err
		}
	}
	loc = strings.TrimPrefix(path.Clean("/"+loc), "/")
	if loc == "" {
		return nil, fmt.Errorf("%w: location names the store root", ErrInvalidLocation)
	}

	logger := zerolog.Ctx(ctx)

	info, err := store.Stat(ctx, loc)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(req.WorkingDir, path.Base(loc))
	result := &FetchResult{Path: dst}

	if info.IsDir {
		n, err := fetchDir(ctx, store, loc, dst, o)
		if err != nil {
			return nil, err
		}
		result.Size = n
		logger.Info().Str("location", loc).Str("path", dst).Msg("fetched artifact directory")
		return result, nil
	}

	n, err := fetchFile(ctx, store, loc, dst, info.Size, o)
	if err != nil {
		return nil, err
	}
	result.Size = n
	logger.Info().Str("location", loc).Str("path", dst).Int64("size", n).Msg("fetched artifact")

	if o.extract {
		target := o.extractTo
		if target == "" {
			target = archive.DefaultTarget(dst)
		}
		res, err := archive.Extract(dst, target, o.archiveOpts...)
		if err != nil {
			return nil, err
		}
		result.ExtractedTo = res.TargetDir
		result.LatestModTime = res.LatestModTime
		logger.Debug().
			Str("target", res.TargetDir).
			Int("files", res.Files).
			Time("latest", res.LatestModTime).
			Msg("extracted artifact")
	}

	return result, nil
}

func fetchDir(ctx context.Context, store FileReader, loc, dst string, o *fetchOptions) (int64, error) {
	var entries []FileInfo
	var err error
	if o.selector != nil {
		entries, err = ListWithSelector(ctx, store, loc, o.selector, true)
	} else {
		entries, err = store.ListContents(ctx, loc, true)
	}
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, loc), "/")
		if rel == "" {
			continue
		}
		local := filepath.Join(dst, filepath.FromSlash(rel))
		if !strings.HasPrefix(local, dst+string(os.PathSeparator)) {
			return total, &PathError{Op: "fetch", Path: e.Path, Err: ErrNotAllowed}
		}
		if e.IsDir {
			if err := os.MkdirAll(local, 0o755); err != nil {
				return total, err
			}
			continue
		}
		n, err := fetchFile(ctx, store, e.Path, local, e.Size, o)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func fetchFile(ctx context.Context, store FileReader, loc, dst string, size int64, o *fetchOptions) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	rc, err := store.Read(ctx, loc)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	var r io.Reader = rc
	if o.progress != nil {
		r = &progressReader{reader: rc, path: loc, progress: o.progress, size: size, step: progressStep(size)}
	}

	n, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, &PathError{Op: "fetch", Path: loc, Err: err}
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return n, err
	}
	return n, nil
}
