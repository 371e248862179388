package artifactkit

import (
	"context"
	"io"
)

// ProgressFunc is a callback for transfer progress. totalBytes is -1 when
// the size is unknown.
type ProgressFunc func(path string, bytesTransferred int64, totalBytes int64)

// UploadOptions contains options for uploading a single file
type UploadOptions struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Progress is a callback function for upload progress
	Progress ProgressFunc

	// Metadata contains additional metadata for the file
	Metadata map[string]string
}

// Upload streams r to path on the store, reporting progress if requested.
func Upload(ctx context.Context, fs FileWriter, path string, r io.Reader, size int64, opts *UploadOptions) error {
	if opts == nil {
		opts = &UploadOptions{}
	}

	var options []Option
	if opts.ContentType != "" {
		options = append(options, WithContentType(opts.ContentType))
	}
	if opts.Metadata != nil {
		options = append(options, WithMetadata(opts.Metadata))
	}

	if opts.Progress != nil {
		r = &progressReader{
			reader:   r,
			path:     path,
			progress: opts.Progress,
			size:     size,
			step:     progressStep(size),
		}
	}

	return fs.Write(ctx, path, r, options...)
}

// progressStep reports roughly every percent, and at least every 64 KiB for
// unknown sizes.
func progressStep(size int64) int64 {
	if size <= 0 {
		return 64 << 10
	}
	if step := size / 100; step > 0 {
		return step
	}
	return 1
}

// progressReader is a reader that reports progress
type progressReader struct {
	reader       io.Reader
	path         string
	progress     ProgressFunc
	size         int64
	bytesRead    int64
	lastReported int64
	step         int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.bytesRead += int64(n)
	}
	if r.bytesRead-r.lastReported >= r.step || (err == io.EOF && r.bytesRead != r.lastReported) {
		r.progress(r.path, r.bytesRead, r.size)
		r.lastReported = r.bytesRead
	}
	return n, err
}
