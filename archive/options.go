package archive

// Option configures an extraction.
type Option func(*options)

// options holds extraction limits. Zero means unlimited.
type options struct {
	maxFiles    int
	maxSize     int64
	maxFileSize int64
}

// WithMaxFiles limits the number of regular files written.
func WithMaxFiles(n int) Option {
	return func(o *options) {
		o.maxFiles = n
	}
}

// WithMaxSize limits the total number of uncompressed bytes written.
func WithMaxSize(bytes int64) Option {
	return func(o *options) {
		o.maxSize = bytes
	}
}

// WithMaxFileSize limits the uncompressed size of any single file.
func WithMaxFileSize(bytes int64) Option {
	return func(o *options) {
		o.maxFileSize = bytes
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
