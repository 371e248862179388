package artifactkit

// Option represents a configuration option for a single store write
type Option func(*Options)

// Options contains the options drivers honour on Write
type Options struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// Overwrite determines whether to overwrite existing files
	Overwrite bool
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithOverwrite enables or disables overwriting existing files.
// Drivers return ErrExist when it is false and the file exists.
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.Overwrite = overwrite
	}
}

// ApplyOptions folds opts into an Options value. Overwrite defaults to true.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{Overwrite: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
