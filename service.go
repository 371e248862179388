package artifactkit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobeaver/artifactkit/archive"
	"github.com/gobeaver/beaver-kit/config"
)

// Global instance
var (
	defaultFS   FileSystem
	defaultOnce sync.Once
	defaultErr  error
)

// Builder provides a way to create FileSystem instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified environment prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Config loads the configuration using the builder's prefix
func (b *Builder) Config() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init initializes the global FileSystem instance using the builder's prefix
func (b *Builder) Init() error {
	cfg, err := b.Config()
	if err != nil {
		return err
	}
	return Init(cfg)
}

// New creates a new FileSystem instance using the builder's prefix
func (b *Builder) New() (FileSystem, error) {
	cfg, err := b.Config()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Init initializes the global store instance
func Init(configs ...*Config) error {
	defaultOnce.Do(func() {
		var cfg *Config
		if len(configs) > 0 {
			cfg = configs[0]
		} else {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}

		defaultFS, defaultErr = New(cfg)
	})

	return defaultErr
}

// New creates a new store instance with given config. The driver named by
// cfg.Driver must have been registered, usually by importing its package.
func New(cfg *Config) (FileSystem, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	fs, err := CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if cfg.CacheTTLSeconds > 0 {
		fs = NewCachingFileSystem(fs, NewMemoryCache(), WithCacheTTL(cfg.CacheTTL()))
	}
	if cfg.ReadOnly {
		fs = NewReadOnlyFileSystem(fs, WithWriteAttemptHandler(LogWriteAttempt))
	}

	return fs, nil
}

// validateConfig checks configuration validity
func validateConfig(cfg *Config) error {
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "webdav":
		if cfg.WebDAVURL == "" {
			return errors.New("WebDAV URL is required for webdav driver")
		}
	case "local":
		if cfg.LocalBasePath == "" {
			return errors.New("local base path is required for local driver")
		}
	case "memory":
	case "s3":
		if cfg.S3Bucket == "" {
			return errors.New("S3 bucket is required for S3 driver")
		}
		// Access keys can be provided via IAM roles, so not always required
	case "sftp":
		if cfg.SFTPHost == "" {
			return errors.New("SFTP host is required for sftp driver")
		}
		if cfg.SFTPUsername == "" {
			return errors.New("SFTP username is required for sftp driver")
		}
	default:
		return fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	if cfg.CacheTTLSeconds < 0 {
		return errors.New("cache TTL must not be negative")
	}
	if cfg.ExtractMaxFiles < 0 || cfg.ExtractMaxSize < 0 || cfg.ExtractMaxFileSize < 0 {
		return errors.New("extraction limits must not be negative")
	}

	return nil
}

// ExtractOptions converts the configured extraction limits to archive options.
func (c *Config) ExtractOptions() []archive.Option {
	var opts []archive.Option
	if c.ExtractMaxFiles > 0 {
		opts = append(opts, archive.WithMaxFiles(c.ExtractMaxFiles))
	}
	if c.ExtractMaxSize > 0 {
		opts = append(opts, archive.WithMaxSize(c.ExtractMaxSize))
	}
	if c.ExtractMaxFileSize > 0 {
		opts = append(opts, archive.WithMaxFileSize(c.ExtractMaxFileSize))
	}
	return opts
}

// Default returns the global instance, initializing if needed with error handling
func Default() (FileSystem, error) {
	if defaultFS == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultFS, nil
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv() (FileSystem, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultFS = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
