package artifactkit

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Store driver to use (webdav, local, memory, sftp, s3)
	Driver string `env:"ARTIFACTKIT_DRIVER,default:webdav"`

	// WebDAV driver configuration
	WebDAVURL            string `env:"ARTIFACTKIT_WEBDAV_URL"`
	WebDAVUsername       string `env:"ARTIFACTKIT_WEBDAV_USERNAME"`
	WebDAVPassword       string `env:"ARTIFACTKIT_WEBDAV_PASSWORD"`
	WebDAVTimeoutSeconds int    `env:"ARTIFACTKIT_WEBDAV_TIMEOUT_SECONDS,default:30"`

	// Local driver configuration
	LocalBasePath string `env:"ARTIFACTKIT_LOCAL_BASE_PATH,default:./artifacts"`

	// S3 driver configuration
	S3Region          string `env:"ARTIFACTKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"ARTIFACTKIT_S3_BUCKET"`
	S3Prefix          string `env:"ARTIFACTKIT_S3_PREFIX"`
	S3Endpoint        string `env:"ARTIFACTKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"ARTIFACTKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"ARTIFACTKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"ARTIFACTKIT_S3_FORCE_PATH_STYLE,default:false"`

	// SFTP driver configuration
	SFTPHost       string `env:"ARTIFACTKIT_SFTP_HOST"`
	SFTPPort       int    `env:"ARTIFACTKIT_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"ARTIFACTKIT_SFTP_USERNAME"`
	SFTPPassword   string `env:"ARTIFACTKIT_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"ARTIFACTKIT_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPBasePath   string `env:"ARTIFACTKIT_SFTP_BASE_PATH"`

	// Publish defaults
	DefaultOverwrite bool `env:"ARTIFACTKIT_DEFAULT_OVERWRITE,default:true"`

	// Cache existence checks and Stat results for this many seconds, 0 disables
	CacheTTLSeconds int `env:"ARTIFACTKIT_CACHE_TTL_SECONDS,default:0"`

	// Wrap the store so that only reads are possible (fetch-only agents)
	ReadOnly bool `env:"ARTIFACTKIT_READ_ONLY,default:false"`

	// Extraction limits, zero means unlimited
	ExtractMaxFiles    int   `env:"ARTIFACTKIT_EXTRACT_MAX_FILES,default:0"`
	ExtractMaxSize     int64 `env:"ARTIFACTKIT_EXTRACT_MAX_SIZE,default:0"`
	ExtractMaxFileSize int64 `env:"ARTIFACTKIT_EXTRACT_MAX_FILE_SIZE,default:0"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheTTL returns the metadata cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// WebDAVTimeout returns the configured WebDAV request timeout.
func (c *Config) WebDAVTimeout() time.Duration {
	return time.Duration(c.WebDAVTimeoutSeconds) * time.Second
}
