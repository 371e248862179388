package webdav

import "github.com/gobeaver/artifactkit"

func init() {
	artifactkit.RegisterDriver("webdav", func(cfg *artifactkit.Config) (artifactkit.FileSystem, error) {
		return New(Config{
			URL:      cfg.WebDAVURL,
			Username: cfg.WebDAVUsername,
			Password: cfg.WebDAVPassword,
			Timeout:  cfg.WebDAVTimeout(),
		})
	})
}
