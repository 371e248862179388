package local

import "github.com/gobeaver/artifactkit"

func init() {
	artifactkit.RegisterDriver("local", func(cfg *artifactkit.Config) (artifactkit.FileSystem, error) {
		return New(cfg.LocalBasePath)
	})
}
