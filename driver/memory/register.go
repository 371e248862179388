package memory

import "github.com/gobeaver/artifactkit"

func init() {
	artifactkit.RegisterDriver("memory", func(cfg *artifactkit.Config) (artifactkit.FileSystem, error) {
		return New(), nil
	})
}
