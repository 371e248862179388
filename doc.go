// Package artifactkit publishes build outputs to an artifact store and fetches
// them back.
//
// The store is any [FileSystem]: a WebDAV server by default, or local disk,
// memory, SFTP or S3. Each backend lives in its own driver package and
// registers itself on import:
//
//	import (
//	    "github.com/gobeaver/artifactkit"
//	    _ "github.com/gobeaver/artifactkit/driver/webdav"
//	)
//
//	store, err := artifactkit.NewFromEnv() // BEAVER_ARTIFACTKIT_DRIVER=webdav ...
//
// # Publishing
//
// [Publish] resolves a wildcard pattern under a working directory (see package
// pathmap), maps every match through a destination template and uploads it:
//
//	res, err := artifactkit.Publish(ctx, store, artifactkit.PublishRequest{
//	    Source:     "build/outputs/%.aab",
//	    WorkingDir: workDir,
//	    Target:     "android/$BUILD/$1.aab",
//	    Params:     map[string]string{"BUILD": "1042"},
//	})
//	meta := res.Metadata() // {"Location": "android/1042/release.aab"}
//
// # Fetching
//
// [Fetch] reads the Location back from that metadata, downloads the artifact
// and can unpack it (see package archive):
//
//	res, err := artifactkit.Fetch(ctx, store, artifactkit.FetchRequest{
//	    Metadata:   meta,
//	    WorkingDir: workDir,
//	}, artifactkit.WithExtract(true))
//
// Publish and Fetch log through the zerolog logger attached to ctx, if any.
package artifactkit
