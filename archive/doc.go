// Package archive extracts zip-family and tar(.gz) archives into a directory.
//
// Extraction refuses any entry whose resolved path would leave the target
// directory, whether through "..", an absolute name, or a symlink already
// present under the target. Entry modification times are restored, tar
// executable bits are honoured, and the newest entry time is reported in the
// [Result]:
//
//	res, err := archive.Extract("dist/app.tar.gz", "/tmp/app")
//	if errors.Is(err, archive.ErrPathTraversal) {
//	    // hostile archive
//	}
//	fmt.Println(res.LatestModTime)
//
// Extraction is synchronous and holds no state between calls. Callers that
// extract into overlapping directories must serialise themselves.
package archive
