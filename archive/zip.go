package archive

import (
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

func (x *extractor) extractZip(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return x.fail("", ErrArchiveRead, err)
	}

	// A reader returned alongside an error only flags insecure names, which
	// resolve rejects per entry.
	zr, err := zip.NewReader(f, info.Size())
	if zr == nil {
		return x.fail("", ErrArchiveRead, err)
	}

	for _, entry := range zr.File {
		mtime := entry.FileInfo().ModTime()

		if entry.FileInfo().IsDir() || strings.HasSuffix(entry.Name, "/") {
			if err := x.dir(entry.Name, mtime); err != nil {
				return err
			}
			continue
		}

		if err := x.zipFile(entry); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) zipFile(entry *zip.File) error {
	// Resolve before opening so a hostile name fails without touching the
	// entry data.
	if _, _, err := x.resolve(entry.Name); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return x.fail(entry.Name, ErrArchiveRead, err)
	}
	defer rc.Close()

	size := int64(entry.UncompressedSize64)
	if entry.UncompressedSize64 > 1<<62 {
		size = -1
	}
	return x.file(entry.Name, rc, size, 0o644, entry.FileInfo().ModTime())
}
