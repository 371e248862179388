package archive

import (
	"archive/tar"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

func (x *extractor) extractTarGz(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return x.fail("", ErrArchiveRead, err)
	}
	defer gz.Close()

	return x.extractTar(gz)
}

func (x *extractor) extractTar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return x.fail("", ErrArchiveRead, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = x.dir(hdr.Name, hdr.ModTime)
		case tar.TypeReg:
			err = x.file(hdr.Name, tr, hdr.Size, tarMode(hdr.Mode), hdr.ModTime)
		case tar.TypeXGlobalHeader:
			// PAX global headers carry no file and do not count towards
			// LatestModTime.
		default:
			// Links, devices and FIFOs are never materialised.
			x.skip(hdr.Name, hdr.ModTime)
		}
		if err != nil {
			return err
		}
	}
}

// tarMode maps any owner, group or other execute bit to 0755.
func tarMode(mode int64) os.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}
