package archive

import (
	"path/filepath"
	"strings"
)

// Format identifies an archive container.
type Format int

const (
	// Zip covers .zip, .jar and .war.
	Zip Format = iota + 1
	// Tar is an uncompressed tarball.
	Tar
	// TarGz is a gzip-compressed tarball.
	TarGz
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// suffixes is checked in order, longest first.
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tar", Tar},
	{".zip", Zip},
	{".jar", Zip},
	{".war", Zip},
}

// Detect chooses a format from the case-insensitive suffix of name.
func Detect(name string) (Format, error) {
	if _, f, ok := matchSuffix(name); ok {
		return f, nil
	}
	return 0, newError("detect", name, "", ErrUnsupportedFormat, nil)
}

// DefaultTarget returns the directory an archive unpacks into when the
// caller names none: the archive path with its archive suffix removed.
// Names without a known suffix lose their last extension instead.
func DefaultTarget(archivePath string) string {
	if suffix, _, ok := matchSuffix(archivePath); ok {
		return archivePath[:len(archivePath)-len(suffix)]
	}
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
}

func matchSuffix(name string) (string, Format, bool) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.suffix, s.format, true
		}
	}
	return "", 0, false
}
