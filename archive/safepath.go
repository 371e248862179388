package archive

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

var (
	errAbsolute = errors.New("absolute entry name")
	errEscapes  = errors.New("entry name leaves the target directory")
	errSymlink  = errors.New("entry path resolves through a symlink")
)

// resolve maps an entry name to its output path under x.root. isRoot reports
// a name that cleans to the root itself.
//
// Backslashes are separators in zip names, which some Windows tools write
// that way, and on hosts where the OS treats them as separators. Elsewhere
// a tar member such as `a\b.txt` keeps its backslash as part of the name.
//
// The lexical check rejects absolute names and names that climb out after
// cleaning. The secure join then resolves symlinks already present under
// the root; if it disagrees with the lexical join, some component is a link
// and the entry is refused.
func (x *extractor) resolve(name string) (dst string, isRoot bool, err error) {
	clean := name
	if x.backslashSeparates || os.PathSeparator == '\\' {
		clean = strings.ReplaceAll(name, `\`, "/")
	}
	if path.IsAbs(clean) || hasVolume(clean) {
		return "", false, x.fail(name, ErrPathTraversal, errAbsolute)
	}

	clean = path.Clean(clean)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, x.fail(name, ErrPathTraversal, errEscapes)
	}
	if clean == "." {
		return x.root, true, nil
	}

	lexical := filepath.Join(x.root, filepath.FromSlash(clean))
	secure, err := securejoin.SecureJoin(x.root, filepath.FromSlash(clean))
	if err != nil {
		return "", false, x.fail(name, ErrIO, err)
	}
	if secure != lexical {
		return "", false, x.fail(name, ErrPathTraversal, errSymlink)
	}
	return lexical, false, nil
}

// hasVolume reports a Windows drive prefix such as "C:".
func hasVolume(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
