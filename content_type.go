package artifactkit

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// Build output types that the system MIME tables usually lack.
var artifactTypes = map[string]string{
	".aab":    "application/octet-stream",
	".apk":    "application/vnd.android.package-archive",
	".ipa":    "application/octet-stream",
	".jar":    "application/java-archive",
	".war":    "application/java-archive",
	".whl":    "application/zip",
	".zip":    "application/zip",
	".tar":    "application/x-tar",
	".gz":     "application/gzip",
	".tgz":    "application/gzip",
	".tar.gz": "application/gzip",
	".deb":    "application/vnd.debian.binary-package",
	".rpm":    "application/x-rpm",
	".dmg":    "application/x-apple-diskimage",
	".msi":    "application/x-msi",
	".exe":    "application/vnd.microsoft.portable-executable",
	".map":    "application/json",
	".json":   "application/json",
	".js":     "text/javascript",
	".css":    "text/css",
	".html":   "text/html",
	".txt":    "text/plain",
	".log":    "text/plain",
	".md":     "text/markdown",
}

// ContentTypeByName returns the MIME type for a store path from its
// extension, or "" when unknown.
func ContentTypeByName(p string) string {
	name := strings.ToLower(path.Base(strings.ReplaceAll(p, `\`, "/")))
	if strings.HasSuffix(name, ".tar.gz") {
		return artifactTypes[".tar.gz"]
	}
	ext := path.Ext(name)
	if ct, ok := artifactTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// GuessContentType uses the extension first and sniffs head otherwise.
func GuessContentType(p string, head []byte) string {
	if ct := ContentTypeByName(p); ct != "" {
		return ct
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}
