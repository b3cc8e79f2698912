package document

import (
	"net/url"
	"path/filepath"
	"strings"
)

// FileURI converts a filesystem path to a file:// URI.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI converts a file:// URI to a filesystem path. Other schemes
// return "".
func PathFromURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
	}
	return filepath.FromSlash(u.Path)
}
