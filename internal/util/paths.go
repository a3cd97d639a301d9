package util

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ToLocalPath converts file:// URIs to filesystem paths and returns other
// values unchanged.
func ToLocalPath(pathOrURI string) string {
	p := strings.TrimSpace(pathOrURI)
	if !strings.HasPrefix(p, "file://") {
		return p
	}
	u, err := url.Parse(p)
	if err != nil {
		return strings.TrimPrefix(p, "file://")
	}
	if u.Host != "" && u.Host != "localhost" {
		return "//" + u.Host + u.Path
	}
	return filepath.FromSlash(u.Path)
}

// SafeBasename returns the final element of a path or URL, or def when empty.
func SafeBasename(p string, def string) string {
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	name := path.Base(filepath.ToSlash(p))
	if name == "" || name == "." || name == "/" {
		return def
	}
	return name
}
