package media

import (
	"net/url"
	"path"
	"strings"
)

// Markers in source URLs after which the remote path is kept as the local
// path. Markers ending in "/" are dropped; the others are kept.
var pathMarkers = []struct {
	marker string
	keep   string
}{
	{marker: "/nicmusic/"},
	{marker: "/wp-content/", keep: "wp-content/"},
	{marker: "/Ganja2Music/"},
	{marker: "/Image/", keep: "Image/"},
}

// FileName returns the URL-decoded last path segment of rawURL.
func FileName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.EscapedPath()
	}
	name := path.Base(p)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// StoragePath derives the blob path for a media link by keeping the part of
// the remote path that follows a known host layout, falling back to the file
// name. Spaces are removed.
func StoragePath(rawURL string) string {
	decoded := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		decoded = u.Path
	} else if unescaped, err := url.PathUnescape(rawURL); err == nil {
		decoded = unescaped
	}
	out := ""
	for _, m := range pathMarkers {
		if idx := strings.Index(decoded, m.marker); idx != -1 {
			out = m.keep + decoded[idx+len(m.marker):]
			break
		}
	}
	if out == "" {
		out = FileName(rawURL)
	}
	return strings.ReplaceAll(out, " ", "")
}

// JoinURL joins base and p with single slashes, skipping empty parts.
func JoinURL(base, p string) string {
	var parts []string
	for _, s := range []string{base, p} {
		s = strings.TrimRight(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
