package download

import (
	"net/url"
	"strings"
)

// DefaultFilename names downloads whose URL path has no usable last segment.
const DefaultFilename = "unknown.zip"

// FileName derives the destination file name from the last path segment of
// the resolved URL.
func FileName(u *url.URL) string {
	if u == nil {
		return DefaultFilename
	}
	p := u.Path
	idx := strings.LastIndexByte(p, '/')
	last := p[idx+1:]
	// Windows separators in an escaped segment would otherwise reach the
	// filesystem as directories.
	if last == "" || last == "." || last == ".." || strings.ContainsAny(last, `\`+"\x00") {
		return DefaultFilename
	}
	return last
}
