package utils

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrUnsafePath is returned for URL paths that would escape their root directory
var ErrUnsafePath = errors.New("unsafe url path")

// URLRelativePath extracts the slash-separated path of a URL without the host
// or leading slash, e.g. https://cdn.example.com/a/b/file.pak -> a/b/file.pak
func URLRelativePath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	p := strings.TrimPrefix(parsed.Path, "/")
	if p == "" {
		return "", ErrUnsafePath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrUnsafePath
		}
	}

	return path.Clean(p), nil
}

// HasPathSuffix reports whether key equals p or is a "/"-bounded suffix of it
func HasPathSuffix(p, key string) bool {
	key = strings.Trim(key, "/")
	p = strings.Trim(p, "/")
	if key == "" {
		return false
	}
	return p == key || strings.HasSuffix(p, "/"+key)
}
