// Package pathutil holds the path-normalization and file:// URI helpers
// the router needs: absolute-path validation, URI<->path conversion, and
// the upward root-glob walk used to find a project root from a buffer
// path when no root is configured.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsAbsolute reports whether p is an absolute filesystem path. Buffer
// paths from the editor that aren't absolute are rejected by callers.
func IsAbsolute(p string) bool {
	return p != "" && filepath.IsAbs(p)
}

// ToURI converts an absolute filesystem path to a file:// URI.
func ToURI(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean // Windows drive letters: file:///C:/...
	}
	return "file://" + clean
}

// FromURI converts a file:// URI back to a filesystem path, undoing the
// Windows-drive-letter leading-slash special case from ToURI.
func FromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return "", fmt.Errorf("not a file:// uri: %s", uri)
	}
	p := strings.TrimPrefix(uri, "file://")
	if len(p) > 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:] // strip the leading slash before a drive letter
	}
	if p == "" {
		return "", errors.New("empty path in uri")
	}
	return filepath.FromSlash(p), nil
}

// FindRootUpward walks from dir upward, at each level testing every
// pattern in globs against the directory's basename-relative glob match;
// the first directory where any pattern matches wins. Returns "" if no
// ancestor matches (including the filesystem root itself).
func FindRootUpward(dir string, globs []string) (string, error) {
	dir = filepath.Clean(dir)
	for {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				for _, g := range globs {
					ok, err := doublestar.Match(g, e.Name())
					if err == nil && ok {
						return dir, nil
					}
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// CompileGlob wraps doublestar.Match; brace expansion ({a,b}) is
// unsupported and reported as an error so the caller can log and skip
// that registration instead of silently watching nothing.
func CompileGlob(pattern string) error {
	if strings.ContainsAny(pattern, "{}") {
		return fmt.Errorf("brace expansion unsupported in pattern %q", pattern)
	}
	_, err := doublestar.Match(pattern, "")
	return err
}

// MatchGlob reports whether path (absolute) matches pattern, which may be
// rooted (absolute) or relative to base.
func MatchGlob(pattern, base, path string) bool {
	rel := path
	if base != "" {
		if r, err := filepath.Rel(base, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	ok, err := doublestar.Match(pattern, rel)
	if err == nil && ok {
		return true
	}
	ok, err = doublestar.Match(pattern, filepath.ToSlash(path))
	return err == nil && ok
}
