// Package path provides document id normalisation and validation.
//
// Every document id passes through Normalise before it is mapped to a file
// under the workspace root. Ids use forward slashes on every platform and
// map to "<root>/<id>.md".
//
// Normalisation rules:
//   - Paths use forward slashes
//   - No leading or trailing slashes
//   - No "." or ".." components after cleaning
//   - .md extension is stripped (docs/readme.md becomes docs/readme)
//   - No hidden components; .quill, .locks and .versions are reserved
//   - No "_v<N>" suffix on the final component; snapshot files use it
package path

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxLength bounds document ids in bytes.
const MaxLength = 1024

var (
	// ErrInvalid indicates the provided document id is invalid.
	ErrInvalid = errors.New("invalid document path")
	// ErrTooLong indicates the document id exceeds MaxLength.
	ErrTooLong = errors.New("document path too long")
	// ErrReserved indicates the id collides with quill's own files.
	ErrReserved = errors.New("reserved document path")
)

var snapshotSuffix = regexp.MustCompile(`_v\d+$`)

// Normalise cleans and validates a document id.
func Normalise(p string) (string, error) {
	if p == "" {
		return "", ErrInvalid
	}

	p = filepath.ToSlash(filepath.Clean(toSlash(p)))
	p = strings.Trim(p, "/")

	if len(p) > 3 && strings.EqualFold(p[len(p)-3:], ".md") {
		p = p[:len(p)-3]
	}

	if p == "" || p == "." || p == ".." || strings.Contains(p, "..") {
		return "", ErrInvalid
	}
	if len(p) > MaxLength {
		return "", ErrTooLong
	}
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") {
			return "", ErrReserved
		}
	}
	if snapshotSuffix.MatchString(p) {
		return "", ErrReserved
	}
	return p, nil
}

// File returns the relative file name for a normalised id.
func File(id string) string {
	return filepath.FromSlash(id) + ".md"
}

// Direct reports whether path is a direct child of prefix.
//
// Examples (prefix="docs"):
//   - "docs/readme" -> true (direct child)
//   - "docs/api/auth" -> false (nested)
//   - "docs" -> true (exact match)
func Direct(path, prefix string) bool {
	prefix = strings.TrimSuffix(toSlash(prefix), "/")

	if path == prefix {
		return true
	}

	var remainder string
	if prefix == "" {
		remainder = path
	} else if strings.HasPrefix(path, prefix+"/") {
		remainder = path[len(prefix)+1:]
	} else {
		return false
	}
	return !strings.Contains(remainder, "/")
}

// Under reports whether path equals prefix or sits anywhere below it.
func Under(path, prefix string) bool {
	prefix = strings.Trim(toSlash(prefix), "/")
	return prefix == "" || path == prefix || strings.HasPrefix(path, prefix+"/")
}
