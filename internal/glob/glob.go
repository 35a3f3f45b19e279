// Package glob matches document ids against shell-style patterns.
//
// Ids always use forward slashes, so matching goes through path.Match rather
// than filepath.Match. A "**" component matches any number of id segments,
// letting "reports/**" select every document below reports/ and
// "**/summary" select every document named summary.
package glob

import (
	"errors"
	"path"
	"strings"
)

// ErrPattern is returned for a malformed pattern.
var ErrPattern = errors.New("invalid glob pattern")

// Match reports whether id matches pattern. A trailing ".md" on the pattern
// is ignored so patterns can be written as file names. Patterns without a
// slash also match against the final id segment.
func Match(pattern, id string) (bool, error) {
	pattern = strings.TrimSuffix(strings.ReplaceAll(pattern, `\`, "/"), ".md")
	if pattern == "" {
		return false, ErrPattern
	}

	if strings.Contains(pattern, "**") {
		return matchSegments(strings.Split(pattern, "/"), strings.Split(id, "/"))
	}

	ok, err := path.Match(pattern, id)
	if err != nil {
		return false, errors.Join(ErrPattern, err)
	}
	if ok || strings.Contains(pattern, "/") {
		return ok, nil
	}
	ok, err = path.Match(pattern, path.Base(id))
	if err != nil {
		return false, errors.Join(ErrPattern, err)
	}
	return ok, nil
}

// matchSegments matches pattern segments against id segments, with "**"
// consuming zero or more id segments.
func matchSegments(pat, segs []string) (bool, error) {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			if len(rest) == 0 {
				return true, nil
			}
			for i := 0; i <= len(segs); i++ {
				ok, err := matchSegments(rest, segs[i:])
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil
		}
		if len(segs) == 0 {
			return false, nil
		}
		ok, err := path.Match(pat[0], segs[0])
		if err != nil {
			return false, errors.Join(ErrPattern, err)
		}
		if !ok {
			return false, nil
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0, nil
}

// Filter returns the ids matching pattern, keeping their order. An empty
// pattern keeps every id.
func Filter(pattern string, ids []string) ([]string, error) {
	if pattern == "" {
		return ids, nil
	}
	var out []string
	for _, id := range ids {
		ok, err := Match(pattern, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}
