package section

import (
	"bytes"
	"context"
	"regexp"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
)

// Preamble names the text before the first heading in ReplaceResult.
const Preamble = "(preamble)"

// ReplaceOptions configures SearchAndReplace.
type ReplaceOptions struct {
	CaseSensitive bool
	// Regexp treats pattern as an RE2 expression and expands $1 style
	// references in the replacement. Otherwise both are literal.
	Regexp bool
	// First replaces only the first match in the preamble and in each
	// section body, the way sed without the g flag treats each line.
	First bool
}

// ReplaceResult reports what SearchAndReplace changed.
type ReplaceResult struct {
	Count    int      `json:"count"`
	Sections []string `json:"sections,omitempty"`
	// Skipped lists sections whose result would have introduced a heading
	// or marker; they were left unchanged.
	Skipped []string `json:"skipped,omitempty"`
}

// SearchAndReplace substitutes every match of pattern in the preamble and
// section bodies. Headings, markers and metadata are never touched. When
// nothing matches the document is not rewritten.
func (s *Store) SearchAndReplace(ctx context.Context, doc, pattern, replacement string, opts ReplaceOptions) (ReplaceResult, error) {
	var res ReplaceResult
	id, err := Normalise(doc)
	if err != nil {
		return res, err
	}
	re, err := compile(pattern, opts)
	if err != nil {
		return res, err
	}

	err = s.mutate(ctx, id, lock.Document, "replace", func(d *marker.Document) (bool, error) {
		res = ReplaceResult{}
		if out, n, ok := substitute(re, d.Preamble, replacement, opts); n > 0 {
			// The first heading must still start on its own line.
			if len(d.Sections) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
				ok = false
			}
			if ok {
				d.Preamble = out
				res.Count += n
				res.Sections = append(res.Sections, Preamble)
			} else {
				res.Skipped = append(res.Skipped, Preamble)
			}
		}
		for _, sec := range d.Sections {
			out, n, ok := substitute(re, sec.Body, replacement, opts)
			if n == 0 {
				continue
			}
			if !ok || s.checkSection(id, sec.Title, out) != nil {
				res.Skipped = append(res.Skipped, sec.Title)
				continue
			}
			sec.SetBody(out)
			res.Count += n
			res.Sections = append(res.Sections, sec.Title)
		}
		return res.Count > 0, nil
	})
	return res, err
}

func compile(pattern string, opts ReplaceOptions) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, failure.Validation(failure.CodeInvalidContent, "search pattern is empty")
	}
	expr := pattern
	if !opts.Regexp {
		expr = regexp.QuoteMeta(pattern)
	}
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, failure.Validation(failure.CodeInvalidContent, "invalid search pattern").
			With("pattern", pattern).Wrap(err)
	}
	return re, nil
}

// substitute applies re to b. It returns the new bytes, the match count and
// whether the result is still a valid body.
func substitute(re *regexp.Regexp, b []byte, repl string, opts ReplaceOptions) ([]byte, int, bool) {
	var out []byte
	var n int
	if opts.First {
		loc := re.FindSubmatchIndex(b)
		if loc == nil {
			return nil, 0, false
		}
		r := []byte(repl)
		if opts.Regexp {
			r = re.Expand(nil, r, b, loc)
		}
		out = make([]byte, 0, len(b)+len(r))
		out = append(out, b[:loc[0]]...)
		out = append(out, r...)
		out = append(out, b[loc[1]:]...)
		n = 1
	} else {
		n = len(re.FindAllIndex(b, -1))
		if n == 0 {
			return nil, 0, false
		}
		if opts.Regexp {
			out = re.ReplaceAll(b, []byte(repl))
		} else {
			out = re.ReplaceAllLiteral(b, []byte(repl))
		}
	}
	if bytes.Equal(out, b) {
		return nil, 0, false
	}
	return out, n, marker.CheckBody(out) == nil
}
