// Package sed provides sed-style substitution for documents.
//
// Supports the familiar s/old/new/ syntax with optional flags:
//
//	g  replace every match (default is the first match per section)
//	i  case-insensitive matching
//	r  treat old as a regular expression; $1 style references expand in new
//
// Alternate delimiters (s|old|new|) work too. Only substitution commands are
// supported; other sed features are out of scope. Substitution never touches
// headings, markers or the metadata block.
package sed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/section"
)

var (
	// ErrInvalidExpr is returned when a sed expression is malformed.
	ErrInvalidExpr = errors.New("invalid sed expression")
	// ErrUnsupportedCommand is returned for non-substitution commands.
	ErrUnsupportedCommand = errors.New("only substitution (s) commands are supported")
	// ErrTextNotFound is returned when nothing in the document matched.
	ErrTextNotFound = errors.New("text not found")
)

// Replacer performs the substitution.
type Replacer interface {
	Replace(ctx context.Context, doc, pattern, replacement string, opts section.ReplaceOptions) (section.ReplaceResult, error)
}

// Result contains the outcome of a sed operation.
type Result struct {
	Doc string `json:"doc"`
	section.ReplaceResult
}

// Expr represents a parsed sed expression.
type Expr struct {
	Old        string
	New        string
	Global     bool // g: replace all occurrences
	IgnoreCase bool // i
	Regexp     bool // r
}

// Options converts the expression into store options.
func (e Expr) Options() section.ReplaceOptions {
	return section.ReplaceOptions{
		CaseSensitive: !e.IgnoreCase,
		Regexp:        e.Regexp,
		First:         !e.Global,
	}
}

// Run executes a sed substitution on a document. A substitution that
// matched nothing fails with ErrTextNotFound.
func Run(ctx context.Context, w io.Writer, r Replacer, doc, expr string) (Result, error) {
	result := Result{Doc: doc}

	parsed, err := ParseExpr(expr)
	if err != nil {
		return result, failure.Validation(failure.CodeInvalidContent, err.Error()).
			With("expr", expr).
			Suggest("use s/old/new/ with optional flags g, i and r").
			Wrap(err)
	}

	res, err := r.Replace(ctx, doc, parsed.Old, parsed.New, parsed.Options())
	if err != nil {
		return result, err
	}
	result.ReplaceResult = res

	if res.Count == 0 {
		if len(res.Skipped) > 0 {
			return result, failure.Validation(failure.CodeInvalidContent, "substitution would change document structure").
				With("doc", doc).
				With("skipped", strings.Join(res.Skipped, ",")).
				Suggest("replacement text cannot introduce headings or section markers")
		}
		return result, failure.Validation(failure.CodeNotFound, fmt.Sprintf("%s: %q", ErrTextNotFound, parsed.Old)).
			With("doc", doc).
			Wrap(ErrTextNotFound)
	}

	fmt.Fprintf(w, "Edited %s: %d replacement(s) in %s\n", doc, res.Count, strings.Join(res.Sections, ", "))
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
	return result, nil
}

// ParseExpr parses a sed substitution expression like s/old/new/ or s|old|new|gi.
func ParseExpr(expr string) (Expr, error) {
	if len(expr) < 4 {
		return Expr{}, ErrInvalidExpr
	}

	if expr[0] != 's' {
		return Expr{}, ErrUnsupportedCommand
	}

	delim := expr[1]
	if delim == '\\' || delim == '\n' {
		return Expr{}, fmt.Errorf("%w: delimiter cannot be %q", ErrInvalidExpr, delim)
	}
	rest := expr[2:]

	parts, closed := splitByDelim(rest, delim)
	if len(parts) < 2 || parts[0] == "" {
		return Expr{}, fmt.Errorf("%w: expected s%cold%cnew%c", ErrInvalidExpr, delim, delim, delim)
	}
	if len(parts) > 3 || (len(parts) == 2 && !closed) {
		return Expr{}, fmt.Errorf("%w: expected s%cold%cnew%c", ErrInvalidExpr, delim, delim, delim)
	}

	result := Expr{
		Old: parts[0],
		New: parts[1],
	}

	if len(parts) == 3 {
		for _, f := range parts[2] {
			switch f {
			case 'g':
				result.Global = true
			case 'i', 'I':
				result.IgnoreCase = true
			case 'r', 'E':
				result.Regexp = true
			default:
				return Expr{}, fmt.Errorf("%w: unknown flag %q", ErrInvalidExpr, f)
			}
		}
	}

	return result, nil
}

// splitByDelim splits s by delim, treating \<delim> as a literal delimiter.
// Other escapes are kept so regular expressions survive. closed reports
// whether s ended with a delimiter.
func splitByDelim(s string, delim byte) (parts []string, closed bool) {
	var current strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if s[i+1] == delim {
				current.WriteByte(delim)
			} else {
				current.WriteByte(c)
				current.WriteByte(s[i+1])
			}
			i++
			continue
		}
		if c == delim {
			parts = append(parts, current.String())
			current.Reset()
			closed = true
			continue
		}
		closed = false
		current.WriteByte(c)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts, closed
}
