// Package grep provides regex search across document sections.
//
// Matches are reported with the document id, the 1-based line number in the
// document file and the title of the section the line belongs to, so a
// caller can go straight to "quill get <doc> <section>" or "quill edit".
// The metadata block and the invisible marker lines are never searched.
// Familiar grep flags are supported: -i, -v, -l, -c and -C.
package grep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/glob"
	"github.com/jpl-au/quill/internal/marker"
)

// Source lists and reads documents.
type Source interface {
	Documents(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, doc string) ([]byte, error)
}

// Options configures a grep operation.
type Options struct {
	Prefix     string // Scope search to an id prefix
	Glob       string // Only documents whose id matches this pattern
	Section    string // Only lines inside this section
	IgnoreCase bool   // -i
	Invert     bool   // -v: report lines that do not match
	PathsOnly  bool   // -l: print matching document ids only
	CountOnly  bool   // -c: print match counts per document

	// Context prints N lines around each match (-C). Context lines never
	// cross into the metadata block.
	Context int
}

// Match is one matching line.
type Match struct {
	Line    int    `json:"line"`
	Section string `json:"section,omitempty"`
	Content string `json:"content"`
}

// DocMatch holds every match in one document.
type DocMatch struct {
	Doc     string  `json:"doc"`
	Matches []Match `json:"matches"`
}

// Result contains the outcome of a grep operation.
type Result struct {
	Hits    []DocMatch `json:"hits"`
	Total   int        `json:"total"`
	Skipped []string   `json:"skipped,omitempty"` // documents that failed to parse
}

// line is one searchable line of a document.
type line struct {
	num     int
	section string
	text    string
	hidden  bool // metadata or marker line
}

// Run searches documents for pattern and writes grep-style output to w.
// Documents that fail to parse are listed in Result.Skipped rather than
// aborting the search.
func Run(ctx context.Context, w io.Writer, src Source, pattern string, opts Options) (Result, error) {
	var result Result

	flags := ""
	if opts.IgnoreCase {
		flags = "(?i)"
	}
	re, err := regexp.Compile(flags + pattern)
	if err != nil {
		return result, failure.Validation(failure.CodeInvalidContent, "invalid regular expression").
			With("pattern", pattern).
			Wrap(err)
	}

	ids, err := src.Documents(ctx, opts.Prefix)
	if err != nil {
		return result, err
	}
	if ids, err = glob.Filter(opts.Glob, ids); err != nil {
		return result, failure.Validation(failure.CodeInvalidContent, err.Error()).
			With("glob", opts.Glob).
			Wrap(err)
	}

	var all [][]line
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, failure.From(err)
		}
		b, err := src.Read(ctx, id)
		if err != nil {
			return result, err
		}
		lines, err := split(b)
		if err != nil {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		matches := matchLines(re, lines, opts)
		if len(matches) == 0 {
			continue
		}
		result.Hits = append(result.Hits, DocMatch{Doc: id, Matches: matches})
		result.Total += len(matches)
		all = append(all, lines)
	}

	switch {
	case opts.PathsOnly:
		for _, hit := range result.Hits {
			fmt.Fprintln(w, hit.Doc)
		}
	case opts.CountOnly:
		for _, hit := range result.Hits {
			fmt.Fprintf(w, "%s:%d\n", hit.Doc, len(hit.Matches))
		}
	case opts.Context > 0:
		for i, hit := range result.Hits {
			writeContext(w, hit, all[i], opts.Context)
		}
	default:
		for _, hit := range result.Hits {
			for _, m := range hit.Matches {
				fmt.Fprintf(w, "%s:%d:%s\n", hit.Doc, m.Line, m.Content)
			}
		}
	}
	return result, nil
}

// split parses b and returns its lines tagged with their owning section.
func split(b []byte) ([]line, error) {
	d, err := marker.Parse(b)
	if err != nil {
		return nil, err
	}

	var lines []line
	num := 0
	add := func(chunk []byte, section string, hidden bool) {
		for _, t := range strings.SplitAfter(string(chunk), "\n") {
			if t == "" {
				continue
			}
			num++
			lines = append(lines, line{num: num, section: section, text: strings.TrimRight(t, "\r\n"), hidden: hidden})
		}
	}

	add(d.Front, "", true)
	add(d.Preamble, "", false)
	for _, s := range d.Sections {
		title := ""
		if s.Marked() {
			title = s.Title
		}
		add(s.Heading, title, false)
		add(s.Marker, title, true)
		// Body and its terminator form whole lines together.
		add(append(bytes.Clone(s.Body), s.Term...), title, false)
	}
	return lines, nil
}

func matchLines(re *regexp.Regexp, lines []line, opts Options) []Match {
	var matches []Match
	for _, l := range lines {
		if l.hidden {
			continue
		}
		if opts.Section != "" && l.section != opts.Section {
			continue
		}
		if re.MatchString(l.text) != opts.Invert {
			matches = append(matches, Match{Line: l.num, Section: l.section, Content: l.text})
		}
	}
	return matches
}

// writeContext prints matches with surrounding lines using grep's
// conventions: ":" after matching line numbers, "-" after context line
// numbers and "--" between non-adjacent groups.
func writeContext(w io.Writer, hit DocMatch, lines []line, n int) {
	matched := make(map[int]bool, len(hit.Matches))
	for _, m := range hit.Matches {
		matched[m.Line] = true
	}

	last := 0
	for _, m := range hit.Matches {
		start := max(m.Line-n, 1)
		end := min(m.Line+n, len(lines))
		if start <= last {
			start = last + 1
		} else if last > 0 {
			fmt.Fprintln(w, "--")
		}
		for num := start; num <= end; num++ {
			l := lines[num-1]
			if l.hidden {
				continue
			}
			sep := "-"
			if matched[num] {
				sep = ":"
			}
			fmt.Fprintf(w, "%s%s%d%s%s\n", hit.Doc, sep, num, sep, l.text)
		}
		if end > last {
			last = end
		}
	}
}
