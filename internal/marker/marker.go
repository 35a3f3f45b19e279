// Package marker parses and renders quill documents.
//
// A document is an optional YAML metadata block delimited by "---" lines,
// followed by a free-form preamble and a sequence of sections. Every
// addressable section is an ATX heading line immediately followed by an
// invisible marker comment carrying the same title:
//
//	## Intro
//	<!-- Section: Intro -->
//	Body text...
//
// Parse keeps every raw byte it reads so that Render(Parse(b)) == b for any
// well-formed input. A section's body is everything after its marker line up
// to the next heading line (or end of input), minus the single newline that
// separates it from that heading. Headings inside fenced code blocks are
// content, not boundaries.
package marker

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
)

const (
	frontDelim = "---"

	// MaxTitleLength bounds section titles so markers stay single-line and
	// lock scope keys stay short.
	MaxTitleLength = 256
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t]*$`)
	markerLineRe = regexp.MustCompile(`^[ \t]*<!--\s*(?:Section|SECTION):\s*(.+?)\s*-->[ \t]*$`)
	markerAnyRe  = regexp.MustCompile(`<!--\s*(?:Section|SECTION):`)
)

// Section is one heading-delimited block of a document.
//
// Marker is empty for headings that carry no marker; such blocks are kept
// verbatim but cannot be addressed by title.
type Section struct {
	Level   int
	Title   string
	Heading []byte // raw heading line including its newline
	Marker  []byte // raw marker line including its newline
	Body    []byte
	Term    []byte // newline separating Body from the next heading, if any
}

// Marked reports whether the section is addressable by title.
func (s *Section) Marked() bool { return len(s.Marker) > 0 }

// SetBody replaces the section body. The marker line is completed with a
// newline if it was the last line of the input, and the terminator is reset
// so the body round-trips exactly through Parse.
func (s *Section) SetBody(b []byte) {
	last := s.Marker
	if !s.Marked() {
		last = s.Heading
	}
	if len(last) > 0 && last[len(last)-1] != '\n' {
		if s.Marked() {
			s.Marker = append(s.Marker, '\n')
		} else {
			s.Heading = append(s.Heading, '\n')
		}
	}
	s.Body = b
	s.Term = []byte("\n")
}

// Size returns the rendered size of the section in bytes.
func (s *Section) Size() int {
	return len(s.Heading) + len(s.Marker) + len(s.Body) + len(s.Term)
}

// NewSection builds a canonical marked section.
func NewSection(level int, title string, body []byte) *Section {
	s := &Section{
		Level:   level,
		Title:   title,
		Heading: []byte(strings.Repeat("#", level) + " " + title + "\n"),
		Marker:  []byte(MarkerLine(title) + "\n"),
	}
	s.SetBody(body)
	return s
}

// MarkerLine returns the canonical marker comment for title.
func MarkerLine(title string) string {
	return "<!-- Section: " + title + " -->"
}

// Document is a parsed quill document.
type Document struct {
	Front    []byte // raw metadata block including both delimiter lines
	Meta     Metadata
	Preamble []byte
	Sections []*Section

	metaDirty bool
}

// Find returns the index and section with the given marker title, or -1.
// Matching is exact and case-sensitive.
func (d *Document) Find(title string) (int, *Section) {
	for i, s := range d.Sections {
		if s.Marked() && s.Title == title {
			return i, s
		}
	}
	return -1, nil
}

// Titles returns the titles of all marked sections in document order.
func (d *Document) Titles() []string {
	var out []string
	for _, s := range d.Sections {
		if s.Marked() {
			out = append(out, s.Title)
		}
	}
	return out
}

// Count returns the number of marked sections.
func (d *Document) Count() int {
	n := 0
	for _, s := range d.Sections {
		if s.Marked() {
			n++
		}
	}
	return n
}

// Insert places s at index i (len(Sections) appends). The section before
// the insertion point is terminated with a newline when needed so the new
// heading starts on its own line.
func (d *Document) Insert(i int, s *Section) {
	if i < 0 || i > len(d.Sections) {
		i = len(d.Sections)
	}
	d.terminateBefore(i)
	d.Sections = append(d.Sections, nil)
	copy(d.Sections[i+1:], d.Sections[i:])
	d.Sections[i] = s
}

// Remove deletes the section at index i.
func (d *Document) Remove(i int) {
	if i < 0 || i >= len(d.Sections) {
		return
	}
	d.Sections = append(d.Sections[:i], d.Sections[i+1:]...)
}

// terminateBefore makes sure the bytes preceding section index i end with a
// newline.
func (d *Document) terminateBefore(i int) {
	if i == 0 {
		if len(d.Preamble) > 0 && d.Preamble[len(d.Preamble)-1] != '\n' {
			d.Preamble = append(d.Preamble, '\n')
		}
		if len(d.Preamble) == 0 && len(d.Front) > 0 && d.Front[len(d.Front)-1] != '\n' {
			d.Front = append(d.Front, '\n')
		}
		return
	}
	prev := d.Sections[i-1]
	var tail []byte
	switch {
	case len(prev.Term) > 0:
		tail = prev.Term
	case len(prev.Body) > 0:
		tail = prev.Body
	case prev.Marked():
		tail = prev.Marker
	default:
		tail = prev.Heading
	}
	if tail[len(tail)-1] != '\n' {
		prev.SetBody(prev.Body)
	}
}

// Render serialises the document. Unchanged input renders byte-identically.
func (d *Document) Render() []byte {
	var b bytes.Buffer
	if d.metaDirty {
		b.Write(encodeFront(d.Meta))
	} else {
		b.Write(d.Front)
	}
	b.Write(d.Preamble)
	for _, s := range d.Sections {
		b.Write(s.Heading)
		b.Write(s.Marker)
		b.Write(s.Body)
		b.Write(s.Term)
	}
	return b.Bytes()
}

// Parse decodes b into a Document. It fails with a ValidationError on a
// malformed or unclosed metadata block, a duplicate marker, a marker that
// does not sit directly under a heading, or a marker whose title differs
// from its heading.
func Parse(b []byte) (*Document, error) {
	d := &Document{}
	lines := splitLines(b)

	start, err := d.parseFront(lines)
	if err != nil {
		return nil, err
	}

	var fence fenceState
	seen := make(map[string]int)
	var cur *Section

	for i := start; i < len(lines); i++ {
		line := lines[i]
		text := trimEOL(line)

		if fence.step(text) {
			appendLine(d, cur, line)
			continue
		}

		if m := headingRe.FindStringSubmatch(text); m != nil && m[2] != "" {
			if cur != nil {
				cur.finish()
			}
			cur = &Section{Level: len(m[1]), Title: m[2], Heading: line}
			d.Sections = append(d.Sections, cur)

			if i+1 < len(lines) {
				next := trimEOL(lines[i+1])
				if mm := markerLineRe.FindStringSubmatch(next); mm != nil {
					if mm[1] != cur.Title {
						return nil, failure.Validation(failure.CodeInvalidMarker, "marker title does not match heading").
							With("line", i+2).
							With("heading", cur.Title).
							With("marker", mm[1]).
							Suggest("make the heading text and the marker title identical")
					}
					if first, dup := seen[cur.Title]; dup {
						return nil, failure.Validation(failure.CodeInvalidMarker, "duplicate section marker").
							With("line", i+2).
							With("title", cur.Title).
							With("first_line", first)
					}
					seen[cur.Title] = i + 2
					cur.Marker = lines[i+1]
					i++
				}
			}
			continue
		}

		if markerAnyRe.MatchString(text) {
			return nil, failure.Validation(failure.CodeInvalidMarker, "section marker without a heading").
				With("line", i+1).
				Suggest("place each marker on the line directly after its heading")
		}
		appendLine(d, cur, line)
	}
	if cur != nil {
		cur.finish()
	}
	return d, nil
}

func appendLine(d *Document, cur *Section, line []byte) {
	if cur == nil {
		d.Preamble = append(d.Preamble, line...)
		return
	}
	cur.Body = append(cur.Body, line...)
}

// finish splits the trailing separator newline off the body.
func (s *Section) finish() {
	n := len(s.Body)
	if n == 0 || s.Body[n-1] != '\n' {
		return
	}
	s.Body = s.Body[:n-1]
	s.Term = []byte("\n")
}

// splitLines splits b into lines that keep their trailing "\n". The final
// line may lack one.
func splitLines(b []byte) [][]byte {
	var lines [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			lines = append(lines, b[:len(b):len(b)])
			break
		}
		lines = append(lines, b[:i+1:i+1])
		b = b[i+1:]
	}
	return lines
}

func trimEOL(line []byte) string {
	s := string(line)
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// fenceState tracks fenced code blocks (``` or ~~~).
type fenceState struct {
	char byte
	n    int
}

// step consumes one line and reports whether it belongs to a fence (either
// a delimiter or content inside one).
func (f *fenceState) step(text string) bool {
	t := strings.TrimLeft(text, " ")
	if len(text)-len(t) > 3 {
		return f.n > 0
	}
	if f.n > 0 {
		if c, n := fenceRun(t); c == f.char && n >= f.n && strings.TrimSpace(t[n:]) == "" {
			f.n = 0
		}
		return true
	}
	if c, n := fenceRun(t); n >= 3 {
		if c == '`' && strings.Contains(t[n:], "`") {
			return false
		}
		f.char, f.n = c, n
		return true
	}
	return false
}

// Open reports whether a fence is still open.
func (f *fenceState) Open() bool { return f.n > 0 }

func fenceRun(t string) (byte, int) {
	if t == "" || (t[0] != '`' && t[0] != '~') {
		return 0, 0
	}
	c := t[0]
	n := 0
	for n < len(t) && t[n] == c {
		n++
	}
	return c, n
}
