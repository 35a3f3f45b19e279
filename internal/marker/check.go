package marker

import (
	"bytes"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
)

// CheckTitle validates a section title for use in a heading and marker.
func CheckTitle(title string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return failure.Validation(failure.CodeInvalidTitle, "section title is empty")
	case title != strings.TrimSpace(title):
		return failure.Validation(failure.CodeInvalidTitle, "section title has surrounding whitespace").
			With("title", title)
	case len(title) > MaxTitleLength:
		return failure.Validation(failure.CodeInvalidTitle, "section title too long").
			With("length", len(title)).
			With("max", MaxTitleLength)
	case strings.ContainsAny(title, "\r\n"):
		return failure.Validation(failure.CodeInvalidTitle, "section title spans lines")
	case strings.Contains(title, "-->"), strings.Contains(title, "<!--"):
		return failure.Validation(failure.CodeInvalidTitle, "section title contains comment delimiters").
			With("title", title)
	}
	return nil
}

// CheckBody reports whether b can be stored as a section body without
// changing the document structure: no heading lines or marker tokens outside
// code fences, and no fence left open.
func CheckBody(b []byte) error {
	var fence fenceState
	for i, line := range splitLines(b) {
		text := trimEOL(line)
		if fence.step(text) {
			continue
		}
		if m := headingRe.FindStringSubmatch(text); m != nil && m[2] != "" {
			return failure.Validation(failure.CodeInvalidContent, "content contains a heading line").
				With("line", i+1).
				Suggest("append headings as separate sections")
		}
		if markerAnyRe.MatchString(text) {
			return failure.Validation(failure.CodeInvalidContent, "content contains a section marker").
				With("line", i+1)
		}
	}
	if fence.Open() {
		return failure.Validation(failure.CodeInvalidContent, "content leaves a code fence open").
			Suggest("close every ``` or ~~~ block")
	}
	return nil
}

// Annotate inserts a marker under every heading that lacks one. Headings
// whose title is already taken, or is not a valid title, are left unmarked.
// It returns the new bytes and the number of markers added.
func Annotate(b []byte) ([]byte, int) {
	lines := splitLines(b)
	var out bytes.Buffer
	var fence fenceState
	taken := make(map[string]bool)

	// Existing markers reserve their titles first.
	for _, line := range lines {
		if m := markerLineRe.FindStringSubmatch(trimEOL(line)); m != nil {
			taken[m[1]] = true
		}
	}

	start := 0
	if len(lines) > 0 && trimEOL(lines[0]) == frontDelim {
		for i := 1; i < len(lines); i++ {
			if trimEOL(lines[i]) == frontDelim {
				start = i + 1
				break
			}
		}
	}
	for _, l := range lines[:start] {
		out.Write(l)
	}

	added := 0
	for i := start; i < len(lines); i++ {
		line := lines[i]
		text := trimEOL(line)
		out.Write(line)
		if fence.step(text) {
			continue
		}
		m := headingRe.FindStringSubmatch(text)
		if m == nil || m[2] == "" {
			continue
		}
		if i+1 < len(lines) && markerLineRe.MatchString(trimEOL(lines[i+1])) {
			continue
		}
		title := m[2]
		if taken[title] || CheckTitle(title) != nil {
			continue
		}
		if line[len(line)-1] != '\n' {
			out.WriteByte('\n')
		}
		out.WriteString(MarkerLine(title) + "\n")
		taken[title] = true
		added++
	}
	return out.Bytes(), added
}

// StripMarkers removes marker lines outside code fences. Output engines use
// it so the invisible comments never reach rendered formats.
func StripMarkers(b []byte) []byte {
	var out bytes.Buffer
	var fence fenceState
	for _, line := range splitLines(b) {
		text := trimEOL(line)
		if !fence.step(text) && markerLineRe.MatchString(text) {
			continue
		}
		out.Write(line)
	}
	return out.Bytes()
}

// Body returns the document content without the metadata block and markers.
func (d *Document) Body() []byte {
	var b bytes.Buffer
	b.Write(d.Preamble)
	for _, s := range d.Sections {
		b.Write(s.Heading)
		b.Write(s.Body)
		b.Write(s.Term)
	}
	return b.Bytes()
}
