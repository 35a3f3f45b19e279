package convert

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
)

// Format is an output format.
type Format string

const (
	Markdown Format = "md"
	HTML     Format = "html"
	PDF      Format = "pdf"
	DOCX     Format = "docx"
	LaTeX    Format = "latex"
)

// Formats lists every supported format.
var Formats = []Format{Markdown, HTML, PDF, DOCX, LaTeX}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == LaTeX {
		return "tex"
	}
	return string(f)
}

// ParseFormat accepts a format name or its common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "md", "markdown":
		return Markdown, nil
	case "html", "htm":
		return HTML, nil
	case "pdf":
		return PDF, nil
	case "docx", "word":
		return DOCX, nil
	case "latex", "tex":
		return LaTeX, nil
	}
	return "", failure.Validation(failure.CodeInvalidContent, fmt.Sprintf("unknown format %q", s)).
		Suggest("use one of md, html, pdf, docx, latex")
}

// DefaultChains are the fallback formats tried, in order, after the target.
func DefaultChains() map[Format][]Format {
	return map[Format][]Format{
		PDF:      {HTML, Markdown},
		DOCX:     {HTML, Markdown},
		LaTeX:    {Markdown},
		HTML:     {Markdown},
		Markdown: nil,
	}
}

// chain returns the formats to attempt for target: the target itself, then
// each fallback once.
func chain(target Format, fallback []Format) []Format {
	out := []Format{target}
	for _, f := range fallback {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
