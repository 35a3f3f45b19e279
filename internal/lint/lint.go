// Package lint checks a document before it is converted.
//
// Structural problems (metadata, markers, header jumps, broken relative
// links and images, ragged tables, unclosed fences) are errors and block
// conversion. Style problems, such as a fence without a language, are
// warnings.
package lint

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Severity grades an issue.
type Severity string

const (
	Error   Severity = "error"
	Warning Severity = "warning"
)

// Rule names.
const (
	RuleMetadata  = "metadata"
	RuleMarker    = "marker"
	RuleHierarchy = "header-hierarchy"
	RuleLink      = "broken-link"
	RuleImage     = "missing-image"
	RuleTable     = "table"
	RuleFence     = "code-fence"
)

// Issue is one finding.
type Issue struct {
	Line       int      `json:"line"`
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("line %d: %s: %s", i.Line, i.Rule, i.Message)
}

// Result collects the issues for one document.
type Result struct {
	Doc    string  `json:"doc"`
	Issues []Issue `json:"issues"`
}

// Errors returns the number of error-severity issues.
func (r Result) Errors() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == Error {
			n++
		}
	}
	return n
}

// Err returns a LINT_FAILED validation error when any error-severity issue
// was found.
func (r Result) Err() error {
	var first *Issue
	for i := range r.Issues {
		if r.Issues[i].Severity == Error {
			first = &r.Issues[i]
			break
		}
	}
	if first == nil {
		return nil
	}
	e := failure.Validation(failure.CodeLintFailed, "document failed validation").
		With("doc", r.Doc).
		With("errors", r.Errors()).
		With("first", first.String())
	if first.Suggestion != "" {
		e = e.Suggest(first.Suggestion)
	}
	return e
}

// Options configures Check.
type Options struct {
	// Dir resolves relative links and images. Empty skips existence checks.
	Dir string
}

// Check lints document content.
func Check(doc string, b []byte, opts Options) Result {
	r := Result{Doc: doc}

	d, err := marker.Parse(b)
	if err != nil {
		r.add(parseIssue(err))
		return r
	}
	if d.Front == nil {
		r.add(Issue{Line: 1, Rule: RuleMetadata, Severity: Error,
			Message:    "document has no metadata block",
			Suggestion: "add a --- delimited block with title, author and date"})
	} else if err := d.Meta.Validate(); err != nil {
		fe := failure.From(err)
		r.add(Issue{Line: 1, Rule: RuleMetadata, Severity: Error, Message: fe.Message, Suggestion: fe.Suggestion})
	}

	offset := bytes.Count(d.Front, []byte("\n"))
	line := offset + bytes.Count(d.Preamble, []byte("\n")) + 1
	for _, s := range d.Sections {
		if !s.Marked() {
			r.add(Issue{Line: line, Rule: RuleMarker, Severity: Error,
				Message:    fmt.Sprintf("heading %q has no section marker", s.Title),
				Suggestion: "add " + marker.MarkerLine(s.Title) + " on the next line, or re-import the document"})
		}
		line += bytes.Count(s.Heading, []byte("\n")) + bytes.Count(s.Marker, []byte("\n")) +
			bytes.Count(s.Body, []byte("\n")) + bytes.Count(s.Term, []byte("\n"))
	}

	body := b[len(d.Front):]
	walk(&r, body, offset, opts)
	tables(&r, body, offset)
	fences(&r, body, offset)
	return r
}

func (r *Result) add(i Issue) { r.Issues = append(r.Issues, i) }

func parseIssue(err error) Issue {
	fe := failure.From(err)
	line, _ := fe.Context["line"].(int)
	rule := RuleMarker
	if fe.Code == failure.CodeInvalidMetadata {
		rule = RuleMetadata
	}
	return Issue{Line: max(line, 1), Rule: rule, Severity: Error, Message: fe.Message, Suggestion: fe.Suggestion}
}

// walk runs the AST rules: header hierarchy, links and images.
func walk(r *Result, src []byte, offset int, opts Options) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	lineOf := func(n ast.Node) int {
		for p := n; p != nil; p = p.Parent() {
			if p.Type() == ast.TypeBlock && p.Lines().Len() > 0 {
				return offset + bytes.Count(src[:p.Lines().At(0).Start], []byte("\n")) + 1
			}
		}
		return offset + 1
	}

	level := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if level > 0 && node.Level > level+1 {
				r.add(Issue{Line: lineOf(n), Rule: RuleHierarchy, Severity: Error,
					Message:    fmt.Sprintf("header level jumps from %d to %d", level, node.Level),
					Suggestion: fmt.Sprintf("use a level %d header instead", level+1)})
			}
			level = node.Level
		case *ast.Link:
			if dest := string(node.Destination); !resolvable(dest, opts.Dir) {
				r.add(Issue{Line: lineOf(n), Rule: RuleLink, Severity: Error,
					Message:    "broken link: " + dest,
					Suggestion: "use an absolute URL or a path to an existing file"})
			}
		case *ast.Image:
			if dest := string(node.Destination); !resolvable(dest, opts.Dir) {
				r.add(Issue{Line: lineOf(n), Rule: RuleImage, Severity: Error,
					Message:    "image not found: " + dest,
					Suggestion: "make sure the image exists relative to the document"})
			}
		}
		return ast.WalkContinue, nil
	})
}

// resolvable reports whether a link target is external, an anchor, or an
// existing file relative to dir.
func resolvable(dest, dir string) bool {
	if dest == "" {
		return false
	}
	if strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return true
	}
	if u, err := url.Parse(dest); err == nil && u.Scheme != "" {
		return true
	}
	if dir == "" {
		return true
	}
	p := dest
	if i := strings.IndexAny(p, "#?"); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
	return err == nil
}

var alignCell = regexp.MustCompile(`^:?-+:?$`)

// tables checks that pipe tables have an alignment row matching the header
// and rows with a consistent column count.
func tables(r *Result, src []byte, offset int) {
	lines := strings.Split(string(src), "\n")
	inFence := false
	for i := 0; i < len(lines); i++ {
		l := strings.TrimSpace(lines[i])
		if isFence(l) {
			inFence = !inFence
			continue
		}
		if inFence || !isRow(l) {
			continue
		}
		cols := len(cells(l))
		if i+1 >= len(lines) || !isRow(strings.TrimSpace(lines[i+1])) {
			r.add(Issue{Line: offset + i + 2, Rule: RuleTable, Severity: Error,
				Message:    "table is missing its alignment row",
				Suggestion: "add a row like | --- | --- | under the header"})
			continue
		}
		align := cells(strings.TrimSpace(lines[i+1]))
		if len(align) != cols {
			r.add(Issue{Line: offset + i + 2, Rule: RuleTable, Severity: Error,
				Message:    fmt.Sprintf("alignment row has %d columns, expected %d", len(align), cols),
				Suggestion: "make the alignment row match the header"})
		}
		for _, c := range align {
			if !alignCell.MatchString(c) {
				r.add(Issue{Line: offset + i + 2, Rule: RuleTable, Severity: Error,
					Message:    "invalid alignment row",
					Suggestion: "use ---, :---, ---: or :---:"})
				break
			}
		}
		j := i + 2
		for ; j < len(lines) && isRow(strings.TrimSpace(lines[j])); j++ {
			if n := len(cells(strings.TrimSpace(lines[j]))); n != cols {
				r.add(Issue{Line: offset + j + 1, Rule: RuleTable, Severity: Error,
					Message:    fmt.Sprintf("table row has %d columns, expected %d", n, cols),
					Suggestion: "give every row the same number of cells"})
			}
		}
		i = j - 1
	}
}

func isRow(l string) bool {
	return len(l) >= 2 && strings.HasPrefix(l, "|") && strings.HasSuffix(l, "|")
}

func cells(row string) []string {
	parts := strings.Split(row[1:len(row)-1], "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func isFence(l string) bool {
	return strings.HasPrefix(l, "```") || strings.HasPrefix(l, "~~~")
}

// fences reports unclosed code fences and fences without a language.
func fences(r *Result, src []byte, offset int) {
	lines := strings.Split(string(src), "\n")
	var open string
	start := 0
	for i, raw := range lines {
		l := strings.TrimSpace(raw)
		if !isFence(l) {
			continue
		}
		if open == "" {
			open = l[:3]
			start = i
			if strings.TrimSpace(strings.TrimLeft(l, open[:1])) == "" {
				r.add(Issue{Line: offset + i + 1, Rule: RuleFence, Severity: Warning,
					Message:    "code block has no language",
					Suggestion: "add a language after the opening fence"})
			}
			continue
		}
		if strings.HasPrefix(l, open) && strings.TrimLeft(l, open[:1]) == "" {
			open = ""
		}
	}
	if open != "" {
		r.add(Issue{Line: offset + start + 1, Rule: RuleFence, Severity: Error,
			Message:    "unclosed code block",
			Suggestion: "close it with " + open})
	}
}
