package convert

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"os"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Source is the document handed to an engine.
type Source struct {
	Doc  string
	Meta marker.Metadata
	Raw  []byte // full document bytes
	Body []byte // content without metadata block and markers
	Dir  string // directory holding the document
}

// NewSource parses raw document bytes into a Source.
func NewSource(doc string, raw []byte, dir string) (Source, error) {
	d, err := marker.Parse(raw)
	if err != nil {
		return Source{}, err
	}
	return Source{Doc: doc, Meta: d.Meta, Raw: raw, Body: d.Body(), Dir: dir}, nil
}

// Title returns the metadata title, or the document id.
func (s Source) Title() string {
	if t := s.Meta.String("title"); t != "" {
		return t
	}
	return s.Doc
}

// Engine converts a document into one format.
type Engine interface {
	Format() Format
	Name() string
	Convert(ctx context.Context, src Source, w io.Writer) error
}

// Verifier is implemented by engines that can check a written artifact.
type Verifier interface {
	Verify(path string) error
}

// EngineOptions configures the external tools engines depend on.
type EngineOptions struct {
	Chrome     string   // browser executable for PDF; empty searches PATH
	Pandoc     string   // pandoc executable for LaTeX; empty searches PATH
	PandocArgs []string // appended to every pandoc invocation
	// Templates holds per-format style references: a stylesheet for HTML
	// and PDF, a reference document for DOCX, a pandoc template for LaTeX.
	Templates map[Format]string
}

// DefaultEngines returns one engine per supported format. PDF uses the
// HTML stylesheet unless it has its own.
func DefaultEngines(opts EngineOptions) []Engine {
	h := NewHTMLEngine()
	h.Stylesheet = opts.Templates[HTML]
	ph := h
	if css := opts.Templates[PDF]; css != "" {
		ph = NewHTMLEngine()
		ph.Stylesheet = css
	}
	return []Engine{
		MarkdownEngine{},
		h,
		&PDFEngine{HTML: ph, Chrome: opts.Chrome},
		DOCXEngine{Reference: opts.Templates[DOCX]},
		LaTeXEngine{Pandoc: opts.Pandoc, Template: opts.Templates[LaTeX], Args: opts.PandocArgs},
	}
}

func unavailable(f Format, name, msg string) *failure.Error {
	return failure.Engine(failure.CodeEngineUnavailable, msg).
		With("format", string(f)).With("engine", name)
}

// badTemplate reports a style reference that cannot be used.
func badTemplate(f Format, path string, err error) *failure.Error {
	return failure.Engine(failure.CodeEngineFailed, "cannot use "+string(f)+" template").
		With("format", string(f)).
		With("template", path).
		Suggest("fix or unset convert.template." + string(f)).
		Wrap(err)
}

// MarkdownEngine writes the document with markers removed.
type MarkdownEngine struct{}

func (MarkdownEngine) Format() Format { return Markdown }
func (MarkdownEngine) Name() string   { return "markdown" }

func (MarkdownEngine) Convert(ctx context.Context, src Source, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := w.Write(marker.StripMarkers(src.Raw))
	return err
}

// defaultStyle is used when no stylesheet is configured.
const defaultStyle = `body { font-family: Georgia, serif; max-width: 46em; margin: 2em auto; padding: 0 1em; line-height: 1.5; color: #222; }
pre { background: #f4f4f4; padding: 0.75em; overflow-x: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25em 0.5em; }
.meta { color: #666; font-size: 0.9em; }`

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
{{.Style}}
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{if or .Author .Date}}<p class="meta">{{.Author}}{{if and .Author .Date}} · {{end}}{{.Date}}</p>{{end}}
</header>
<article>
{{.Content}}
</article>
</body>
</html>
`))

// HTMLEngine renders markdown with goldmark and sanitises the result.
type HTMLEngine struct {
	// Stylesheet is a CSS file inlined into the page in place of the
	// default style. It is read on every render.
	Stylesheet string

	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewHTMLEngine returns an engine with GitHub-flavoured extensions and the
// user-generated-content sanitising policy.
func NewHTMLEngine() *HTMLEngine {
	return &HTMLEngine{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

func (e *HTMLEngine) Format() Format { return HTML }
func (e *HTMLEngine) Name() string   { return "goldmark" }

// Render returns a standalone HTML page for src.
func (e *HTMLEngine) Render(src Source) ([]byte, error) {
	var body bytes.Buffer
	if err := e.md.Convert(src.Body, &body); err != nil {
		return nil, failure.Engine(failure.CodeEngineFailed, "render markdown").
			With("doc", src.Doc).Wrap(err)
	}
	style := defaultStyle
	if e.Stylesheet != "" {
		b, err := os.ReadFile(e.Stylesheet)
		if err != nil {
			return nil, badTemplate(HTML, e.Stylesheet, err)
		}
		style = string(b)
	}
	var out bytes.Buffer
	err := pageTemplate.Execute(&out, struct {
		Title, Author, Date string
		Style               template.CSS
		Content             template.HTML
	}{
		Style:   template.CSS(style),
		Title:   src.Title(),
		Author:  src.Meta.String("author"),
		Date:    src.Meta.String("date"),
		Content: template.HTML(e.policy.SanitizeBytes(body.Bytes())),
	})
	if err != nil {
		return nil, failure.Engine(failure.CodeEngineFailed, "render page").
			With("doc", src.Doc).Wrap(err)
	}
	return out.Bytes(), nil
}

func (e *HTMLEngine) Convert(ctx context.Context, src Source, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := e.Render(src)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
