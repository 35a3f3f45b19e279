package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// DOCXEngine builds a Word document from the markdown AST.
type DOCXEngine struct {
	// Reference is a .docx whose styles, numbering and page setup the
	// output inherits. Its body content is discarded.
	Reference string
}

func (DOCXEngine) Format() Format { return DOCX }
func (DOCXEngine) Name() string   { return "go-docx" }

func (e DOCXEngine) Convert(ctx context.Context, src Source, w io.Writer) error {
	doc, tail, err := e.document()
	if err != nil {
		return err
	}
	root := goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser().Parse(text.NewReader(src.Body))

	b := &docxBuilder{doc: doc, src: src.Body}
	b.para("Title", src.Title())
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.block(n, "")
	}
	// Section properties close the body.
	doc.Document.Body.Items = append(doc.Document.Body.Items, tail...)
	_, err = doc.WriteTo(w)
	return err
}

// document returns the docx to build into and the section properties to
// append after the content. The reference is read into memory because the
// parsed archive keeps reading its parts until WriteTo.
func (e DOCXEngine) document() (*docx.Docx, []any, error) {
	if e.Reference == "" {
		return docx.New().WithDefaultTheme(), nil, nil
	}
	raw, err := os.ReadFile(e.Reference)
	if err != nil {
		return nil, nil, badTemplate(DOCX, e.Reference, err)
	}
	doc, err := docx.Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, nil, badTemplate(DOCX, e.Reference, err)
	}
	var tail []any
	for _, item := range doc.Document.Body.Items {
		if sp, ok := item.(*docx.SectPr); ok {
			tail = append(tail, sp)
		}
	}
	doc.Document.Body.Items = nil
	return doc, tail, nil
}

// Verify reparses the archive and checks it has a body.
func (DOCXEngine) Verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	d, err := docx.Parse(f, info.Size())
	if err != nil {
		return fmt.Errorf("parse docx: %w", err)
	}
	if len(d.Document.Body.Items) == 0 {
		return fmt.Errorf("docx has an empty body")
	}
	return nil
}

type docxBuilder struct {
	doc *docx.Docx
	src []byte
}

func (b *docxBuilder) para(style, s string) {
	p := b.doc.AddParagraph()
	if style != "" {
		p.Properties = &docx.ParagraphProperties{Style: &docx.Style{Val: style}}
	}
	p.AddText(s)
}

func (b *docxBuilder) block(n ast.Node, prefix string) {
	switch node := n.(type) {
	case *ast.Heading:
		b.para("Heading"+strconv.Itoa(node.Level), b.inline(n))
	case *ast.Paragraph, *ast.TextBlock:
		b.para("", prefix+b.inline(n))
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.para("", strings.TrimRight(string(seg.Value(b.src)), "\n"))
		}
	case *ast.List:
		i := node.Start
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			bullet := "• "
			if node.IsOrdered() {
				bullet = strconv.Itoa(i) + ". "
				i++
			}
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				b.block(c, prefix+bullet)
				bullet = strings.Repeat(" ", len(bullet))
			}
		}
	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			b.block(c, prefix+"> ")
		}
	case *east.Table:
		for row := n.FirstChild(); row != nil; row = row.NextSibling() {
			var cells []string
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, b.inline(cell))
			}
			b.para("", strings.Join(cells, " | "))
		}
	case *ast.ThematicBreak, *ast.HTMLBlock:
	default:
		if s := b.inline(n); s != "" {
			b.para("", prefix+s)
		}
	}
}

// inline flattens the text content beneath n.
func (b *docxBuilder) inline(n ast.Node) string {
	var out bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			out.Write(t.Segment.Value(b.src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				out.WriteByte(' ')
			}
		case *ast.String:
			out.Write(t.Value)
		case *ast.AutoLink:
			out.Write(t.URL(b.src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(out.String())
}
