// Package importer turns existing markdown and HTML files into quill
// documents. Headings gain markers, HTML is converted to markdown, and a
// metadata block is added when the source has none.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/progress"
)

// DefaultAuthor is used when neither the source nor the options name one.
const DefaultAuthor = "unknown"

// Writer stores a prepared document.
type Writer interface {
	Put(ctx context.Context, doc string, content []byte, overwrite bool) error
}

// Options configures an import operation.
type Options struct {
	Prefix    string // Target id prefix
	Flat      bool   // Drop source directories from ids
	Hidden    bool   // Include hidden files/directories
	DryRun    bool   // Report what would be imported without writing
	Overwrite bool   // Replace documents that already exist
	Author    string // Author for sources without metadata
	Now       func() time.Time
}

// File is the outcome for one source file.
type File struct {
	Source  string `json:"source"`
	Doc     string `json:"doc"`
	Markers int    `json:"markers"`
}

// Result contains the outcome of an import operation.
type Result struct {
	Imported int    `json:"imported"`
	Files    []File `json:"files"`
}

// Supported reports whether name has an importable extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

func isHTML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}

// Run imports src, a file or a directory tree, through w. Directories are
// walked through os.Root so symlinks cannot escape the source.
func Run(ctx context.Context, out io.Writer, w Writer, src string, opts Options) (Result, error) {
	var result Result

	info, err := os.Stat(src)
	if err != nil {
		return result, failure.IO(failure.CodeRead, "stat import source").With("path", src).Wrap(err)
	}

	if !info.IsDir() {
		if !Supported(src) {
			return result, failure.Validation(failure.CodeInvalidContent, "unsupported import file").
				With("path", src).
				Suggest("import .md, .markdown, .html or .htm files")
		}
		b, err := os.ReadFile(src)
		if err != nil {
			return result, failure.IO(failure.CodeRead, "read import source").With("path", src).Wrap(err)
		}
		f, err := importOne(ctx, out, w, src, filepath.Base(src), b, opts)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, f)
		if !opts.DryRun {
			result.Imported = 1
		}
		return result, nil
	}

	root, err := os.OpenRoot(src)
	if err != nil {
		return result, failure.IO(failure.CodeRead, "open import source").With("path", src).Wrap(err)
	}
	defer root.Close()

	files, err := scanRoot(root, "", opts.Hidden)
	if err != nil {
		return result, failure.IO(failure.CodeRead, "scan import source").With("path", src).Wrap(err)
	}
	if len(files) == 0 {
		return result, nil
	}

	prog := progress.New("Importing", len(files))
	defer prog.Done()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return result, failure.From(err)
		}
		b, err := root.ReadFile(rel)
		if err != nil {
			return result, failure.IO(failure.CodeRead, "read import source").With("path", rel).Wrap(err)
		}
		f, err := importOne(ctx, out, w, filepath.Join(src, rel), rel, b, opts)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, f)
		if !opts.DryRun {
			result.Imported++
		}
		prog.Increment()
		prog.Print()
	}

	return result, nil
}

func importOne(ctx context.Context, out io.Writer, w Writer, src, rel string, b []byte, opts Options) (File, error) {
	doc := DocID(rel, opts.Prefix, opts.Flat)
	content, n, err := Prepare(rel, b, opts)
	if err != nil {
		if fe, ok := failure.As(err); ok {
			return File{}, fe.With("path", src)
		}
		return File{}, err
	}
	f := File{Source: src, Doc: doc, Markers: n}

	if opts.DryRun {
		fmt.Fprintf(out, "Would import: %s -> %s\n", src, doc)
		return f, nil
	}
	if err := w.Put(ctx, doc, content, opts.Overwrite); err != nil {
		return File{}, err
	}
	fmt.Fprintf(out, "Imported: %s -> %s\n", src, doc)
	return f, nil
}

// Prepare converts the source bytes of name into document content and
// returns the number of markers it added.
func Prepare(name string, b []byte, opts Options) ([]byte, int, error) {
	if isHTML(name) {
		md, err := FromHTML(b)
		if err != nil {
			return nil, 0, err
		}
		b = md
	}
	b = normaliseEOL(b)

	d, err := marker.Parse(b)
	if err != nil {
		// Unmarked input cannot carry bad markers, so only a broken
		// metadata block lands here.
		return nil, 0, err
	}
	if d.Front == nil {
		b = append(marker.EncodeFront(defaultMeta(name, b, opts)), b...)
	}

	out, n := marker.Annotate(b)
	return out, n, nil
}

var converter = htmltomd.NewConverter(
	htmltomd.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// FromHTML converts an HTML page to markdown.
func FromHTML(b []byte) ([]byte, error) {
	md, err := converter.ConvertString(string(b))
	if err != nil {
		return nil, failure.Validation(failure.CodeInvalidContent, "convert html").Wrap(err)
	}
	if !strings.HasSuffix(md, "\n") {
		md += "\n"
	}
	return []byte(md), nil
}

var titleRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)

func defaultMeta(name string, b []byte, opts Options) marker.Metadata {
	title := ""
	if m := titleRe.FindSubmatch(b); m != nil {
		title = string(m[1])
	}
	if title == "" {
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		title = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	}

	author := opts.Author
	if author == "" {
		author = DefaultAuthor
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return marker.NewMetadata(title, author, now())
}

func normaliseEOL(b []byte) []byte {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return []byte(s)
}

// scanRoot recursively finds importable files within an os.Root.
// Returns relative paths from the root.
func scanRoot(root *os.Root, dir string, includeHidden bool) ([]string, error) {
	var files []string

	path := dir
	if path == "" {
		path = "."
	}

	f, err := root.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()

		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		rel := name
		if dir != "" {
			rel = filepath.Join(dir, name)
		}

		if entry.IsDir() {
			sub, err := scanRoot(root, rel, includeHidden)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		} else if Supported(name) {
			files = append(files, rel)
		}
	}

	return files, nil
}

// DocID derives the document id for a source path relative to the import
// root.
func DocID(rel, prefix string, flat bool) string {
	id := strings.TrimSuffix(rel, filepath.Ext(rel))
	id = filepath.ToSlash(id)

	if flat {
		id = filepath.Base(id)
	}

	if prefix != "" {
		id = strings.TrimSuffix(prefix, "/") + "/" + id
	}

	return id
}
