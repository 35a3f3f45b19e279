package convert_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/recovery"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/jpl-au/quill/internal/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine records the documents it converts. It blocks on gate (when
// set) for the documents listed in hold.
type fakeEngine struct {
	format convert.Format
	err    error
	gate   chan struct{}
	hold   map[string]bool

	mu      sync.Mutex
	order   []string
	started chan string
}

func (e *fakeEngine) Format() convert.Format { return e.format }
func (e *fakeEngine) Name() string           { return "fake-" + string(e.format) }

func (e *fakeEngine) Convert(ctx context.Context, src convert.Source, w io.Writer) error {
	e.mu.Lock()
	e.order = append(e.order, src.Doc)
	e.mu.Unlock()
	if e.started != nil {
		e.started <- src.Doc
	}
	if e.gate != nil && (e.hold == nil || e.hold[src.Doc]) {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		return err
	}
	return e.err
}

func (e *fakeEngine) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func setupPipeline(t *testing.T, cfg convert.Config, engines ...convert.Engine) (*convert.Pipeline, *section.Store) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, repo.Init(root, false))

	locks := lock.New(root)
	locks.Retries = 0
	store := section.New(root, locks, section.DefaultLimits())
	rec := recovery.New(locks)
	rec.RetryDelay = time.Millisecond
	rec.Sink = nil

	p := convert.New(store, rec, engines, cfg)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, store
}

func createDoc(t *testing.T, store *section.Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, id, marker.Metadata{
		"title": "Quarterly", "author": "A", "date": "2024-11-20",
	}))
	require.NoError(t, store.Append(ctx, id, "Intro", "Hello *world*.\n\n<script>alert(1)</script>", section.AppendOptions{}))
}

func partials(t *testing.T, store *section.Store) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(repo.Staging(store.Root()), "*.part"))
	require.NoError(t, err)
	return m
}

func assertUnlocked(t *testing.T, store *section.Store, doc string) {
	t.Helper()
	recs, err := store.Locks().List(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]convert.Format{
		"md": convert.Markdown, "Markdown": convert.Markdown, ".html": convert.HTML,
		"pdf": convert.PDF, "word": convert.DOCX, "tex": convert.LaTeX,
	} {
		got, err := convert.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := convert.ParseFormat("rtf")
	assert.ErrorIs(t, err, failure.ErrValidation)
	assert.Equal(t, "tex", convert.LaTeX.Ext())
}

func TestFormats(t *testing.T) {
	p, _ := setupPipeline(t, convert.Config{})
	assert.Equal(t, []convert.Format{convert.PDF, convert.HTML, convert.Markdown},
		p.Formats(convert.Request{Target: convert.PDF}))
	assert.Equal(t, []convert.Format{convert.PDF},
		p.Formats(convert.Request{Target: convert.PDF, NoFallback: true}))
	assert.Equal(t, []convert.Format{convert.DOCX, convert.Markdown},
		p.Formats(convert.Request{Target: convert.DOCX, Fallback: []convert.Format{convert.Markdown, convert.DOCX}}))
	assert.Equal(t, []convert.Format{convert.Markdown},
		p.Formats(convert.Request{Target: convert.Markdown}))
}

func TestConvert_Markdown(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.MarkdownEngine{})
	createDoc(t, store, "reports/q3")

	task, err := p.Convert(ctx, convert.Request{Doc: "reports/q3", Target: convert.Markdown})
	require.NoError(t, err)
	assert.Equal(t, convert.Succeeded, task.State)
	assert.Equal(t, convert.Markdown, task.Format)
	assert.Equal(t, p.OutputPath("reports/q3", convert.Markdown), task.Output)

	b, err := os.ReadFile(task.Output)
	require.NoError(t, err)
	assert.Contains(t, string(b), "## Intro\nHello")
	assert.NotContains(t, string(b), "<!--")

	assert.Empty(t, partials(t, store))
	assertUnlocked(t, store, "reports/q3")
}

func TestConvert_HTMLSanitised(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.NewHTMLEngine())
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.HTML})
	require.NoError(t, err)
	b, err := os.ReadFile(task.Output)
	require.NoError(t, err)
	html := string(b)
	assert.Contains(t, html, "<title>Quarterly</title>")
	assert.Contains(t, html, "<em>world</em>")
	assert.NotContains(t, html, "<script>")
}

func TestConvert_DOCX(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.DOCXEngine{})
	createDoc(t, store, "d")
	require.NoError(t, store.Append(ctx, "d", "List", "- one\n- two\n\n```go\nx := 1\n```", section.AppendOptions{}))

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.DOCX})
	require.NoError(t, err)
	assert.Equal(t, convert.Succeeded, task.State)

	b, err := os.ReadFile(task.Output)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(b[:2]))
}

func TestConvert_FallsBack(t *testing.T) {
	ctx := context.Background()
	pdf := &fakeEngine{format: convert.PDF, err: errors.New("chrome crashed")}
	p, store := setupPipeline(t, convert.Config{}, pdf, convert.NewHTMLEngine(), convert.MarkdownEngine{})
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.PDF})
	require.NoError(t, err)
	assert.Equal(t, convert.FallbackSucceeded, task.State)
	assert.Equal(t, convert.HTML, task.Format)
	require.Len(t, task.Attempts, 2)
	assert.Contains(t, task.Attempts[0].Error, "chrome crashed")
	assert.Empty(t, task.Attempts[1].Error)

	assert.NoFileExists(t, p.OutputPath("d", convert.PDF))
	assert.FileExists(t, p.OutputPath("d", convert.HTML))
	assert.Empty(t, partials(t, store))
	assertUnlocked(t, store, "d")
}

func TestConvert_UnavailableEngineFallsBack(t *testing.T) {
	ctx := context.Background()
	h := convert.NewHTMLEngine()
	pdf := &convert.PDFEngine{HTML: h, Chrome: "quill-no-such-browser"}
	p, store := setupPipeline(t, convert.Config{}, pdf, h)
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.PDF})
	require.NoError(t, err)
	assert.Equal(t, convert.FallbackSucceeded, task.State)
	require.NotEmpty(t, task.Attempts)
	assert.Contains(t, task.Attempts[0].Error, failure.CodeEngineUnavailable)
}

func TestConvert_ChainExhausted(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	p, store := setupPipeline(t, convert.Config{},
		&fakeEngine{format: convert.DOCX, err: boom},
		&fakeEngine{format: convert.HTML, err: boom},
		&fakeEngine{format: convert.Markdown, err: boom},
	)
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.DOCX})
	require.Error(t, err)
	assert.Equal(t, convert.Failed, task.State)
	assert.Equal(t, failure.CodeEngineUnavailable, task.Err.Code)
	assert.Len(t, task.Attempts, 3)

	for _, f := range []convert.Format{convert.DOCX, convert.HTML, convert.Markdown} {
		assert.NoFileExists(t, p.OutputPath("d", f))
	}
	assert.Empty(t, partials(t, store))
	assertUnlocked(t, store, "d")
}

func TestConvert_NoFallback(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{},
		&fakeEngine{format: convert.HTML, err: errors.New("boom")},
		convert.MarkdownEngine{},
	)
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.HTML, NoFallback: true})
	require.Error(t, err)
	assert.Equal(t, convert.Failed, task.State)
	assert.Equal(t, failure.CodeEngineFailed, task.Err.Code)
	assert.Len(t, task.Attempts, 1)
}

func TestConvert_OutputExists(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.MarkdownEngine{})
	createDoc(t, store, "d")

	_, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	require.NoError(t, err)

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	require.Error(t, err)
	assert.Equal(t, failure.CodeOutputExists, failure.CodeOf(err))
	assert.Equal(t, convert.Failed, task.State)

	task, err = p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, convert.Succeeded, task.State)
}

func TestConvert_LintFailureBlocks(t *testing.T) {
	ctx := context.Background()
	md := &fakeEngine{format: convert.Markdown}
	p, store := setupPipeline(t, convert.Config{}, md)

	doc := "---\ntitle: T\nauthor: A\ndate: 2024-11-20\n---\n## Intro\n<!-- Section: Intro -->\n```sh\necho\n"
	require.NoError(t, os.WriteFile(store.File("d"), []byte(doc), 0644))

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	require.Error(t, err)
	assert.Equal(t, failure.CodeLintFailed, failure.CodeOf(err))
	assert.Equal(t, convert.Failed, task.State)
	assert.Empty(t, md.calls())
	assertUnlocked(t, store, "d")
}

func TestConvert_LockedDocument(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.MarkdownEngine{})
	createDoc(t, store, "d")

	held, err := store.Locks().Acquire(ctx, "d", "Intro", "editor", lock.Options{})
	require.NoError(t, err)
	defer held.Release(ctx)

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.Equal(t, convert.Failed, task.State)
	assert.Empty(t, task.Attempts)
}

func TestSchedule_PriorityThenFIFO(t *testing.T) {
	ctx := context.Background()
	md := &fakeEngine{
		format:  convert.Markdown,
		gate:    make(chan struct{}),
		hold:    map[string]bool{"a": true},
		started: make(chan string, 8),
	}
	p, store := setupPipeline(t, convert.Config{MaxConcurrent: 1}, md)
	for _, id := range []string{"a", "b", "c", "d"} {
		createDoc(t, store, id)
	}

	first, err := p.Schedule(ctx, convert.Request{Doc: "a", Target: convert.Markdown})
	require.NoError(t, err)
	assert.Equal(t, "a", <-md.started)

	var ids []string
	for _, r := range []convert.Request{
		{Doc: "b", Target: convert.Markdown, Priority: 0},
		{Doc: "c", Target: convert.Markdown, Priority: 5},
		{Doc: "d", Target: convert.Markdown, Priority: 5},
	} {
		task, err := p.Schedule(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, convert.Queued, task.State)
		ids = append(ids, task.ID)
	}

	close(md.gate)
	for _, id := range append([]string{first.ID}, ids...) {
		task, err := p.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, convert.Succeeded, task.State)
	}
	assert.Equal(t, []string{"a", "c", "d", "b"}, md.calls())
}

func TestCancel_Queued(t *testing.T) {
	ctx := context.Background()
	md := &fakeEngine{
		format:  convert.Markdown,
		gate:    make(chan struct{}),
		hold:    map[string]bool{"a": true},
		started: make(chan string, 8),
	}
	p, store := setupPipeline(t, convert.Config{MaxConcurrent: 1}, md)
	createDoc(t, store, "a")
	createDoc(t, store, "b")

	first, err := p.Schedule(ctx, convert.Request{Doc: "a", Target: convert.Markdown})
	require.NoError(t, err)
	<-md.started

	queued, err := p.Schedule(ctx, convert.Request{Doc: "b", Target: convert.Markdown})
	require.NoError(t, err)
	require.NoError(t, p.Cancel(queued.ID))

	got, ok := p.Get(queued.ID)
	require.True(t, ok)
	assert.Equal(t, convert.Cancelled, got.State)

	close(md.gate)
	_, err = p.Wait(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, md.calls())

	assert.ErrorIs(t, p.Cancel("nope"), convert.ErrUnknownTask)
	assert.NoError(t, p.Cancel(queued.ID), "cancelling a finished task is a no-op")
}

func TestCancel_Running(t *testing.T) {
	ctx := context.Background()
	md := &fakeEngine{
		format:  convert.Markdown,
		gate:    make(chan struct{}),
		started: make(chan string, 1),
	}
	p, store := setupPipeline(t, convert.Config{}, md)
	createDoc(t, store, "d")

	task, err := p.Schedule(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	require.NoError(t, err)
	<-md.started
	require.NoError(t, p.Cancel(task.ID))

	task, err = p.Wait(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, convert.Cancelled, task.State)
	assert.Equal(t, failure.CodeCancelled, task.Err.Code)
	assert.NoFileExists(t, p.OutputPath("d", convert.Markdown))
	assert.Empty(t, partials(t, store))
	assertUnlocked(t, store, "d")
}

func TestConvert_AttemptTimeout(t *testing.T) {
	ctx := context.Background()
	slow := &fakeEngine{format: convert.HTML, gate: make(chan struct{})}
	p, store := setupPipeline(t, convert.Config{AttemptTimeout: 20 * time.Millisecond}, slow, convert.MarkdownEngine{})
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.HTML})
	require.NoError(t, err)
	assert.Equal(t, convert.FallbackSucceeded, task.State)
	assert.Contains(t, task.Attempts[0].Error, failure.CodeTimeout)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{}, convert.MarkdownEngine{})
	createDoc(t, store, "d")
	require.NoError(t, p.Close(ctx))

	_, err := p.Schedule(ctx, convert.Request{Doc: "d", Target: convert.Markdown})
	assert.ErrorIs(t, err, convert.ErrClosed)
}

func TestPipeline_ForgetsFinishedTasks(t *testing.T) {
	ctx := context.Background()
	p, store := setupPipeline(t, convert.Config{KeepTasks: 2}, convert.MarkdownEngine{})
	createDoc(t, store, "d")

	var ids []string
	for range 5 {
		task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.Markdown, Overwrite: true})
		require.NoError(t, err)
		assert.Equal(t, convert.Succeeded, task.State)
		ids = append(ids, task.ID)
	}

	tasks := p.List()
	require.Len(t, tasks, 2)
	assert.Equal(t, ids[3], tasks[0].ID)
	assert.Equal(t, ids[4], tasks[1].ID)

	_, ok := p.Get(ids[0])
	assert.False(t, ok)
	_, err := p.Wait(ctx, ids[0])
	assert.ErrorIs(t, err, convert.ErrUnknownTask)
	assert.ErrorIs(t, p.Cancel(ids[0]), convert.ErrUnknownTask)

	got, ok := p.Get(ids[4])
	require.True(t, ok)
	assert.Equal(t, convert.Succeeded, got.State)
}

func TestPipeline_ForgetsCancelledTasks(t *testing.T) {
	ctx := context.Background()
	slow := &fakeEngine{format: convert.HTML, gate: make(chan struct{}), started: make(chan string, 4)}
	p, store := setupPipeline(t, convert.Config{MaxConcurrent: 1, KeepTasks: 1}, slow)
	createDoc(t, store, "a")
	createDoc(t, store, "b")
	createDoc(t, store, "c")

	running, err := p.Schedule(ctx, convert.Request{Doc: "a", Target: convert.HTML, NoFallback: true})
	require.NoError(t, err)
	<-slow.started
	b, err := p.Schedule(ctx, convert.Request{Doc: "b", Target: convert.HTML, NoFallback: true})
	require.NoError(t, err)
	c, err := p.Schedule(ctx, convert.Request{Doc: "c", Target: convert.HTML, NoFallback: true})
	require.NoError(t, err)

	require.NoError(t, p.Cancel(b.ID))
	require.NoError(t, p.Cancel(c.ID))
	_, ok := p.Get(b.ID)
	assert.False(t, ok, "older cancelled task is forgotten")
	got, ok := p.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, convert.Cancelled, got.State)

	_, ok = p.Get(running.ID)
	assert.True(t, ok, "running tasks are never forgotten")
	close(slow.gate)
}

func TestConvert_HTMLStylesheet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	css := filepath.Join(dir, "site.css")
	require.NoError(t, os.WriteFile(css, []byte("body { color: teal; }"), 0644))

	h := convert.NewHTMLEngine()
	h.Stylesheet = css
	p, store := setupPipeline(t, convert.Config{}, h)
	createDoc(t, store, "d")

	task, err := p.Convert(ctx, convert.Request{Doc: "d", Target: convert.HTML})
	require.NoError(t, err)
	b, err := os.ReadFile(task.Output)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<style>\nbody { color: teal; }\n</style>")
	assert.NotContains(t, string(b), "Georgia")

	h.Stylesheet = filepath.Join(dir, "missing.css")
	task, err = p.Convert(ctx, convert.Request{Doc: "d", Target: convert.HTML, NoFallback: true, Overwrite: true})
	require.Error(t, err)
	assert.Equal(t, convert.Failed, task.State)
	require.Len(t, task.Attempts, 1)
	assert.Contains(t, task.Attempts[0].Error, "cannot use html template")
}

func TestDefaultEngines_Templates(t *testing.T) {
	engines := convert.DefaultEngines(convert.EngineOptions{
		PandocArgs: []string{"--toc"},
		Templates: map[convert.Format]string{
			convert.HTML:  "/t/site.css",
			convert.DOCX:  "/t/reference.docx",
			convert.LaTeX: "/t/report.tex",
		},
	})
	byFormat := make(map[convert.Format]convert.Engine)
	for _, e := range engines {
		byFormat[e.Format()] = e
	}
	assert.Equal(t, "/t/site.css", byFormat[convert.HTML].(*convert.HTMLEngine).Stylesheet)
	assert.Equal(t, "/t/site.css", byFormat[convert.PDF].(*convert.PDFEngine).HTML.Stylesheet,
		"pdf inherits the html stylesheet")
	assert.Equal(t, convert.DOCXEngine{Reference: "/t/reference.docx"}, byFormat[convert.DOCX])
	assert.Equal(t, convert.LaTeXEngine{Template: "/t/report.tex", Args: []string{"--toc"}}, byFormat[convert.LaTeX])

	engines = convert.DefaultEngines(convert.EngineOptions{
		Templates: map[convert.Format]string{convert.HTML: "/t/site.css", convert.PDF: "/t/print.css"},
	})
	for _, e := range engines {
		if pdf, ok := e.(*convert.PDFEngine); ok {
			assert.Equal(t, "/t/print.css", pdf.HTML.Stylesheet)
		}
	}
}

func TestDOCXEngine_Reference(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ref := docx.New().WithDefaultTheme()
	ref.AddParagraph().AddText("boilerplate from the reference")
	var buf bytes.Buffer
	_, err := ref.WriteTo(&buf)
	require.NoError(t, err)
	refPath := filepath.Join(dir, "reference.docx")
	require.NoError(t, os.WriteFile(refPath, buf.Bytes(), 0644))

	e := convert.DOCXEngine{Reference: refPath}
	src := convert.Source{Doc: "d", Body: []byte("## Intro\n\nHello world.\n")}
	var out bytes.Buffer
	require.NoError(t, e.Convert(ctx, src, &out))

	outPath := filepath.Join(dir, "out.docx")
	require.NoError(t, os.WriteFile(outPath, out.Bytes(), 0644))
	require.NoError(t, e.Verify(outPath))

	d, err := docx.Parse(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	var text []string
	for _, item := range d.Document.Body.Items {
		if p, ok := item.(*docx.Paragraph); ok {
			text = append(text, p.String())
		}
	}
	joined := strings.Join(text, "\n")
	assert.Contains(t, joined, "Hello world.")
	assert.NotContains(t, joined, "boilerplate from the reference")

	e.Reference = filepath.Join(dir, "missing.docx")
	err = e.Convert(ctx, src, io.Discard)
	require.Error(t, err)
	assert.Equal(t, failure.CodeEngineFailed, failure.CodeOf(err))
}

func TestLaTeXEngine_TemplateAndArgs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script in place of pandoc")
	}
	ctx := context.Background()
	dir := t.TempDir()
	pandoc := filepath.Join(dir, "pandoc")
	require.NoError(t, os.WriteFile(pandoc, []byte("#!/bin/sh\nprintf '%s\\n' \"$@\"\n"), 0755))
	tmpl := filepath.Join(dir, "report.tex")
	require.NoError(t, os.WriteFile(tmpl, []byte("$body$\n"), 0644))

	e := convert.LaTeXEngine{Pandoc: pandoc, Template: tmpl, Args: []string{"--toc"}}
	src := convert.Source{Doc: "d", Body: []byte("# Hi\n")}
	var out bytes.Buffer
	require.NoError(t, e.Convert(ctx, src, &out))
	assert.Contains(t, out.String(), "--standalone\n")
	assert.Contains(t, out.String(), "--template="+tmpl+"\n--toc\n")

	e.Template = filepath.Join(dir, "missing.tex")
	err := e.Convert(ctx, src, io.Discard)
	require.Error(t, err)
	assert.Equal(t, failure.CodeEngineFailed, failure.CodeOf(err))
}
