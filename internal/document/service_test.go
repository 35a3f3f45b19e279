package document_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/recovery"
	"github.com/jpl-au/quill/internal/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupService creates a service over a fresh workspace. The recovery sink
// is silenced and only the in-process engines are installed.
func setupService(t *testing.T, settings ...string) *document.Service {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, document.Init(root, false))

	cfg := &config.Config{}
	require.NoError(t, cfg.Set("lock.retries", "2"))
	require.NoError(t, cfg.Set("lock.retry_delay", "10ms"))
	for i := 0; i+1 < len(settings); i += 2 {
		require.NoError(t, cfg.Set(settings[i], settings[i+1]))
	}

	rec := recovery.New(nil)
	rec.Sink = nil
	rec.RetryDelay = time.Millisecond

	svc, err := document.Open(root, cfg, document.Options{
		Engines:  []convert.Engine{convert.MarkdownEngine{}, convert.NewHTMLEngine()},
		Recovery: rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func meta() marker.Metadata {
	return marker.Metadata{"title": "Q3", "author": "ada", "date": "2024-11-20"}
}

func TestService_Scenario(t *testing.T) {
	svc := setupService(t)
	ctx := section.WithOwner(context.Background(), "agent-1")

	require.NoError(t, svc.Create(ctx, "reports/q3", meta()))
	require.NoError(t, svc.Append(ctx, "reports/q3", "Intro", "Hello", section.AppendOptions{}))
	require.NoError(t, svc.Append(ctx, "reports/q3", "Body", "Text", section.AppendOptions{}))

	got, err := svc.Get(ctx, "reports/q3", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)

	ok, err := svc.Exists(ctx, "reports/q3", "Body")
	require.NoError(t, err)
	assert.True(t, ok)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, title := range []string{"Intro", "Body"} {
		wg.Go(func() {
			errs[i] = svc.Edit(section.WithOwner(ctx, "agent-"+title), "reports/q3", title, "edited "+title)
		})
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	infos, err := svc.List(ctx, "reports/q3")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		got, err := svc.Get(ctx, "reports/q3", info.Title)
		require.NoError(t, err)
		assert.Equal(t, "edited "+info.Title, got)
	}

	locks, err := svc.Locks(ctx, "reports/q3")
	require.NoError(t, err)
	assert.Empty(t, locks, "every lock is released")
}

func TestService_CreateExisting(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))

	err := svc.Create(ctx, "d", meta())
	assert.ErrorIs(t, err, section.ErrExists)
	assert.Equal(t, failure.KindValidation, failure.KindOf(err))
}

func TestService_StaleLockRecovered(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))
	require.NoError(t, svc.Append(ctx, "d", "A", "a", section.AppendOptions{}))

	// A crashed holder left a document lock with a heartbeat far in the past.
	reg := lock.New(svc.Root())
	reg.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := reg.Acquire(ctx, "d", lock.Document, "crashed", lock.Options{TTL: time.Second})
	require.NoError(t, err)

	require.NoError(t, svc.Edit(ctx, "d", "A", "b"))
	got, err := svc.Get(ctx, "d", "A")
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestService_LiveLockTimesOut(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))
	require.NoError(t, svc.Append(ctx, "d", "A", "a", section.AppendOptions{}))

	l, err := lock.New(svc.Root()).Acquire(ctx, "d", "A", "other", lock.Options{})
	require.NoError(t, err)
	defer l.Release(ctx)

	err = svc.Edit(ctx, "d", "A", "b")
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.Equal(t, failure.CodeLockTimeout, failure.CodeOf(err))

	assert.ErrorIs(t, svc.ForceRelease(ctx, "d", "A"), lock.ErrActive)
}

func TestService_SnapshotStampsVersion(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	m := meta()
	m[marker.KeyVersion] = 1
	require.NoError(t, svc.Create(ctx, "d", m))
	require.NoError(t, svc.Append(ctx, "d", "A", "v1", section.AppendOptions{}))

	e, err := svc.Snapshot(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Version)

	got, err := svc.Metadata(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version())

	require.NoError(t, svc.Edit(ctx, "d", "A", "v2"))
	e, err = svc.Snapshot(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Version)

	hist, err := svc.History(ctx, "d")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.NoError(t, svc.Verify(ctx, "d", 2))
}

func TestService_RestoreAndDiff(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))
	require.NoError(t, svc.Append(ctx, "d", "A", "first", section.AppendOptions{}))
	e, err := svc.Snapshot(ctx, "d")
	require.NoError(t, err)

	require.NoError(t, svc.Edit(ctx, "d", "A", "second"))
	res, err := svc.Diff(ctx, "d", diff.Options{Version1: e.Version})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Contains(t, res.Diff, "second")

	require.NoError(t, svc.Restore(ctx, "d", e.Version))
	got, err := svc.Get(ctx, "d", "A")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	assert.Error(t, svc.Restore(ctx, "d", 0))
	assert.Error(t, svc.Restore(ctx, "d", 99))
}

func TestService_PruneUsesConfiguredKeep(t *testing.T) {
	svc := setupService(t, "versions.keep", "2")
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))
	for i := range 4 {
		require.NoError(t, svc.SetMetadata(ctx, "d", marker.KeyStatus, []string{"draft", "review", "final", "draft"}[i]))
		_, err := svc.Snapshot(ctx, "d")
		require.NoError(t, err)
	}

	removed, err := svc.Prune(ctx, "d", 0)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	hist, err := svc.History(ctx, "d")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 3, hist[0].Version)
}

func TestService_ConvertMarkdownAndHTML(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "reports/q3", meta()))
	require.NoError(t, svc.Append(ctx, "reports/q3", "Intro", "Hello **world**", section.AppendOptions{}))

	task, err := svc.Convert(ctx, convert.Request{Doc: "reports/q3", Target: convert.HTML})
	require.NoError(t, err)
	assert.Equal(t, convert.Succeeded, task.State)

	b, err := os.ReadFile(task.Output)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<strong>world</strong>")
	assert.NotContains(t, string(b), "Section:")
	assert.Equal(t, svc.OutputPath("reports/q3", convert.HTML), task.Output)

	tasks, err := svc.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	got, err := svc.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = svc.Task(ctx, "nope")
	assert.ErrorIs(t, err, convert.ErrUnknownTask)
}

func TestService_ConvertFallsBackWithoutEngine(t *testing.T) {
	// No PDF engine is installed, so pdf falls back along its chain.
	svc := setupService(t, "convert.fallback.pdf", "md")
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "d", meta()))
	require.NoError(t, svc.Append(ctx, "d", "A", "a", section.AppendOptions{}))

	task, err := svc.Convert(ctx, convert.Request{Doc: "d", Target: convert.PDF})
	require.NoError(t, err)
	assert.Equal(t, convert.FallbackSucceeded, task.State)
	assert.Equal(t, convert.Markdown, task.Format)

	entries, err := os.ReadDir(filepath.Join(svc.Root(), ".quill", "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "staging is cleaned")
}

func TestService_Documents(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	for _, d := range []string{"a", "docs/b", "docs/sub/c"} {
		require.NoError(t, svc.Create(ctx, d, meta()))
	}
	_, err := svc.Snapshot(ctx, "a")
	require.NoError(t, err)
	_, err = svc.Convert(ctx, convert.Request{Doc: "a", Target: convert.Markdown})
	require.NoError(t, err)

	all, err := svc.Documents(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "docs/b", "docs/sub/c"}, all)

	docs, err := svc.Documents(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/b", "docs/sub/c"}, docs)
}

func TestService_SweepAll(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "a", meta()))
	require.NoError(t, svc.Create(ctx, "b", meta()))

	reg := lock.New(svc.Root())
	reg.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	for _, d := range []string{"a", "b"} {
		_, err := reg.Acquire(ctx, d, lock.Document, "crashed", lock.Options{TTL: time.Second})
		require.NoError(t, err)
	}

	swept, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, swept, 2)
}

func TestService_PutAndLint(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	content := "---\ntitle: T\nauthor: A\ndate: 2024-11-20\n---\n## A\n<!-- Section: A -->\n#### Deep\n"
	require.NoError(t, svc.Put(ctx, "d", []byte(content), false))

	res, err := svc.Lint(ctx, "d")
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors())
	var rules []string
	for _, i := range res.Issues {
		rules = append(rules, i.Rule)
	}
	assert.Contains(t, strings.Join(rules, ","), "marker")
}

func TestChains(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, cfg.Set("convert.fallback.docx", "md"))
	chains, err := document.Chains(cfg)
	require.NoError(t, err)
	assert.Equal(t, []convert.Format{convert.Markdown}, chains[convert.DOCX])
	assert.Equal(t, convert.DefaultChains()[convert.PDF], chains[convert.PDF])
}
