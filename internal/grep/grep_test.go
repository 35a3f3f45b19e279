package grep_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/grep"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupService creates a workspace holding two documents.
func setupService(t *testing.T) *document.Service {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, document.Init(root, false))
	svc, err := document.Open(root, nil, document.Options{
		Engines: []convert.Engine{convert.MarkdownEngine{}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ctx := context.Background()
	meta := marker.Metadata{"title": "TODO list", "author": "ada", "date": "2024-11-20"}
	require.NoError(t, svc.Create(ctx, "reports/q3", meta))
	require.NoError(t, svc.Append(ctx, "reports/q3", "Intro", "hello world\nsecond line", section.AppendOptions{}))
	require.NoError(t, svc.Append(ctx, "reports/q3", "Risks", "TODO: staffing\nbudget", section.AppendOptions{}))
	require.NoError(t, svc.Create(ctx, "notes/ideas", meta))
	require.NoError(t, svc.Append(ctx, "notes/ideas", "Backlog", "todo: more tests", section.AppendOptions{}))
	return svc
}

func TestRun_ReportsSection(t *testing.T) {
	svc := setupService(t)

	var buf bytes.Buffer
	result, err := grep.Run(context.Background(), &buf, svc, "hello", grep.Options{})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "reports/q3", result.Hits[0].Doc)
	require.Len(t, result.Hits[0].Matches, 1)

	m := result.Hits[0].Matches[0]
	assert.Equal(t, "Intro", m.Section)
	assert.Equal(t, "hello world", m.Content)
	assert.Equal(t, 8, m.Line, "five metadata lines, heading and marker come first")
	assert.Equal(t, "reports/q3:8:hello world\n", buf.String())
}

func TestRun_SkipsMetadataAndMarkers(t *testing.T) {
	svc := setupService(t)

	result, err := grep.Run(context.Background(), &bytes.Buffer{}, svc, "Section:|author", grep.Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Hits)

	// The title key only appears in metadata.
	result, err = grep.Run(context.Background(), &bytes.Buffer{}, svc, "TODO list", grep.Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestRun_IgnoreCaseAndCount(t *testing.T) {
	svc := setupService(t)

	var buf bytes.Buffer
	result, err := grep.Run(context.Background(), &buf, svc, "todo", grep.Options{IgnoreCase: true, CountOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, "notes/ideas:1\nreports/q3:1\n", buf.String())
}

func TestRun_ScopeFilters(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	result, err := grep.Run(ctx, &bytes.Buffer{}, svc, "(?i)todo", grep.Options{Prefix: "reports"})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "reports/q3", result.Hits[0].Doc)

	result, err = grep.Run(ctx, &bytes.Buffer{}, svc, "(?i)todo", grep.Options{Glob: "**/ideas"})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "notes/ideas", result.Hits[0].Doc)

	result, err = grep.Run(ctx, &bytes.Buffer{}, svc, "line", grep.Options{Section: "Risks"})
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestRun_PathsOnly(t *testing.T) {
	svc := setupService(t)

	var buf bytes.Buffer
	_, err := grep.Run(context.Background(), &buf, svc, "(?i)todo", grep.Options{PathsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "notes/ideas\nreports/q3\n", buf.String())
}

func TestRun_Context(t *testing.T) {
	svc := setupService(t)

	var buf bytes.Buffer
	_, err := grep.Run(context.Background(), &buf, svc, "second", grep.Options{Prefix: "reports", Context: 1})
	require.NoError(t, err)
	assert.Equal(t, "reports/q3-8-hello world\nreports/q3:9:second line\nreports/q3-10-## Risks\n", buf.String())
}

func TestRun_InvalidPattern(t *testing.T) {
	svc := setupService(t)

	_, err := grep.Run(context.Background(), &bytes.Buffer{}, svc, "(", grep.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrValidation)
}
