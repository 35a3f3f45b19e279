package sed_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/sed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeReplacer adapts a section store to sed.Replacer.
type storeReplacer struct{ *section.Store }

func (r storeReplacer) Replace(ctx context.Context, doc, pattern, replacement string, opts section.ReplaceOptions) (section.ReplaceResult, error) {
	return r.SearchAndReplace(ctx, doc, pattern, replacement, opts)
}

// setupStore creates a store holding docs/readme with two sections.
func setupStore(t *testing.T) storeReplacer {
	t.Helper()
	root := t.TempDir()
	s := section.New(root, lock.New(root), section.DefaultLimits())
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "docs/readme", marker.Metadata{"title": "R", "author": "a", "date": "2024-01-01"}))
	require.NoError(t, s.Append(ctx, "docs/readme", "Intro", "hello world, hello again", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "docs/readme", "Outro", "Hello there", section.AppendOptions{}))
	return storeReplacer{s}
}

func TestRun_FirstMatchPerSection(t *testing.T) {
	r := setupStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	result, err := sed.Run(ctx, &buf, r, "docs/readme", "s/hello/goodbye/")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme", result.Doc)
	assert.Equal(t, 1, result.Count)
	assert.Contains(t, buf.String(), "Edited docs/readme")

	got, err := r.Get(ctx, "docs/readme", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "goodbye world, hello again", got)

	got, err = r.Get(ctx, "docs/readme", "Outro")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got, "matching is case-sensitive without i")
}

func TestRun_GlobalIgnoreCase(t *testing.T) {
	r := setupStore(t)
	ctx := context.Background()

	result, err := sed.Run(ctx, &bytes.Buffer{}, r, "docs/readme", "s/hello/bye/gi")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, []string{"Intro", "Outro"}, result.Sections)

	got, _ := r.Get(ctx, "docs/readme", "Outro")
	assert.Equal(t, "bye there", got)
}

func TestRun_Regexp(t *testing.T) {
	r := setupStore(t)
	ctx := context.Background()

	_, err := sed.Run(ctx, &bytes.Buffer{}, r, "docs/readme", `s/(\w+) world/[$1]/r`)
	require.NoError(t, err)
	got, _ := r.Get(ctx, "docs/readme", "Intro")
	assert.Equal(t, "[hello], hello again", got)
}

func TestRun_NotFound(t *testing.T) {
	r := setupStore(t)
	_, err := sed.Run(context.Background(), &bytes.Buffer{}, r, "docs/readme", "s/zebra/x/g")
	assert.ErrorIs(t, err, sed.ErrTextNotFound)
}

func TestRun_RefusesStructuralChange(t *testing.T) {
	r := setupStore(t)
	_, err := sed.Run(context.Background(), &bytes.Buffer{}, r, "docs/readme", "s/hello world/# New/")
	require.Error(t, err)
	assert.NotErrorIs(t, err, sed.ErrTextNotFound)
}

func TestRun_InvalidExpr(t *testing.T) {
	r := setupStore(t)
	_, err := sed.Run(context.Background(), &bytes.Buffer{}, r, "docs/readme", "d/x/")
	assert.ErrorIs(t, err, sed.ErrUnsupportedCommand)
}

func TestParseExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    sed.Expr
		wantErr bool
	}{
		{
			name: "simple substitution",
			expr: "s/old/new/",
			want: sed.Expr{Old: "old", New: "new"},
		},
		{
			name: "all flags",
			expr: "s/old/new/gir",
			want: sed.Expr{Old: "old", New: "new", Global: true, IgnoreCase: true, Regexp: true},
		},
		{
			name: "alternate delimiter",
			expr: "s|a/b|c/d|",
			want: sed.Expr{Old: "a/b", New: "c/d"},
		},
		{
			name: "escaped delimiter",
			expr: `s/a\/b/c/`,
			want: sed.Expr{Old: "a/b", New: "c"},
		},
		{
			name: "regexp escapes survive",
			expr: `s/\d+/N/r`,
			want: sed.Expr{Old: `\d+`, New: "N", Regexp: true},
		},
		{
			name: "empty replacement",
			expr: "s/delete//",
			want: sed.Expr{Old: "delete"},
		},
		{name: "invalid command", expr: "d/old/new/", wantErr: true},
		{name: "too short", expr: "s//", wantErr: true},
		{name: "unterminated", expr: "s/old/new", wantErr: true},
		{name: "empty pattern", expr: "s//new/", wantErr: true},
		{name: "unknown flag", expr: "s/a/b/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sed.ParseExpr(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_Options(t *testing.T) {
	opts := sed.Expr{Old: "a"}.Options()
	assert.True(t, opts.CaseSensitive)
	assert.True(t, opts.First)
	assert.False(t, opts.Regexp)
}
