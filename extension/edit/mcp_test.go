package edit

import (
	"context"
	"testing"

	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContext(t *testing.T) extension.Context {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, document.Init(root, false))
	svc, err := document.Open(root, nil, document.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "notes", marker.Metadata{"title": "N", "author": "a", "date": "2024-01-01"}))
	require.NoError(t, svc.Append(ctx, "notes", "Intro", "draft one, draft two", section.AppendOptions{}))
	return extension.NewContext(svc, nil)
}

func sedRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = "quill_sed"
	req.Params.Arguments = args
	return req
}

func TestHandleSed(t *testing.T) {
	extCtx := setupContext(t)
	ctx := context.Background()

	res, err := handleSed(ctx, extCtx, sedRequest(map[string]any{"doc": "notes", "expr": "s/draft/final/g"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	got, err := extCtx.Service().Get(ctx, "notes", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "final one, final two", got)

	res, err = handleSed(ctx, extCtx, sedRequest(map[string]any{"doc": "notes", "expr": "s/zebra/x/"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = handleSed(ctx, extCtx, sedRequest(map[string]any{"doc": "notes"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSedToolDeclared(t *testing.T) {
	tools := (&Extension{}).MCPTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "quill_sed", tools[0].Tool.Name)
}
