package mcp

import (
	"context"

	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/snapshot"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) snapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "snapshot", func(ctx context.Context) (any, error) {
		return h.svc.Snapshot(ctx, getString(req, "doc", ""))
	})
}

func (h *handlers) history(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "history", func(ctx context.Context) (any, error) {
		entries, err := h.svc.History(ctx, getString(req, "doc", ""))
		if entries == nil {
			entries = []snapshot.Entry{}
		}
		return map[string]any{"versions": entries}, err
	})
}

func (h *handlers) diff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "diff", func(ctx context.Context) (any, error) {
		return h.svc.Diff(ctx, getString(req, "doc", ""), diff.Options{
			Version1: getInt(req, "version1", 0),
			Version2: getInt(req, "version2", 0),
		})
	})
}

func (h *handlers) restore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "restore", func(ctx context.Context) (any, error) {
		doc, v := getString(req, "doc", ""), getInt(req, "version", 0)
		err := h.svc.Restore(ctx, doc, v)
		return map[string]any{"doc": doc, "restored": v}, err
	})
}

func (h *handlers) verify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "verify", func(ctx context.Context) (any, error) {
		doc, v := getString(req, "doc", ""), getInt(req, "version", 0)
		err := h.svc.Verify(ctx, doc, v)
		return map[string]any{"doc": doc, "version": v, "ok": err == nil}, err
	})
}

func (h *handlers) prune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "prune", func(ctx context.Context) (any, error) {
		removed, err := h.svc.Prune(ctx, getString(req, "doc", ""), getInt(req, "keep", 0))
		if removed == nil {
			removed = []snapshot.Entry{}
		}
		return map[string]any{"removed": removed}, err
	})
}
