package mcp

import (
	"context"

	"github.com/jpl-au/quill/internal/lock"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) listLocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "locks", func(ctx context.Context) (any, error) {
		recs, err := h.svc.Locks(ctx, getString(req, "doc", ""))
		if recs == nil {
			recs = []lock.Record{}
		}
		return map[string]any{"locks": recs}, err
	})
}

func (h *handlers) releaseLock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "release", func(ctx context.Context) (any, error) {
		doc, scope := getString(req, "doc", ""), getString(req, "scope", lock.Document)
		err := h.svc.ForceRelease(ctx, doc, scope)
		return map[string]string{"doc": doc, "released": scope}, err
	})
}

func (h *handlers) sweepLocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "sweep", func(ctx context.Context) (any, error) {
		recs, err := h.svc.Sweep(ctx, getStrings(req, "docs")...)
		if recs == nil {
			recs = []lock.Record{}
		}
		return map[string]any{"removed": recs}, err
	})
}
