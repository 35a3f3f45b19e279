package mcp

import (
	"context"
	"io"

	"github.com/jpl-au/quill/internal/grep"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) grepSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "grep", func(ctx context.Context) (any, error) {
		result, err := grep.Run(ctx, io.Discard, h.svc, getString(req, "pattern", ""), grep.Options{
			Prefix:     getString(req, "prefix", ""),
			Glob:       getString(req, "glob", ""),
			Section:    getString(req, "section", ""),
			IgnoreCase: getBool(req, "ignore_case", false),
			Invert:     getBool(req, "invert", false),
		})
		if result.Hits == nil {
			result.Hits = []grep.DocMatch{}
		}
		return result, err
	})
}
