package edit

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/sed"
	"github.com/mark3labs/mcp-go/mcp"
)

func sedTool() extension.MCPTool {
	return extension.MCPTool{
		Tool: mcp.NewTool("quill_sed",
			mcp.WithDescription("Apply a sed-style substitution (s/old/new/flags) to a document. Flags: g every match, i ignore case, r regular expression. Headings, markers and metadata are never changed."),
			mcp.WithString("doc", mcp.Required(), mcp.Description("Document id")),
			mcp.WithString("expr", mcp.Required(), mcp.Description("Substitution, e.g. s/draft/final/g")),
			mcp.WithString("author", mcp.Description("Lock owner for the edit")),
		),
		Handler: handleSed,
	}
}

func handleSed(ctx context.Context, extCtx extension.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("doc")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := sed.Run(ctx, io.Discard, extCtx.Service(), doc, expr)
	log.Event("mcp:quill_sed", "replace").Doc(doc).Detail("expr", expr).Write(err)
	if err != nil {
		data, _ := json.MarshalIndent(map[string]any{"error": failure.From(err)}, "", "  ")
		return mcp.NewToolResultError(string(data)), nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
