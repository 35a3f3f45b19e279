// tools_util.go provides helpers for MCP tool parameter extraction and
// results.
//
// Extraction is permissive: a missing or mistyped optional parameter yields
// the default instead of a type error the LLM may struggle to interpret.

package mcp

import (
	"context"
	"encoding/json"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/section"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultAuthor attributes read-only calls that name no author.
const defaultAuthor = "mcp"

func args(req mcp.CallToolRequest) map[string]any {
	m, _ := req.Params.Arguments.(map[string]any)
	return m
}

// getString returns a string parameter or def.
func getString(req mcp.CallToolRequest, name, def string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return def
}

// getBool returns a boolean parameter or def. A string "true" is not
// accepted.
func getBool(req mcp.CallToolRequest, name string, def bool) bool {
	if v, ok := args(req)[name].(bool); ok {
		return v
	}
	return def
}

// getInt returns an integer parameter or def. JSON numbers decode as
// float64.
func getInt(req mcp.CallToolRequest, name string, def int) int {
	if v, ok := args(req)[name].(float64); ok {
		return int(v)
	}
	return def
}

// getStrings returns a string array parameter, skipping non-string
// elements. Absent parameters return nil.
func getStrings(req mcp.CallToolRequest, name string) []string {
	arr, ok := args(req)[name].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// getMap returns an object parameter, or nil.
func getMap(req mcp.CallToolRequest, name string) map[string]any {
	m, _ := args(req)[name].(map[string]any)
	return m
}

// author returns the caller's author parameter or the default.
func author(req mcp.CallToolRequest) string {
	return getString(req, "author", defaultAuthor)
}

// withAuthor makes the author the lock owner for the call.
func withAuthor(ctx context.Context, req mcp.CallToolRequest) context.Context {
	return section.WithOwner(ctx, author(req))
}

// jsonResult serialises v as indented JSON in a text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports err as a tool error. Typed errors are returned as
// JSON so the agent can branch on kind and code and read the suggestion.
func errorResult(err error) *mcp.CallToolResult {
	fe := failure.From(err)
	data, jerr := json.MarshalIndent(map[string]any{"error": fe}, "", "  ")
	if jerr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// call checks the workspace, runs fn with the author as lock owner, audits
// the call as "mcp:{tool}" and maps the result.
func (h *handlers) call(ctx context.Context, req mcp.CallToolRequest, action string, fn func(ctx context.Context) (any, error)) (*mcp.CallToolResult, error) {
	if result := h.requireInit(); result != nil {
		return result, nil
	}
	v, err := fn(withAuthor(ctx, req))
	log.Event("mcp:"+req.Params.Name, action).
		Author(author(req)).
		Doc(getString(req, "doc", "")).
		Write(err)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v)
}
