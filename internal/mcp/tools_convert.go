// tools_convert.go implements MCP tools for the conversion pipeline.
//
// quill_convert waits for the task by default; with async it returns the
// queued task and the agent polls quill_task. A failed conversion is
// returned as an error result holding the whole task so the attempts and
// the final failure are both visible.

package mcp

import (
	"context"
	"encoding/json"

	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/log"
	"github.com/mark3labs/mcp-go/mcp"
)

// request builds a conversion request from tool arguments.
func request(req mcp.CallToolRequest) (convert.Request, error) {
	target, err := convert.ParseFormat(getString(req, "to", ""))
	if err != nil {
		return convert.Request{}, err
	}
	r := convert.Request{
		Doc:        getString(req, "doc", ""),
		Target:     target,
		Priority:   getInt(req, "priority", 0),
		NoFallback: getBool(req, "no_fallback", false),
		Overwrite:  getBool(req, "overwrite", false),
	}
	for _, name := range getStrings(req, "fallback") {
		f, err := convert.ParseFormat(name)
		if err != nil {
			return convert.Request{}, err
		}
		r.Fallback = append(r.Fallback, f)
	}
	return r, nil
}

func (h *handlers) convert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := h.requireInit(); result != nil {
		return result, nil
	}
	r, err := request(req)
	if err != nil {
		return errorResult(err), nil
	}

	ctx = withAuthor(ctx, req)
	var task convert.Task
	if getBool(req, "async", false) {
		task, err = h.svc.Schedule(ctx, r)
	} else {
		task, err = h.svc.Convert(ctx, r)
	}
	log.Event("mcp:quill_convert", "convert").
		Author(author(req)).
		Doc(r.Doc).
		Detail("target", string(r.Target)).
		Detail("state", string(task.State)).
		Write(err)
	return taskResult(task, err)
}

func (h *handlers) task(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := h.requireInit(); result != nil {
		return result, nil
	}
	id := getString(req, "id", "")
	var task convert.Task
	var err error
	if getBool(req, "wait", false) {
		task, err = h.svc.Wait(ctx, id)
	} else {
		task, err = h.svc.Task(ctx, id)
	}
	return taskResult(task, err)
}

func (h *handlers) tasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "tasks", func(ctx context.Context) (any, error) {
		list, err := h.svc.Tasks(ctx)
		if list == nil {
			list = []convert.Task{}
		}
		return map[string]any{"tasks": list}, err
	})
}

func (h *handlers) cancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "cancel", func(ctx context.Context) (any, error) {
		id := getString(req, "id", "")
		if err := h.svc.Cancel(ctx, id); err != nil {
			return nil, err
		}
		return h.svc.Task(ctx, id)
	})
}

// taskResult reports a task. Failed tasks become error results carrying
// the task; errors without a task fall back to errorResult.
func taskResult(task convert.Task, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(task)
	}
	if task.ID == "" {
		return errorResult(err), nil
	}
	data, jerr := json.MarshalIndent(task, "", "  ")
	if jerr != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultError(string(data)), nil
}
