// tools_sections.go implements MCP tools for documents and sections.
//
// Tools return structured JSON rather than the CLI's text. Errors come back
// as tool error results carrying the failure kind, code and suggestion, so
// the agent can decide whether to retry, wait for a lock or fix its input.

package mcp

import (
	"context"
	"time"

	"github.com/jpl-au/quill/guide"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/mark3labs/mcp-go/mcp"
)

// initWorkspace handles quill_init. It works without a workspace and opens
// the new one so later calls in the session succeed.
func (h *handlers) initWorkspace(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := getBool(req, "force", false)
	err := document.Init(h.dir, force)
	log.Event("mcp:quill_init", "init").Author(author(req)).Detail("force", force).Write(err)
	if err != nil {
		return errorResult(err), nil
	}
	if h.svc == nil {
		svc, err := document.New(h.dir)
		if err != nil {
			return errorResult(err), nil
		}
		h.attach(svc)
	}
	return jsonResult(map[string]string{"workspace": h.svc.Root()})
}

func (h *handlers) guide(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := guide.Get(getString(req, "topic", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (h *handlers) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "list", func(ctx context.Context) (any, error) {
		ids, err := h.svc.Documents(ctx, getString(req, "prefix", ""))
		if ids == nil {
			ids = []string{}
		}
		return map[string]any{"documents": ids}, err
	})
}

func (h *handlers) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "create", func(ctx context.Context) (any, error) {
		doc := getString(req, "doc", "")
		meta := marker.NewMetadata(getString(req, "title", ""), getString(req, "author", ""), time.Now())
		if d := getString(req, "date", ""); d != "" {
			meta[marker.KeyDate] = d
		}
		if s := getString(req, "status", ""); s != "" {
			meta[marker.KeyStatus] = s
		}
		if tags := getStrings(req, "tags"); tags != nil {
			meta[marker.KeyTags] = tags
		}
		for k, v := range getMap(req, "meta") {
			if _, ok := meta[k]; !ok {
				meta[k] = v
			}
		}
		if err := h.svc.Create(ctx, doc, meta); err != nil {
			return nil, err
		}
		return map[string]any{"doc": doc, "metadata": meta}, nil
	})
}

func (h *handlers) writeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "write", func(ctx context.Context) (any, error) {
		doc := getString(req, "doc", "")
		content := getString(req, "content", "")
		annotated, n := marker.Annotate([]byte(content))
		if err := h.svc.Put(ctx, doc, annotated, getBool(req, "overwrite", false)); err != nil {
			return nil, err
		}
		return map[string]any{"doc": doc, "markers_added": n}, nil
	})
}

func (h *handlers) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := h.requireInit(); result != nil {
		return result, nil
	}
	doc := getString(req, "doc", "")
	v := getInt(req, "version", 0)

	var b []byte
	var err error
	if v > 0 {
		b, err = h.svc.Version(ctx, doc, v)
	} else {
		b, err = h.svc.Read(ctx, doc)
	}
	log.Event("mcp:quill_read", "read").Author(author(req)).Doc(doc).Version(v).Write(err)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (h *handlers) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "sections", func(ctx context.Context) (any, error) {
		infos, err := h.svc.List(ctx, getString(req, "doc", ""))
		if infos == nil {
			infos = []section.Info{}
		}
		return map[string]any{"sections": infos}, err
	})
}

func (h *handlers) getSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if result := h.requireInit(); result != nil {
		return result, nil
	}
	doc, title := getString(req, "doc", ""), getString(req, "title", "")
	body, err := h.svc.Get(ctx, doc, title)
	log.Event("mcp:quill_get", "get").Author(author(req)).Doc(doc).Scope(title).Write(err)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(body), nil
}

func (h *handlers) sectionExists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "exists", func(ctx context.Context) (any, error) {
		ok, err := h.svc.Exists(ctx, getString(req, "doc", ""), getString(req, "title", ""))
		return map[string]bool{"exists": ok}, err
	})
}

func (h *handlers) appendSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "append", func(ctx context.Context) (any, error) {
		doc, title := getString(req, "doc", ""), getString(req, "title", "")
		err := h.svc.Append(ctx, doc, title, getString(req, "content", ""), section.AppendOptions{
			AllowDuplicate: getBool(req, "allow_duplicate", false),
			Level:          getInt(req, "level", 0),
			After:          getString(req, "after", ""),
		})
		return map[string]string{"doc": doc, "title": title}, err
	})
}

func (h *handlers) editSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "edit", func(ctx context.Context) (any, error) {
		doc, title := getString(req, "doc", ""), getString(req, "title", "")
		err := h.svc.Edit(ctx, doc, title, getString(req, "content", ""))
		return map[string]string{"doc": doc, "title": title}, err
	})
}

func (h *handlers) deleteSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "delete", func(ctx context.Context) (any, error) {
		doc, title := getString(req, "doc", ""), getString(req, "title", "")
		err := h.svc.Delete(ctx, doc, title)
		return map[string]string{"doc": doc, "deleted": title}, err
	})
}

func (h *handlers) replaceText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "replace", func(ctx context.Context) (any, error) {
		return h.svc.Replace(ctx, getString(req, "doc", ""), getString(req, "old", ""), getString(req, "new", ""), section.ReplaceOptions{
			CaseSensitive: !getBool(req, "ignore_case", false),
			Regexp:        getBool(req, "regexp", false),
			First:         getBool(req, "first", false),
		})
	})
}

func (h *handlers) getMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "metadata", func(ctx context.Context) (any, error) {
		return h.svc.Metadata(ctx, getString(req, "doc", ""))
	})
}

func (h *handlers) setMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "metadata", func(ctx context.Context) (any, error) {
		doc, key := getString(req, "doc", ""), getString(req, "key", "")
		var value any
		if !getBool(req, "unset", false) {
			s, err := req.RequireString("value")
			if err != nil {
				return nil, failure.Validation(failure.CodeInvalidMetadata, "value is required unless unset is true").With("key", key)
			}
			value = marker.ParseValue(key, s)
		}
		if err := h.svc.SetMetadata(ctx, doc, key, value); err != nil {
			return nil, err
		}
		return h.svc.Metadata(ctx, doc)
	})
}

func (h *handlers) lintDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.call(ctx, req, "lint", func(ctx context.Context) (any, error) {
		return h.svc.Lint(ctx, getString(req, "doc", ""))
	})
}
