// Package mcp implements the Model Context Protocol server, exposing quill
// operations to LLMs. Agents read sections, edit them under section locks,
// snapshot documents and run conversions through the same service the CLI
// uses.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/jpl-au/quill/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is advertised to clients for capability negotiation.
const Version = "1.0.0"

// ErrNotInitialised is returned by tools when no workspace exists yet.
// The LLM should call quill_init before using other tools.
const ErrNotInitialised = "workspace not initialised - call quill_init first"

// Serve starts the MCP server over stdio.
//
// The server starts even if no workspace exists, so an LLM can call
// quill_init rather than fail with an opaque error. Tools that need a
// workspace return ErrNotInitialised until then.
func Serve(dir string) error {
	// stdout is reserved for MCP JSON-RPC messages
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := log.Open(); err != nil {
		slog.Warn("audit log unavailable", "error", err)
	}
	defer log.Close()

	h := &handlers{dir: dir}
	svc, err := document.New(dir)
	if err != nil && !errors.Is(err, repo.ErrNotInitialised) {
		slog.Error("failed to open workspace", "error", err)
		return err
	}
	if err == nil {
		h.attach(svc)
		defer h.close()
	} else {
		slog.Info("quill not initialised, starting in uninitialised mode - call quill_init to create a workspace")
	}

	s := NewServer(h)
	slog.Info("quill MCP server ready", "version", Version, "transport", "stdio")

	err = server.ServeStdio(s)
	if errors.Is(err, context.Canceled) {
		slog.Info("server stopped")
		return nil
	}
	return err
}

// NewServer builds the MCP server around h.
func NewServer(h *handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"quill",
		Version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)
	registerResources(s, h)
	registerTools(s, h)
	registerExtensionTools(s, h)
	return s
}

// handlers provides MCP request handlers with access to the service.
// The svc field is nil until a workspace exists.
type handlers struct {
	dir string
	svc service.Service
	cfg *config.Config
	ext extension.Context
}

// newHandlers wraps an open service. Tests use it to skip discovery.
func newHandlers(svc service.Service, cfg *config.Config) *handlers {
	h := &handlers{}
	h.svc = svc
	h.cfg = cfg
	h.ext = extension.NewContext(svc, cfg)
	return h
}

func (h *handlers) attach(svc *document.Service) {
	h.svc = svc
	h.cfg = svc.Config()
	h.ext = extension.NewContext(svc, svc.Config())
	log.SetProject(svc.Root())
}

func (h *handlers) close() {
	if h.svc != nil {
		if err := h.svc.Close(); err != nil {
			slog.Warn("closing service", "error", err)
		}
	}
}

// requireInit returns an error result if no workspace is open.
func (h *handlers) requireInit() *mcp.CallToolResult {
	if h.svc == nil {
		return mcp.NewToolResultError(ErrNotInitialised)
	}
	return nil
}

// registerExtensionTools adds tools contributed by registered extensions.
func registerExtensionTools(s *server.MCPServer, h *handlers) {
	for _, t := range extension.Tools() {
		handler := t.Handler
		s.AddTool(t.Tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if result := h.requireInit(); result != nil {
				return result, nil
			}
			return handler(withAuthor(ctx, req), h.ext, req)
		})
	}
}
