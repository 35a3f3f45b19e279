// serve.go implements the "quill serve" command for MCP server operation.
//
// serve blocks handling MCP requests over stdio, so it is a NoStoreCommand
// and opens its own service.

package core

import (
	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/internal/mcp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start MCP server",
		Long: `Start an MCP (Model Context Protocol) server over stdio for LLM integration.

Use --dir to serve a workspace other than the current one:
  quill serve --dir ~/reports`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	return mcp.Serve(cmd.Dir())
}
