// Package search provides document discovery and content searching.
// Registers commands: grep, glob.
package search

import (
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the search extension.
type Extension struct {
	svc service.Service
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "search" - this extension provides document discovery commands.
func (e *Extension) Name() string { return "search" }

// Init connects to the shared service.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	return nil
}

// Commands returns grep and glob.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		e.newGrepCmd(),
		e.newGlobCmd(),
	}
}

// MCPTools returns nil - quill_grep is provided by internal/mcp.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}
