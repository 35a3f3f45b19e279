// Package document provides the document extension: creating documents and
// reading and writing them section by section.
// Registers commands: create, append, edit, get, exists, sections, rm,
// meta, ls, put, import, lint.
//
// Each command file isolates its own flag handling and output formatting.
package document

import (
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the document extension.
type Extension struct {
	svc service.Service
	cfg *config.Config
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "document".
func (e *Extension) Name() string { return "document" }

// Init connects to the shared service.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	e.cfg = ctx.Config()
	return nil
}

// Commands returns the document commands.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		e.newCreateCmd(),
		e.newAppendCmd(),
		e.newEditCmd(),
		e.newGetCmd(),
		e.newExistsCmd(),
		e.newSectionsCmd(),
		e.newRmCmd(),
		e.newMetaCmd(),
		e.newLsCmd(),
		e.newPutCmd(),
		e.newImportCmd(),
		e.newLintCmd(),
	}
}

// MCPTools returns nil - document MCP tools are provided by internal/mcp.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}
