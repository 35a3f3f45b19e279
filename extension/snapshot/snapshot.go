// Package snapshot provides the snapshot extension for versioning whole
// documents.
// Registers commands: snapshot, history, diff, restore, verify, prune,
// vacuum.
package snapshot

import (
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the snapshot extension.
type Extension struct {
	svc service.Service
	cfg *config.Config
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "snapshot".
func (e *Extension) Name() string { return "snapshot" }

// Init receives the shared service.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	e.cfg = ctx.Config()
	return nil
}

// Commands returns the version commands.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		e.newSnapshotCmd(),
		e.newHistoryCmd(),
		e.newDiffCmd(),
		e.newRestoreCmd(),
		e.newVerifyCmd(),
		e.newPruneCmd(),
		e.newVacuumCmd(),
	}
}

// MCPTools returns nil - version tools are provided by internal/mcp.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}
