// Package core provides the core extension for quill.
// It registers commands: init, config, serve, api, guide, llm, version, log.
package core

import (
	"github.com/jpl-au/quill/extension"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the core extension.
type Extension struct{}

var (
	_ extension.Extension = (*Extension)(nil)
	_ extension.Storeless = (*Extension)(nil)
)

// Name returns "core" - this extension provides workspace-level commands.
func (e *Extension) Name() string { return "core" }

// Commands returns all core CLI commands.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		newInitCmd(),
		newConfigCmd(),
		newServeCmd(),
		newAPICmd(),
		newGuideCmd(),
		newLlmCmd(),
		newVersionCmd(),
		newLogCmd(),
	}
}

// MCPTools returns nil - core commands have no MCP tool equivalents.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}

// NoStoreCommands returns commands that manage their own service lifecycle.
// serve, api: long-running servers open and close their own service.
// llm, version: static output.
// log: reads the audit log, not the workspace.
func (e *Extension) NoStoreCommands() []string {
	return []string{"serve", "api", "llm", "version", "log"}
}
