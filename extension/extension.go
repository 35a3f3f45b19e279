// Package extension provides the plugin architecture for quill. Extensions
// group related commands and MCP tools and register at init time, so a
// feature area can be added without touching the CLI core.
package extension

import (
	"github.com/spf13/cobra"
)

// Extension defines the contract for quill extensions.
type Extension interface {
	// Name returns a unique identifier for this extension.
	Name() string

	// Commands returns CLI commands to register with the root command.
	Commands() []*cobra.Command

	// MCPTools returns MCP tools to register with the server.
	MCPTools() []MCPTool
}

// Initializable extensions receive the shared service before their
// commands run.
type Initializable interface {
	Extension
	Init(ctx Context) error
}

// Storeless is an optional interface for extensions with commands that
// don't require a workspace. Commands returned by NoStoreCommands() will
// not trigger service initialisation in PersistentPreRunE.
//
// Use cases:
// 1. Bootstrap commands (like init) that run before a workspace exists
// 2. Commands that manage their own service lifecycle (serve, api)
// 3. Utility commands that don't touch documents
type Storeless interface {
	NoStoreCommands() []string
}
