// init.go implements the "quill init" command for workspace initialisation.
//
// Init does NOT create config - that's managed separately via "quill config",
// following git's split between repository structure and configuration.

package core

import (
	"fmt"
	"path/filepath"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialise a new quill workspace",
		Long: `Creates a .quill directory in the current directory. Documents live beside it
as plain markdown files.

Use --dir to create in a different directory:
  quill init --dir /path/to/project

Use --force to reinitialise; this clears the conversion staging area but never
touches documents, snapshots or locks.

Note: init does not create config. Use "quill config" to set up configuration.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(_ *cobra.Command, _ []string) error {
	dir := cmd.Dir()
	err := document.Init(dir, cmd.Force())

	log.Event("core:init", "init").
		Author(cmd.Author()).
		Detail("dir", dir).
		Detail("force", cmd.Force()).
		Write(err)

	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("init: %w", err))
	}

	loc := filepath.Join(dir, repo.Dir)
	if cmd.JSON() {
		return cmd.PrintJSON(map[string]string{"workspace": loc})
	}
	fmt.Fprintf(cmd.Out(), "Initialised quill workspace in %s\n", loc)
	return nil
}
