// import.go implements the "quill import" command for bringing markdown and
// HTML files into the workspace.

package document

import (
	"fmt"
	"io"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/importer"
	"github.com/jpl-au/quill/internal/log"
	"github.com/spf13/cobra"
)

func (e *Extension) newImportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "import <path>",
		Short: "Import markdown or HTML files",
		Long: `Import a file or directory tree. HTML is converted to markdown, headings
gain section markers and files without metadata get a generated block.

Examples:
  quill import ./notes
  quill import ./site --prefix web --flat
  quill import ./notes --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: e.runImport,
	}
	c.Flags().String(extension.FlagPrefix, "", "Prefix for imported document ids")
	c.Flags().Bool(extension.FlagFlat, false, "Drop source directories from ids")
	c.Flags().Bool(extension.FlagIncludeHidden, false, "Include hidden files and directories")
	c.Flags().Bool(extension.FlagDryRun, false, "Show what would be imported")
	c.Flags().Bool(extension.FlagOverwrite, false, "Replace documents that already exist")
	return c
}

func (e *Extension) runImport(c *cobra.Command, args []string) error {
	src := args[0]
	prefix, _ := c.Flags().GetString(extension.FlagPrefix)
	flat, _ := c.Flags().GetBool(extension.FlagFlat)
	hidden, _ := c.Flags().GetBool(extension.FlagIncludeHidden)
	dryRun, _ := c.Flags().GetBool(extension.FlagDryRun)
	overwrite, _ := c.Flags().GetBool(extension.FlagOverwrite)

	var out io.Writer = cmd.Out()
	if cmd.JSON() {
		out = io.Discard
	}

	res, err := importer.Run(cmd.Context(c), out, e.svc, src, importer.Options{
		Prefix:    prefix,
		Flat:      flat,
		Hidden:    hidden,
		DryRun:    dryRun,
		Overwrite: overwrite,
		Author:    cmd.Author(),
	})
	log.Event("document:import", "import").
		Author(cmd.Author()).
		Detail("source", src).
		Detail("imported", res.Imported).
		Write(err)
	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("import %q: %w", src, err))
	}
	return cmd.PrintJSON(res)
}
