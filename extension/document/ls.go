// ls.go implements the "quill ls" command.

package document

import (
	"fmt"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/format"
	"github.com/spf13/cobra"
)

func (e *Extension) newLsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List documents",
		Long: `List document ids, optionally under a prefix.

Examples:
  quill ls
  quill ls reports
  quill ls --tree`,
		Args: cobra.MaximumNArgs(1),
		RunE: e.runLs,
	}
	c.Flags().Bool(extension.FlagTree, false, "Show documents as a tree")
	return c
}

func (e *Extension) runLs(c *cobra.Command, args []string) error {
	var prefix string
	if len(args) == 1 {
		prefix = args[0]
	}
	ids, err := e.svc.Documents(cmd.Context(c), prefix)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		if ids == nil {
			ids = []string{}
		}
		return cmd.PrintJSON(ids)
	}
	if tree, _ := c.Flags().GetBool(extension.FlagTree); tree {
		return format.Tree(cmd.Out(), ids)
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.Out(), id)
	}
	return nil
}
