// glob.go implements the "quill glob" command for listing documents by id
// pattern.

package search

import (
	"fmt"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/internal/glob"
	"github.com/spf13/cobra"
)

func (e *Extension) newGlobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "glob <pattern>",
		Short: "List documents matching a pattern",
		Long: `List document ids matching a shell-style pattern. "**" matches any number
of path segments; a pattern without a slash also matches the last segment.

  quill glob "reports/*"
  quill glob "reports/**"
  quill glob "**/summary"
  quill glob "q?"`,
		Args: cobra.ExactArgs(1),
		RunE: e.runGlob,
	}
}

func (e *Extension) runGlob(c *cobra.Command, args []string) error {
	ids, err := e.svc.Documents(cmd.Context(c), "")
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	ids, err = glob.Filter(args[0], ids)
	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("glob %q: %w", args[0], err))
	}
	if cmd.JSON() {
		if ids == nil {
			ids = []string{}
		}
		return cmd.PrintJSON(ids)
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.Out(), id)
	}
	return nil
}
