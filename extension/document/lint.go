// lint.go implements the "quill lint" command.

package document

import (
	"fmt"

	"github.com/jpl-au/quill/cmd"
	"github.com/spf13/cobra"
)

func (e *Extension) newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <doc>",
		Short: "Check a document for structural problems",
		Long: `Check markers, metadata, heading levels, tables, code fences and local
links. Exits non-zero when any error-severity issue is found.`,
		Args: cobra.ExactArgs(1),
		RunE: e.runLint,
	}
}

func (e *Extension) runLint(c *cobra.Command, args []string) error {
	res, err := e.svc.Lint(cmd.Context(c), args[0])
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		if err := cmd.PrintJSON(res); err != nil {
			return err
		}
		// The result already carries the issues; only the exit code is left.
		c.SilenceErrors = true
		c.SilenceUsage = true
		return res.Err()
	}
	for _, i := range res.Issues {
		fmt.Fprintf(cmd.Out(), "%s: %s: %s\n", res.Doc, i.Severity, i)
	}
	if len(res.Issues) == 0 {
		fmt.Fprintf(cmd.Out(), "%s: ok\n", res.Doc)
	}
	return res.Err()
}
