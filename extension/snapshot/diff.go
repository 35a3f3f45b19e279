// diff.go implements the "quill diff" command.

package snapshot

import (
	"io"
	"os"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (e *Extension) newDiffCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "diff <doc> [v1:v2]",
		Short: "Show differences between document versions",
		Long: `Show differences between two snapshots, or between a snapshot and the
current document.

Examples:
  quill diff reports/q3            # latest snapshot vs current
  quill diff reports/q3 -v 2       # snapshot 2 vs current
  quill diff reports/q3 2:4        # snapshot 2 vs snapshot 4`,
		Args: cobra.RangeArgs(1, 2),
		RunE: e.runDiff,
	}
	c.Flags().IntP(extension.FlagVersion, "v", 0, "Compare this snapshot with the current document")
	c.Flags().Bool(extension.FlagRaw, false, "Output without colour")
	return c
}

func (e *Extension) runDiff(c *cobra.Command, args []string) error {
	ctx := cmd.Context(c)
	doc := args[0]
	ver, _ := c.Flags().GetInt(extension.FlagVersion)
	raw, _ := c.Flags().GetBool(extension.FlagRaw)

	var opts diff.Options
	switch {
	case len(args) == 2:
		v1, v2, err := diff.ParseVersionRange(args[1])
		if err != nil {
			return cmd.PrintJSONError(err)
		}
		opts = diff.Options{Version1: v1, Version2: v2}
	case ver > 0:
		opts.Version1 = ver
	default:
		entries, err := e.svc.History(ctx, doc)
		if err != nil {
			return cmd.PrintJSONError(err)
		}
		if len(entries) > 0 {
			opts.Version1 = entries[len(entries)-1].Version
		}
	}

	var w io.Writer = cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}
	colour := !raw && term.IsTerminal(int(os.Stdout.Fd()))

	r, err := diff.Run(ctx, w, e.svc, doc, opts, colour)
	log.Event("snapshot:diff", "diff").
		Author(cmd.Author()).
		Doc(doc).
		Version(opts.Version1).
		Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	return cmd.PrintJSON(r)
}
