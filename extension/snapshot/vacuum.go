// vacuum.go implements the "quill vacuum" command: workspace-wide snapshot
// pruning and stale lock cleanup.
//
// Separated from commands.go because vacuum is destructive across many
// documents and asks for confirmation unless --force or --dry-run is given.

package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/vacuum"
	"github.com/spf13/cobra"
)

func (e *Extension) newVacuumCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "vacuum [prefix]",
		Short: "Prune old snapshots and stale locks everywhere",
		Long: `Delete snapshots beyond the retention count and remove stale lock records
on every document, or on documents under a prefix or matching --glob.

Pruning is irreversible. Use --dry-run to preview and --force to skip the
confirmation prompt.

  quill vacuum --dry-run
  quill vacuum reports --keep 3
  quill vacuum --glob "**/draft*" --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: e.runVacuum,
	}
	c.Flags().Int(extension.FlagKeep, 0, "Snapshots to keep per document (default versions.keep)")
	c.Flags().String(extension.FlagGlob, "", "Only documents whose id matches this pattern")
	c.Flags().BoolP(extension.FlagDryRun, "n", false, "Show what would be removed")
	return c
}

func (e *Extension) runVacuum(c *cobra.Command, args []string) error {
	opts := vacuum.Options{}
	if len(args) > 0 {
		opts.Prefix = args[0]
	}
	opts.Keep, _ = c.Flags().GetInt(extension.FlagKeep)
	opts.Glob, _ = c.Flags().GetString(extension.FlagGlob)
	opts.DryRun, _ = c.Flags().GetBool(extension.FlagDryRun)
	if opts.Keep == 0 {
		opts.Keep = e.cfg.VersionsKeep()
	}

	if !opts.DryRun && !cmd.Force() && !cmd.JSON() {
		fmt.Fprintf(cmd.Out(), "Delete snapshots beyond the newest %d of each document? This cannot be undone. [y/N] ", opts.Keep)
		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return cmd.PrintJSONError(fmt.Errorf("reading confirmation: %w", err))
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(cmd.Out(), "Cancelled")
			return nil
		}
	}

	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}
	result, err := vacuum.Run(cmd.Context(c), w, e.svc, opts)

	log.Event("snapshot:vacuum", "vacuum").
		Author(cmd.Author()).
		Detail("dry_run", opts.DryRun).
		Detail("snapshots", len(result.Snapshots)).
		Detail("locks", len(result.Locks)).
		Write(err)

	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("vacuum: %w", err))
	}
	return cmd.PrintJSON(result)
}
