package snapshot

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/format"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/snapshot"
	"github.com/spf13/cobra"
)

// versionArg parses a positive snapshot number.
func versionArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, failure.Validation(failure.CodeInvalidContent, "version must be a positive integer").
			With("version", s)
	}
	return n, nil
}

func (e *Extension) newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <doc>",
		Short: "Record the current document as a new version",
		Long: `Record the current document as the next numbered snapshot. When the
metadata carries a version key it is stamped with the new number first.`,
		Args: cobra.ExactArgs(1),
		RunE: e.runSnapshot,
	}
}

func (e *Extension) runSnapshot(c *cobra.Command, args []string) error {
	doc := args[0]
	entry, err := e.svc.Snapshot(cmd.Context(c), doc)
	log.Event("snapshot:snapshot", "snapshot").Author(cmd.Author()).Doc(doc).Version(entry.Version).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(entry)
	}
	fmt.Fprintf(cmd.Out(), "Snapshot %d of %s (%s)\n", entry.Version, doc, entry.Checksum[:12])
	return nil
}

func (e *Extension) newHistoryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "history <doc>",
		Short: "List the snapshots of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  e.runHistory,
	}
	c.Flags().IntP(extension.FlagLimit, "n", 0, "Show only the newest n snapshots")
	return c
}

func (e *Extension) runHistory(c *cobra.Command, args []string) error {
	limit, _ := c.Flags().GetInt(extension.FlagLimit)
	if limit < 0 {
		return cmd.PrintJSONError(fmt.Errorf("limit must be >= 0, got %d", limit))
	}

	entries, err := e.svc.History(cmd.Context(c), args[0])
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	if cmd.JSON() {
		if entries == nil {
			entries = []snapshot.Entry{}
		}
		return cmd.PrintJSON(entries)
	}
	w := tabwriter.NewWriter(cmd.Out(), 0, 2, 2, ' ', 0)
	for _, en := range entries {
		fmt.Fprintf(w, "v%d\t%s\t%s\t%s\n", en.Version, en.Created.Local().Format(time.DateTime), en.Author, format.Size(en.Size))
	}
	return w.Flush()
}

func (e *Extension) newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <doc> <version>",
		Short: "Restore a snapshot as the current document",
		Long: `Verify a snapshot against its checksum and write it back as the
document. The current content is not snapshotted first; run quill snapshot
beforehand to keep it.`,
		Args: cobra.ExactArgs(2),
		RunE: e.runRestore,
	}
}

func (e *Extension) runRestore(c *cobra.Command, args []string) error {
	doc := args[0]
	v, err := versionArg(args[1])
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	err = e.svc.Restore(cmd.Context(c), doc, v)
	log.Event("snapshot:restore", "restore").Author(cmd.Author()).Doc(doc).Version(v).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(map[string]any{"doc": doc, "restored": v})
	}
	fmt.Fprintf(cmd.Out(), "Restored %s to version %d\n", doc, v)
	return nil
}

func (e *Extension) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <doc> [version]",
		Short: "Check snapshots against their checksums",
		Long:  `Verify one snapshot, or every snapshot of the document.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  e.runVerify,
	}
}

type verifyResult struct {
	Version int    `json:"version"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func (e *Extension) runVerify(c *cobra.Command, args []string) error {
	ctx := cmd.Context(c)
	doc := args[0]

	var versions []int
	if len(args) == 2 {
		v, err := versionArg(args[1])
		if err != nil {
			return cmd.PrintJSONError(err)
		}
		versions = []int{v}
	} else {
		entries, err := e.svc.History(ctx, doc)
		if err != nil {
			return cmd.PrintJSONError(err)
		}
		for _, en := range entries {
			versions = append(versions, en.Version)
		}
	}

	var results []verifyResult
	var firstErr error
	for _, v := range versions {
		r := verifyResult{Version: v, OK: true}
		if err := e.svc.Verify(ctx, doc, v); err != nil {
			r.OK, r.Error = false, err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, r)
	}
	log.Event("snapshot:verify", "verify").Author(cmd.Author()).Doc(doc).Detail("checked", len(results)).Write(firstErr)

	if cmd.JSON() {
		if results == nil {
			results = []verifyResult{}
		}
		if err := cmd.PrintJSON(results); err != nil {
			return err
		}
		if firstErr != nil {
			c.SilenceErrors = true
			c.SilenceUsage = true
		}
		return firstErr
	}
	for _, r := range results {
		if r.OK {
			fmt.Fprintf(cmd.Out(), "v%d ok\n", r.Version)
		} else {
			fmt.Fprintf(cmd.Out(), "v%d FAILED: %s\n", r.Version, r.Error)
		}
	}
	return firstErr
}

func (e *Extension) newPruneCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "prune <doc>",
		Short: "Delete old snapshots",
		Long: `Keep the newest --keep snapshots and delete the rest. Without --keep the
versions.keep setting applies.`,
		Args: cobra.ExactArgs(1),
		RunE: e.runPrune,
	}
	c.Flags().Int(extension.FlagKeep, 0, "Snapshots to keep (default versions.keep)")
	return c
}

func (e *Extension) runPrune(c *cobra.Command, args []string) error {
	doc := args[0]
	keep, _ := c.Flags().GetInt(extension.FlagKeep)
	if keep < 0 {
		return cmd.PrintJSONError(fmt.Errorf("keep must be >= 0, got %d", keep))
	}

	removed, err := e.svc.Prune(cmd.Context(c), doc, keep)
	log.Event("snapshot:prune", "prune").Author(cmd.Author()).Doc(doc).Detail("removed", len(removed)).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		if removed == nil {
			removed = []snapshot.Entry{}
		}
		return cmd.PrintJSON(removed)
	}
	fmt.Fprintf(cmd.Out(), "Pruned %d snapshot(s) of %s\n", len(removed), doc)
	return nil
}
