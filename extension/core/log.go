// log.go implements the "quill log" command for reading the audit log.

package core

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/duration"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "log",
		Short: "Show the audit log for this workspace",
		Long: `Show recent audited operations for the current workspace, newest first.

Examples:
  quill log
  quill log --doc reports/q3
  quill log --failed --limit 5
  quill log --since 7d`,
		Args: cobra.NoArgs,
		RunE: runLog,
	}
	c.Flags().String(extension.FlagDoc, "", "Only entries for this document")
	c.Flags().Bool(extension.FlagFailed, false, "Only failed operations")
	c.Flags().Int(extension.FlagLimit, 20, "Maximum entries (0 for all)")
	c.Flags().String(extension.FlagSince, "", "Only entries newer than this age (e.g. 12h, 7d, 4w)")
	return c
}

func runLog(c *cobra.Command, _ []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	if err := log.Open(); err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	log.SetProject(root)

	doc, _ := c.Flags().GetString(extension.FlagDoc)
	failed, _ := c.Flags().GetBool(extension.FlagFailed)
	limit, _ := c.Flags().GetInt(extension.FlagLimit)
	filter := log.Filter{Doc: doc, FailedOnly: failed, Limit: limit}
	if s, _ := c.Flags().GetString(extension.FlagSince); s != "" {
		since, err := duration.Since(s, time.Now())
		if err != nil {
			return failure.Validation(failure.CodeInvalidContent, err.Error()).With("flag", extension.FlagSince)
		}
		filter.Since = since
	}

	records, err := log.Query(c.Context(), filter)
	if err != nil {
		return err
	}
	if cmd.JSON() {
		if records == nil {
			records = []log.Record{}
		}
		return cmd.PrintJSON(records)
	}

	w := tabwriter.NewWriter(cmd.Out(), 0, 2, 2, ' ', 0)
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = r.Code
			if status == "" {
				status = "error"
			}
		}
		target := r.Doc
		if r.Scope != "" {
			target += "#" + r.Scope
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Time.Format(time.DateTime), r.Source, r.Author, target, status)
	}
	return w.Flush()
}

// workspaceRoot resolves --dir or discovers the workspace.
func workspaceRoot() (string, error) {
	if d := cmd.Dir(); d != "" {
		return repo.DiscoverFrom(d)
	}
	return repo.Discover()
}
