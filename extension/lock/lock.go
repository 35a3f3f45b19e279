// Package lock provides the lock extension for inspecting and recovering
// section and document locks.
// It registers the "lock" command with subcommands ls, release and sweep.
package lock

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the lock extension.
type Extension struct {
	svc service.Service
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "lock".
func (e *Extension) Name() string { return "lock" }

// Init receives the shared service.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	return nil
}

// Commands returns the lock command tree.
func (e *Extension) Commands() []*cobra.Command {
	c := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and recover locks",
		Long: `Locks are held per section for edits and per document for structural
changes. A holder that stops heartbeating becomes stale and can be released.

  quill lock ls reports/q3
  quill lock release reports/q3 --scope Intro
  quill lock sweep`,
	}
	c.AddCommand(e.newLsCmd(), e.newReleaseCmd(), e.newSweepCmd())
	return []*cobra.Command{c}
}

// MCPTools returns nil - lock tools are provided by internal/mcp.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}

func (e *Extension) newLsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "ls <doc>",
		Short: "List locks held on a document",
		Args:  cobra.ExactArgs(1),
		RunE:  e.runLs,
	}
	c.Flags().Bool(extension.FlagStale, false, "Only stale locks")
	return c
}

func (e *Extension) runLs(c *cobra.Command, args []string) error {
	stale, _ := c.Flags().GetBool(extension.FlagStale)
	records, err := e.svc.Locks(cmd.Context(c), args[0])
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	now := time.Now()
	out := []lock.Record{}
	for _, r := range records {
		if !stale || r.Stale(now) {
			out = append(out, r)
		}
	}
	if cmd.JSON() {
		return cmd.PrintJSON(out)
	}

	w := tabwriter.NewWriter(cmd.Out(), 0, 2, 2, ' ', 0)
	for _, r := range out {
		state := "live"
		if r.Stale(now) {
			state = "stale"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", scopeName(r.Scope), r.Owner, r.Operation, r.Heartbeat.Format(time.DateTime), state)
	}
	return w.Flush()
}

func (e *Extension) newReleaseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "release <doc>",
		Short: "Force-release a stale lock",
		Long: `Remove a stale lock record. Live locks are refused; wait for the holder
or its TTL instead. Without --scope the document lock is released.`,
		Args: cobra.ExactArgs(1),
		RunE: e.runRelease,
	}
	c.Flags().String(extension.FlagScope, "", "Section title (default: the document lock)")
	return c
}

func (e *Extension) runRelease(c *cobra.Command, args []string) error {
	doc := args[0]
	scope, _ := c.Flags().GetString(extension.FlagScope)

	err := e.svc.ForceRelease(cmd.Context(c), doc, scope)
	log.Event("lock:release", "release").Author(cmd.Author()).Doc(doc).Scope(scope).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(map[string]string{"doc": doc, "scope": scope})
	}
	fmt.Fprintf(cmd.Out(), "Released %s lock on %s\n", scopeName(scope), doc)
	return nil
}

func (e *Extension) newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [doc...]",
		Short: "Remove every stale lock",
		Long:  `Remove stale lock records on the listed documents, or on every document.`,
		RunE:  e.runSweep,
	}
}

func (e *Extension) runSweep(c *cobra.Command, args []string) error {
	swept, err := e.svc.Sweep(cmd.Context(c), args...)
	log.Event("lock:sweep", "sweep").Author(cmd.Author()).Detail("swept", len(swept)).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		if swept == nil {
			swept = []lock.Record{}
		}
		return cmd.PrintJSON(swept)
	}
	for _, r := range swept {
		fmt.Fprintf(cmd.Out(), "Swept %s lock on %s (held by %s)\n", scopeName(r.Scope), r.Doc, r.Owner)
	}
	if len(swept) == 0 {
		fmt.Fprintln(cmd.Out(), "No stale locks")
	}
	return nil
}

func scopeName(scope string) string {
	if scope == lock.Document {
		return "document"
	}
	return scope
}
