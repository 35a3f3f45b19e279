// Package tag provides the tag extension for quill.
// It registers commands: tag (with subcommands add, rm, ls).
//
// Tags are stored in the document metadata block, so tag commands take the
// document lock like any other metadata edit.
package tag

import (
	"fmt"
	"io"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/service"
	"github.com/jpl-au/quill/internal/tag"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the tag extension.
type Extension struct {
	svc service.Service
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "tag" - this extension provides document tagging commands.
func (e *Extension) Name() string { return "tag" }

// Init receives the shared service from the extension context.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	return nil
}

// Commands returns the tag command with its subcommands (add, rm, ls).
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		e.newTagCmd(),
	}
}

// MCPTools returns nil - tags are set through quill_meta.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}

func (e *Extension) newTagCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "tag",
		Short: "Manage document tags",
		Long: `Add, remove, and list the tags in a document's metadata block. Tags are
unique alphanumeric tokens, at most 10 per document.`,
	}
	c.AddCommand(e.newTagAddCmd())
	c.AddCommand(e.newTagRmCmd())
	c.AddCommand(e.newTagLsCmd())
	return c
}

func (e *Extension) newTagAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <doc> <tag>",
		Short: "Add a tag to a document",
		Args:  cobra.ExactArgs(2),
		RunE:  e.runTagAdd,
	}
}

func (e *Extension) newTagRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <doc> <tag>",
		Short: "Remove a tag from a document",
		Args:  cobra.ExactArgs(2),
		RunE:  e.runTagRm,
	}
}

func (e *Extension) newTagLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [doc]",
		Short: "List tags for a document (or all tags if doc omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  e.runTagLs,
	}
}

func (e *Extension) runTagAdd(c *cobra.Command, args []string) error {
	doc, t := args[0], args[1]
	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}

	result, err := tag.Add(cmd.Context(c), w, e.svc, doc, t)
	log.Event("tag:add", "tag").Author(cmd.Author()).Doc(doc).Detail("tag", t).Write(err)
	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("tag add %q %q: %w", doc, t, err))
	}
	return cmd.PrintJSON(result)
}

func (e *Extension) runTagRm(c *cobra.Command, args []string) error {
	doc, t := args[0], args[1]
	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}

	result, err := tag.Remove(cmd.Context(c), w, e.svc, doc, t)
	log.Event("tag:remove", "untag").Author(cmd.Author()).Doc(doc).Detail("tag", t).Write(err)
	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("tag rm %q %q: %w", doc, t, err))
	}
	return cmd.PrintJSON(result)
}

func (e *Extension) runTagLs(c *cobra.Command, args []string) error {
	doc := ""
	if len(args) > 0 {
		doc = args[0]
	}
	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}

	result, err := tag.List(cmd.Context(c), w, e.svc, doc)
	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("tag ls: %w", err))
	}
	return cmd.PrintJSON(result)
}
