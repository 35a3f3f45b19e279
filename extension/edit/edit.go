// Package edit provides the edit extension for quill.
// It registers commands: sed, replace. The sed command is also exposed to
// MCP clients as quill_sed.
package edit

import (
	"errors"
	"fmt"
	"io"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/sed"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the edit extension.
type Extension struct {
	svc service.Service
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "edit" - this extension provides text substitution commands.
func (e *Extension) Name() string { return "edit" }

// Init receives the shared service from the extension context.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	return nil
}

// Commands returns sed and replace.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{
		e.newSedCmd(),
		e.newReplaceCmd(),
	}
}

// MCPTools returns quill_sed.
func (e *Extension) MCPTools() []extension.MCPTool {
	return []extension.MCPTool{sedTool()}
}

// --- sed command ---

func (e *Extension) newSedCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sed [-i] <expression> <doc>",
		Short: "Stream editor for documents",
		Long: `Edit documents using sed-style substitution syntax.

  quill sed -i 's/old/new/' reports/q3
  quill sed -i 's/old/new/g' reports/q3    # every match, not just the first per section
  quill sed -i 's/Old/new/gi' reports/q3   # case-insensitive
  quill sed -i 's/v(\d+)/V$1/r' reports/q3 # regular expression
  quill sed -i 's|a/b|c/d|' reports/q3     # alternate delimiter

The -i flag (in-place) is required, matching sed behaviour. Substitution
touches the preamble and section bodies only; headings, markers and the
metadata block are never changed.`,
		Args: cobra.ExactArgs(2),
		RunE: e.runSed,
	}
	c.Flags().BoolP(extension.FlagInPlace, "i", false, "Edit in place (required)")
	return c
}

func (e *Extension) runSed(c *cobra.Command, args []string) error {
	inPlace, _ := c.Flags().GetBool(extension.FlagInPlace)
	if !inPlace {
		return cmd.PrintJSONError(errors.New("the -i flag is required (sed only supports in-place editing)"))
	}

	expr, doc := args[0], args[1]

	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}

	result, err := sed.Run(cmd.Context(c), w, e.svc, doc, expr)

	log.Event("edit:sed", "replace").
		Author(cmd.Author()).
		Doc(doc).
		Detail("expr", expr).
		Detail("count", result.Count).
		Write(err)

	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("sed %q: %w", doc, err))
	}
	return cmd.PrintJSON(result)
}

// --- replace command ---

func (e *Extension) newReplaceCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "replace <doc> [old] [new]",
		Short: "Replace literal text across a document",
		Long: `Replace every occurrence of text in the preamble and section bodies.

  quill replace reports/q3 "Q2" "Q3"
  quill replace reports/q3 --old "draft" --new "final" --ignore-case`,
		Args: cobra.RangeArgs(1, 3),
		RunE: e.runReplace,
	}
	c.Flags().String(extension.FlagOld, "", "Text to find")
	c.Flags().String(extension.FlagNew, "", "Text to replace with")
	c.Flags().Bool(extension.FlagIgnoreCase, false, "Case-insensitive matching")
	c.Flags().Bool(extension.FlagRegexp, false, "Treat old as a regular expression")
	return c
}

func (e *Extension) runReplace(c *cobra.Command, args []string) error {
	old, _ := c.Flags().GetString(extension.FlagOld)
	newStr, _ := c.Flags().GetString(extension.FlagNew)
	ignoreCase, _ := c.Flags().GetBool(extension.FlagIgnoreCase)
	re, _ := c.Flags().GetBool(extension.FlagRegexp)
	if len(args) == 3 {
		old, newStr = args[1], args[2]
	}
	doc := args[0]
	if old == "" {
		return cmd.PrintJSONError(errors.New("old text is required (use positional args or --old)"))
	}

	res, err := e.svc.Replace(cmd.Context(c), doc, old, newStr, section.ReplaceOptions{
		CaseSensitive: !ignoreCase,
		Regexp:        re,
	})

	log.Event("edit:replace", "replace").
		Author(cmd.Author()).
		Doc(doc).
		Detail("count", res.Count).
		Write(err)

	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("replace %q: %w", doc, err))
	}
	if cmd.JSON() {
		return cmd.PrintJSON(sed.Result{Doc: doc, ReplaceResult: res})
	}
	fmt.Fprintf(cmd.Out(), "Replaced %d occurrence(s) in %s\n", res.Count, doc)
	return nil
}
