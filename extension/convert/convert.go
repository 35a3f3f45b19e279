// Package convert provides the convert extension, which runs a document
// through the conversion pipeline and waits for the result.
package convert

import (
	"fmt"
	"strings"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/progress"
	"github.com/jpl-au/quill/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	extension.Register(&Extension{})
}

// Extension implements the convert extension.
type Extension struct {
	svc service.Service
}

var (
	_ extension.Extension     = (*Extension)(nil)
	_ extension.Initializable = (*Extension)(nil)
)

// Name returns "convert".
func (e *Extension) Name() string { return "convert" }

// Init receives the shared service.
func (e *Extension) Init(ctx extension.Context) error {
	e.svc = ctx.Service()
	return nil
}

// Commands returns the convert command.
func (e *Extension) Commands() []*cobra.Command {
	return []*cobra.Command{e.newConvertCmd()}
}

// MCPTools returns nil - conversion tools are provided by internal/mcp.
func (e *Extension) MCPTools() []extension.MCPTool {
	return nil
}

func (e *Extension) newConvertCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "convert <doc>",
		Short: "Convert a document to another format",
		Long: `Convert a document to md, html, pdf, docx or latex. Section markers are
stripped. When the target engine fails or is unavailable the next format in
the fallback chain is tried (configure with convert.fallback.<format>).

Output goes to <output dir>/<doc>.<ext>; existing files are only replaced
with --overwrite.

Examples:
  quill convert reports/q3 --to pdf
  quill convert reports/q3 --to docx --fallback html,md
  quill convert reports/q3 --to pdf --no-fallback --overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: e.runConvert,
	}
	c.Flags().String(extension.FlagTo, "html", "Target format: "+formatList())
	c.Flags().String(extension.FlagFallback, "", "Comma-separated fallback formats (overrides config)")
	c.Flags().Bool(extension.FlagNoFallback, false, "Attempt the target format only")
	c.Flags().Bool(extension.FlagOverwrite, false, "Replace an existing output file")
	c.Flags().Int(extension.FlagPriority, 0, "Queue priority (higher runs first)")
	_ = c.RegisterFlagCompletionFunc(extension.FlagTo, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return strings.Split(formatList(), ", "), cobra.ShellCompDirectiveNoFileComp
	})
	return c
}

func formatList() string {
	var names []string
	for _, f := range convert.Formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func (e *Extension) request(c *cobra.Command, doc string) (convert.Request, error) {
	to, _ := c.Flags().GetString(extension.FlagTo)
	fallback, _ := c.Flags().GetString(extension.FlagFallback)
	noFallback, _ := c.Flags().GetBool(extension.FlagNoFallback)
	overwrite, _ := c.Flags().GetBool(extension.FlagOverwrite)
	priority, _ := c.Flags().GetInt(extension.FlagPriority)

	target, err := convert.ParseFormat(to)
	if err != nil {
		return convert.Request{}, failure.Validation(failure.CodeInvalidContent, "unknown target format").
			With("to", to).
			Suggest("use one of " + formatList()).
			Wrap(err)
	}
	req := convert.Request{
		Doc:        doc,
		Target:     target,
		Priority:   priority,
		NoFallback: noFallback,
		Overwrite:  overwrite,
	}
	if fallback != "" && !noFallback {
		req.Fallback = []convert.Format{}
		for name := range strings.SplitSeq(fallback, ",") {
			f, err := convert.ParseFormat(name)
			if err != nil {
				return convert.Request{}, failure.Validation(failure.CodeInvalidContent, "unknown fallback format").
					With("fallback", name).
					Wrap(err)
			}
			req.Fallback = append(req.Fallback, f)
		}
	}
	return req, nil
}

func (e *Extension) runConvert(c *cobra.Command, args []string) error {
	doc := args[0]
	req, err := e.request(c, doc)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	ctx := cmd.Context(c)

	task, err := e.svc.Schedule(ctx, req)
	if err == nil {
		spin := progress.NewSpinner(fmt.Sprintf("Converting %s to %s", doc, req.Target))
		spin.Start()
		task, err = e.svc.Wait(ctx, task.ID)
		spin.Stop()
		if err == nil && task.Err != nil {
			err = task.Err
		}
	}

	log.Event("convert:convert", "convert").
		Author(cmd.Author()).
		Doc(doc).
		Detail("target", string(req.Target)).
		Detail("format", string(task.Format)).
		Detail("state", string(task.State)).
		Write(err)

	if cmd.JSON() && task.ID != "" {
		if perr := cmd.PrintJSON(task); perr != nil {
			return perr
		}
		if err != nil {
			c.SilenceErrors = true
			c.SilenceUsage = true
		}
		return err
	}
	if err != nil {
		printAttempts(task)
		return cmd.PrintJSONError(err)
	}

	if task.State == convert.FallbackSucceeded {
		fmt.Fprintf(cmd.Out(), "%s unavailable, fell back to %s\n", req.Target, task.Format)
	}
	for _, w := range task.Warnings {
		fmt.Fprintf(cmd.Out(), "warning: %s\n", w)
	}
	fmt.Fprintf(cmd.Out(), "Wrote %s\n", task.Output)
	return nil
}

// printAttempts lists each failed engine attempt.
func printAttempts(task convert.Task) {
	for _, a := range task.Attempts {
		if a.Error != "" {
			fmt.Fprintf(cmd.Out(), "  %s via %s: %s\n", a.Format, a.Engine, a.Error)
		}
	}
}
