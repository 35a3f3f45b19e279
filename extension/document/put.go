// put.go implements the "quill put" command for writing a whole document.

package document

import (
	"fmt"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/spf13/cobra"
)

type putResult struct {
	Doc     string `json:"doc"`
	Markers int    `json:"markers_added"`
}

func (e *Extension) newPutCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "put <doc>",
		Short: "Write a whole document",
		Long: `Write a complete markdown document from --file or stdin. Headings without
section markers are annotated first. The metadata block is validated.

An existing document is only replaced with --overwrite.

Examples:
  quill put reports/q3 -f q3.md
  cat q3.md | quill put reports/q3 --overwrite`,
		Args: cobra.ExactArgs(1),
		RunE: e.runPut,
	}
	c.Flags().StringP(extension.FlagFile, "f", "", "Read content from file")
	c.Flags().Bool(extension.FlagOverwrite, false, "Replace an existing document")
	return c
}

func (e *Extension) runPut(c *cobra.Command, args []string) error {
	doc := args[0]
	content, err := readContent(c, args, 1)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	overwrite, _ := c.Flags().GetBool(extension.FlagOverwrite)

	annotated, n := marker.Annotate([]byte(content))
	err = e.svc.Put(cmd.Context(c), doc, annotated, overwrite)
	log.Event("document:put", "put").Author(cmd.Author()).Doc(doc).Detail("markers", n).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	if cmd.JSON() {
		return cmd.PrintJSON(putResult{Doc: doc, Markers: n})
	}
	fmt.Fprintf(cmd.Out(), "Wrote %s (%d marker(s) added)\n", doc, n)
	return nil
}
