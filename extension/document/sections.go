// sections.go implements the section commands: append, edit, exists,
// sections and rm. Each mutation takes the section or document lock for
// the duration of the write.

package document

import (
	"fmt"
	"text/tabwriter"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/format"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/section"
	"github.com/spf13/cobra"
)

type sectionResult struct {
	Doc   string `json:"doc"`
	Title string `json:"title"`
}

func (e *Extension) newAppendCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "append <doc> <title> [content]",
		Short: "Append a section",
		Long: `Append a new section to a document. Content comes from the argument,
--file, or stdin.

Titles must be unique within a document. --allow-duplicate merges the content
into an existing section instead of failing.

Examples:
  quill append reports/q3 Intro "Revenue grew 4%."
  quill append reports/q3 Results -f results.md
  quill append reports/q3 Notes --after Intro --level 3 < notes.md`,
		Args: cobra.RangeArgs(2, 3),
		RunE: e.runAppend,
	}
	c.Flags().StringP(extension.FlagFile, "f", "", "Read content from file")
	c.Flags().Bool(extension.FlagAllowDuplicate, false, "Merge into an existing section with the same title")
	c.Flags().Int(extension.FlagLevel, 0, "Heading level 1-6 (default 2)")
	c.Flags().String(extension.FlagAfter, "", "Insert after this section instead of at the end")
	return c
}

func (e *Extension) runAppend(c *cobra.Command, args []string) error {
	doc, title := args[0], args[1]
	content, err := readContent(c, args, 2)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	dup, _ := c.Flags().GetBool(extension.FlagAllowDuplicate)
	level, _ := c.Flags().GetInt(extension.FlagLevel)
	after, _ := c.Flags().GetString(extension.FlagAfter)

	err = e.svc.Append(cmd.Context(c), doc, title, content, section.AppendOptions{
		AllowDuplicate: dup,
		Level:          level,
		After:          after,
	})
	log.Event("document:append", "append").Author(cmd.Author()).Doc(doc).Scope(title).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	if cmd.JSON() {
		return cmd.PrintJSON(sectionResult{Doc: doc, Title: title})
	}
	fmt.Fprintf(cmd.Out(), "Appended %s to %s\n", title, doc)
	return nil
}

func (e *Extension) newEditCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "edit <doc> <title> [content]",
		Short: "Replace a section body",
		Long: `Replace the body of one section. Only that section is locked, so other
sections of the same document can be edited at the same time.

Examples:
  quill edit reports/q3 Intro "Revenue grew 5%."
  quill edit reports/q3 Results -f results.md`,
		Args: cobra.RangeArgs(2, 3),
		RunE: e.runEdit,
	}
	c.Flags().StringP(extension.FlagFile, "f", "", "Read content from file")
	return c
}

func (e *Extension) runEdit(c *cobra.Command, args []string) error {
	doc, title := args[0], args[1]
	content, err := readContent(c, args, 2)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	err = e.svc.Edit(cmd.Context(c), doc, title, content)
	log.Event("document:edit", "edit").Author(cmd.Author()).Doc(doc).Scope(title).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	if cmd.JSON() {
		return cmd.PrintJSON(sectionResult{Doc: doc, Title: title})
	}
	fmt.Fprintf(cmd.Out(), "Edited %s in %s\n", title, doc)
	return nil
}

func (e *Extension) newExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <doc> <title>",
		Short: "Check whether a section exists",
		Long: `Print true or false. Titles are matched exactly. A missing document is
an error.`,
		Args: cobra.ExactArgs(2),
		RunE: e.runExists,
	}
}

func (e *Extension) runExists(c *cobra.Command, args []string) error {
	doc, title := args[0], args[1]
	ok, err := e.svc.Exists(cmd.Context(c), doc, title)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(map[string]any{"doc": doc, "title": title, "exists": ok})
	}
	fmt.Fprintln(cmd.Out(), ok)
	return nil
}

func (e *Extension) newSectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections <doc>",
		Short: "List the sections of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  e.runSections,
	}
}

func (e *Extension) runSections(c *cobra.Command, args []string) error {
	infos, err := e.svc.List(cmd.Context(c), args[0])
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		if infos == nil {
			infos = []section.Info{}
		}
		return cmd.PrintJSON(infos)
	}
	w := tabwriter.NewWriter(cmd.Out(), 0, 2, 2, ' ', 0)
	for _, info := range infos {
		fmt.Fprintf(w, "h%d\t%s\t%s\n", info.Level, info.Title, format.Size(info.Size))
	}
	return w.Flush()
}

func (e *Extension) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <doc> <title>",
		Short: "Delete a section",
		Args:  cobra.ExactArgs(2),
		RunE:  e.runRm,
	}
}

func (e *Extension) runRm(c *cobra.Command, args []string) error {
	doc, title := args[0], args[1]
	err := e.svc.Delete(cmd.Context(c), doc, title)
	log.Event("document:rm", "delete").Author(cmd.Author()).Doc(doc).Scope(title).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(sectionResult{Doc: doc, Title: title})
	}
	fmt.Fprintf(cmd.Out(), "Deleted %s from %s\n", title, doc)
	return nil
}
