// grep.go implements the "quill grep" command for regex search across
// section bodies.

package search

import (
	"fmt"
	"io"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/grep"
	"github.com/jpl-au/quill/internal/log"
	"github.com/spf13/cobra"
)

func (e *Extension) newGrepCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "grep <pattern> [prefix]",
		Short: "Search sections using regex",
		Long: `Search section bodies and headings with a regular expression, like Unix
grep. The metadata block and section markers are never searched. JSON output
names the section each match belongs to.

  quill grep "TODO"                     # every document
  quill grep "risk|issue" reports       # under a prefix
  quill grep -i "budget" --glob "**/q*" # ids matching a pattern
  quill grep -l "draft"                 # matching document ids only
  quill grep "owner" --section Risks    # one section only`,
		Args: cobra.RangeArgs(1, 2),
		RunE: e.runGrep,
	}
	c.Flags().BoolP(extension.FlagFilesWithMatch, "l", false, "Only print ids of matching documents")
	c.Flags().BoolP(extension.FlagIgnoreCase, "i", false, "Ignore case distinctions")
	c.Flags().BoolP(extension.FlagInvertMatch, "v", false, "Select non-matching lines")
	c.Flags().BoolP(extension.FlagCount, "c", false, "Only print the match count per document")
	c.Flags().IntP(extension.FlagContext, "C", 0, "Print N lines of context around matches")
	c.Flags().String(extension.FlagGlob, "", "Only documents whose id matches this pattern")
	c.Flags().String(extension.FlagSection, "", "Only lines inside this section")
	return c
}

func (e *Extension) runGrep(c *cobra.Command, args []string) error {
	pattern := args[0]
	prefix := ""
	if len(args) > 1 {
		prefix = args[1]
	}

	pathsOnly, _ := c.Flags().GetBool(extension.FlagFilesWithMatch)
	ignoreCase, _ := c.Flags().GetBool(extension.FlagIgnoreCase)
	invert, _ := c.Flags().GetBool(extension.FlagInvertMatch)
	countOnly, _ := c.Flags().GetBool(extension.FlagCount)
	lines, _ := c.Flags().GetInt(extension.FlagContext)
	idGlob, _ := c.Flags().GetString(extension.FlagGlob)
	sec, _ := c.Flags().GetString(extension.FlagSection)

	if lines < 0 {
		return cmd.PrintJSONError(fmt.Errorf("context lines (-C) must be >= 0, got %d", lines))
	}

	w := cmd.Out()
	if cmd.JSON() {
		w = io.Discard
	}

	result, err := grep.Run(cmd.Context(c), w, e.svc, pattern, grep.Options{
		Prefix:     prefix,
		Glob:       idGlob,
		Section:    sec,
		IgnoreCase: ignoreCase,
		Invert:     invert,
		PathsOnly:  pathsOnly,
		CountOnly:  countOnly,
		Context:    lines,
	})

	log.Event("search:grep", "search").
		Author(cmd.Author()).
		Detail("pattern", pattern).
		Detail("count", result.Total).
		Write(err)

	if err != nil {
		return cmd.PrintJSONError(fmt.Errorf("grep %q: %w", pattern, err))
	}
	if cmd.JSON() {
		if result.Hits == nil {
			result.Hits = []grep.DocMatch{}
		}
		return cmd.PrintJSON(result)
	}
	return nil
}
