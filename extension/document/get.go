// get.go implements the "quill get" command for reading documents and
// sections.
//
// Terminal output is rendered with glamour; pipes get raw markdown.

package document

import (
	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/spf13/cobra"
)

var errSectionVersion = failure.Validation(failure.CodeInvalidContent, "--version reads whole documents only").
	Suggest("drop the title, or run quill get <doc> --version n")

func (e *Extension) newGetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <doc> [title]",
		Short: "Read a document or one section",
		Long: `Print one section body exactly as written, or the whole document when no
title is given. --version reads a snapshot.

Examples:
  quill get reports/q3 Intro
  quill get reports/q3 --raw
  quill get reports/q3 --version 2`,
		Args: cobra.RangeArgs(1, 2),
		RunE: e.runGet,
	}
	c.Flags().IntP(extension.FlagVersion, "v", 0, "Read a snapshot instead of the current document")
	c.Flags().Bool(extension.FlagRaw, false, "Output raw markdown without rendering")
	return c
}

func (e *Extension) runGet(c *cobra.Command, args []string) error {
	ctx := cmd.Context(c)
	doc := args[0]
	ver, _ := c.Flags().GetInt(extension.FlagVersion)
	raw, _ := c.Flags().GetBool(extension.FlagRaw)

	if len(args) == 2 {
		if ver > 0 {
			return cmd.PrintJSONError(errSectionVersion)
		}
		body, err := e.svc.Get(ctx, doc, args[1])
		if err != nil {
			return cmd.PrintJSONError(err)
		}
		if cmd.JSON() {
			return cmd.PrintJSON(map[string]string{"doc": doc, "title": args[1], "body": body})
		}
		cmd.PrintMarkdown(body, raw)
		return nil
	}

	var b []byte
	var err error
	if ver > 0 {
		b, err = e.svc.Version(ctx, doc, ver)
	} else {
		b, err = e.svc.Read(ctx, doc)
	}
	if err != nil {
		return cmd.PrintJSONError(err)
	}
	if cmd.JSON() {
		return cmd.PrintJSON(map[string]any{"doc": doc, "version": ver, "content": string(b)})
	}
	cmd.PrintMarkdown(string(b), raw)
	return nil
}
