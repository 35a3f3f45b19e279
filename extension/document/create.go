// create.go implements the "quill create" command.

package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/spf13/cobra"
)

type createResult struct {
	Doc      string          `json:"doc"`
	Metadata marker.Metadata `json:"metadata"`
}

func (e *Extension) newCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create <doc>",
		Short: "Create a document",
		Long: `Create a new document holding only its metadata block.

The author comes from --author or the author.name setting. The date
defaults to today and the status to draft.

Examples:
  quill create reports/q3 --title "Q3 Report"
  quill create reports/q3 --title "Q3 Report" --tags finance,quarterly
  quill create notes --title Notes --meta owner=ops --meta team=infra`,
		Args: cobra.ExactArgs(1),
		RunE: e.runCreate,
	}
	c.Flags().StringP(extension.FlagTitle, "t", "", "Document title (required)")
	c.Flags().String(extension.FlagDate, "", "Date (YYYY-MM-DD, default today)")
	c.Flags().String(extension.FlagStatus, "", "Status: draft, review or final")
	c.Flags().String(extension.FlagTags, "", "Comma-separated tags")
	c.Flags().StringArray(extension.FlagMeta, nil, "Extra key=value metadata (repeatable)")
	_ = c.MarkFlagRequired(extension.FlagTitle)
	return c
}

func (e *Extension) runCreate(c *cobra.Command, args []string) error {
	doc := args[0]
	title, _ := c.Flags().GetString(extension.FlagTitle)
	date, _ := c.Flags().GetString(extension.FlagDate)
	status, _ := c.Flags().GetString(extension.FlagStatus)
	tags, _ := c.Flags().GetString(extension.FlagTags)
	extra, _ := c.Flags().GetStringArray(extension.FlagMeta)

	meta := marker.NewMetadata(title, cmd.Author(), time.Now())
	if date != "" {
		meta[marker.KeyDate] = date
	}
	if status != "" {
		meta[marker.KeyStatus] = status
	}
	if tags != "" {
		meta[marker.KeyTags] = marker.ParseValue(marker.KeyTags, tags)
	}
	for _, kv := range extra {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return cmd.PrintJSONError(fmt.Errorf("invalid --meta %q: expected key=value", kv))
		}
		meta[k] = marker.ParseValue(k, v)
	}

	err := e.svc.Create(cmd.Context(c), doc, meta)
	log.Event("document:create", "create").Author(cmd.Author()).Doc(doc).Write(err)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	if cmd.JSON() {
		return cmd.PrintJSON(createResult{Doc: doc, Metadata: meta})
	}
	fmt.Fprintf(cmd.Out(), "Created %s\n", doc)
	return nil
}
