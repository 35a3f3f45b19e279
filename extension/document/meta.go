// meta.go implements the "quill meta" command for reading and setting
// document metadata.

package document

import (
	"fmt"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/log"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/spf13/cobra"
)

func (e *Extension) newMetaCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "meta <doc> [key] [value]",
		Short: "Show or set document metadata",
		Long: `With only a document, print its metadata block. With a key, print that
value. With a key and value, set it. Tags take a comma-separated list.

Examples:
  quill meta reports/q3
  quill meta reports/q3 status review
  quill meta reports/q3 tags finance,q3
  quill meta reports/q3 owner --unset`,
		Args: cobra.RangeArgs(1, 3),
		RunE: e.runMeta,
	}
	c.Flags().Bool(extension.FlagUnset, false, "Remove the key")
	return c
}

func (e *Extension) runMeta(c *cobra.Command, args []string) error {
	ctx := cmd.Context(c)
	doc := args[0]
	unset, _ := c.Flags().GetBool(extension.FlagUnset)

	if len(args) == 3 || unset {
		if len(args) < 2 {
			return cmd.PrintJSONError(fmt.Errorf("--unset needs a key"))
		}
		key := args[1]
		var value any
		if !unset {
			if len(args) < 3 {
				return cmd.PrintJSONError(fmt.Errorf("missing value for %q", key))
			}
			value = marker.ParseValue(key, args[2])
		}
		err := e.svc.SetMetadata(ctx, doc, key, value)
		log.Event("document:meta", "set").Author(cmd.Author()).Doc(doc).Detail("key", key).Write(err)
		if err != nil {
			return cmd.PrintJSONError(err)
		}
	}

	m, err := e.svc.Metadata(ctx, doc)
	if err != nil {
		return cmd.PrintJSONError(err)
	}

	if len(args) == 2 && !unset {
		key := args[1]
		if cmd.JSON() {
			return cmd.PrintJSON(map[string]any{"doc": doc, "key": key, "value": m[key]})
		}
		if _, ok := m[key]; ok {
			fmt.Fprintln(cmd.Out(), m.String(key))
		}
		return nil
	}

	if cmd.JSON() {
		return cmd.PrintJSON(m)
	}
	fmt.Fprint(cmd.Out(), string(marker.EncodeFront(m)))
	return nil
}
