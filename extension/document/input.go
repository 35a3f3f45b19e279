package document

import (
	"fmt"
	"io"
	"os"

	"github.com/jpl-au/quill/extension"
	"github.com/spf13/cobra"
)

// readContent returns args[i] when present, else the --file contents, else
// stdin. A --file of "-" also reads stdin.
func readContent(c *cobra.Command, args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	file, _ := c.Flags().GetString(extension.FlagFile)
	if file != "" && file != "-" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read file %q: %w", file, err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(c.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}
