/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// flags.go defines global CLI flags and accessors for shared state.
//
// Extensions read flag values through the exported accessors rather than
// the variables, so they don't couple to cobra internals.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/section"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var validOutputFormats = []string{"json"}

var (
	output string
	author string
	force  bool
	dir    string
)

// out is the output writer for commands. Defaults to os.Stdout.
// Tests can replace this to capture output.
var out io.Writer = os.Stdout

// Out returns the output writer.
func Out() io.Writer { return out }

// Output returns the output format flag value.
func Output() string { return output }

// Author returns the author flag value, falling back to config author.name.
func Author() string { return author }

// Force returns the force flag value.
func Force() bool { return force }

// Dir returns the explicit workspace directory if set.
// Priority: --dir flag > QUILL_DIR env var > empty (use discovery).
func Dir() string {
	if dir != "" {
		return dir
	}
	return os.Getenv("QUILL_DIR")
}

// Context returns the command's context carrying the author as lock owner.
// Without an author the service attributes locks to pid@host.
func Context(c *cobra.Command) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if author != "" {
		ctx = section.WithOwner(ctx, author)
	}
	return ctx
}

// SetOut sets the output writer (for testing).
func SetOut(w io.Writer) { out = w }

// JSON returns true if JSON output is requested.
func JSON() bool { return output == "json" }

// PrintJSON marshals v to JSON and writes it to the output writer.
// Returns nil if output format is not JSON.
func PrintJSON(v any) error {
	if output != "json" {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(out, string(b))
	return nil
}

// PrintJSONError prints an error in JSON format if output is JSON. Typed
// errors add their kind, code and suggestion under "failure".
// Returns nil if error was printed (suppressing Cobra error), or the original error if not.
func PrintJSONError(err error) error {
	if output != "json" || err == nil {
		return err
	}
	v := map[string]any{"error": err.Error()}
	if fe, ok := failure.As(err); ok {
		v["failure"] = fe
	}
	_ = PrintJSON(v)
	return nil
}

// PrintMarkdown writes markdown to the output writer, rendered with glamour
// when stdout is a terminal and raw is false.
func PrintMarkdown(content string, raw bool) {
	if !raw && term.IsTerminal(int(os.Stdout.Fd())) {
		if rendered, err := glamour.Render(content, "dark"); err == nil {
			fmt.Fprint(out, rendered)
			return
		}
	}
	fmt.Fprint(out, content)
}

// detectAuthor resolves the default author from config.
// Returns empty string when config is missing or has no author set.
func detectAuthor() string {
	var cfg *config.Config
	var err error
	if d := Dir(); d != "" {
		cfg, err = config.LoadFor(d)
	} else {
		cfg, err = config.Load()
	}
	if err == nil && cfg.Author.Name != "" {
		return cfg.Author.Name
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format: json")
	rootCmd.PersistentFlags().StringVarP(&author, "author", "a", "", "Lock owner and metadata author")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Skip confirmations")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "", "Workspace directory (skip discovery, use explicit path)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return validOutputFormats, cobra.ShellCompDirectiveNoFileComp
	})
}
