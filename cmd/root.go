/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// root.go defines the root command and CLI execution entry point.
//
// PersistentPreRunE opens the service lazily: only commands that need a
// workspace trigger extension init, so init, guide and config work before a
// workspace exists. The noStoreCommands map controls which commands skip it.

package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/jpl-au/quill/internal/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Section-addressable markdown documents for concurrent agents",
	Long: `quill edits markdown documents section by section. Every section carries a
hidden marker so agents can address it by title, edit it under a section lock
while others edit their own sections, snapshot and restore whole documents,
and convert them to HTML, PDF, DOCX or LaTeX with automatic fallback.

  quill init
  quill create reports/q3 --title "Q3 Report"
  quill append reports/q3 Intro "Revenue grew."
  quill get reports/q3 Intro
  quill convert reports/q3 --to pdf`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if output != "" && !slices.Contains(validOutputFormats, output) {
			return fmt.Errorf("invalid output format: %s (valid: %v)", output, validOutputFormats)
		}

		if author == "" {
			author = detectAuthor()
		}

		cmdName := topLevelCmdName(cmd)
		if authorRequiredCommands[cmdName] && author == "" {
			return fmt.Errorf("author not configured (checked .quill/config.yaml and ~/.quill/config.yaml)\n\nRun: quill config author.name \"Your Name\"\n\nOr pass --author.")
		}

		if !noStoreCommands[cmdName] {
			if err := initExtensions(); err != nil {
				if JSON() {
					_ = PrintJSONError(err)
					cmd.SilenceErrors = true
					cmd.SilenceUsage = true
				}
				return fmt.Errorf("initialise extensions: %w", err)
			}
		}

		return nil
	},
}

// topLevelCmdName returns the name of the top-level command (direct child of root).
// For "quill get docs/readme Intro", returns "get".
// For "quill lock release docs/readme", returns "lock".
func topLevelCmdName(cmd *cobra.Command) string {
	for cmd.HasParent() && cmd.Parent().HasParent() {
		cmd = cmd.Parent()
	}
	return cmd.Name()
}

// Execute runs the root command and handles process lifecycle.
// Opens audit logging, registers extensions, executes the command, and closes
// the document service before exit. Exit code 1 indicates error.
func Execute() {
	if err := log.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
	}
	defer log.Close()

	registerExtensions()
	err := rootCmd.Execute()

	if extService != nil {
		if closeErr := extService.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: closing service: %v\n", closeErr)
		}
	}

	if err != nil {
		log.Close()
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing and extension access.
func RootCmd() *cobra.Command {
	return rootCmd
}
