// api.go implements the "quill api" command, the HTTP JSON API.

package core

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpl-au/quill/cmd"
	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/api"
	"github.com/spf13/cobra"
)

// tokenEnv names the environment variable holding the API bearer token.
const tokenEnv = "QUILL_API_TOKEN"

func newAPICmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "api",
		Short: "Start the HTTP API server",
		Long: `Serve the workspace as a JSON API over HTTP.

Mutations take their lock owner from the X-Quill-Author header. When
QUILL_API_TOKEN is set every /api request must carry it as a bearer token.

Examples:
  quill api
  quill api --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: runAPI,
	}
	c.Flags().String(extension.FlagAddr, ":8080", "Listen address")
	return c
}

func runAPI(c *cobra.Command, _ []string) error {
	addr, _ := c.Flags().GetString(extension.FlagAddr)

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(cmd.Out(), nil))
	return api.Serve(ctx, cmd.Dir(), addr, api.Options{Token: os.Getenv(tokenEnv)}, logger)
}
