package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run omnimemory as an MCP server on stdio with the maintenance scheduler
enabled. When OMNI_METRICS_ADDR is set, /metrics and /health are served on
that address as well.

Example MCP client entry:
  {"command": "omni", "args": ["serve"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Serve(cmd.Context(), Version, cfg.MetricsAddr, svc, logger)
	},
}
