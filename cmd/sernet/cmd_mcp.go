package main

import (
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sernet/internal/logging"
	"github.com/nvandessel/sernet/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve simulation tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: ser_simulate, ser_runs, ser_run, ser_config. Relative paths in tool
arguments resolve against --root, and runs are recorded in the registry
there. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			level, _ := cmd.Flags().GetString("log-level")
			if level == "" {
				level = "info"
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "sernet",
				Version: version,
				Root:    root,
				Logger:  logging.NewLogger(level, cmd.ErrOrStderr()),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()

			return server.Run(ctx)
		},
	}
}
