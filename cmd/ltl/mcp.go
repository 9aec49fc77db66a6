package main

import (
	"github.com/spf13/cobra"

	"ltl/internal/agent"
	"ltl/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the built-in tools over MCP stdio",
		Long: `Runs an MCP (Model Context Protocol) server on stdin/stdout so other
agents can call ltl's tools. Logs go to stderr or general.logFile.`,
		Example: `  # claude_desktop_config.json
  # {"mcpServers": {"ltl": {"command": "ltl", "args": ["mcp"]}}}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.shutdown()
			return mcpserver.New(a.registry, agent.Version, logger).Serve()
		},
	}
}
