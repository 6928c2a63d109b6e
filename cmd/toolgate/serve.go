package main

import (
	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/pkg/app"
)

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app.App) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve enabled tools over MCP on stdin and stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return withApp(cmd, g, func(a *app.App) error {
				return a.ServeMCP(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}
