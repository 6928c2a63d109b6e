// Package main is the entry point for the toolgate CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that builds the app.
type globalFlags struct {
	config   string
	logLevel string
	approval string
}

func rootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "A permission-gated tool registry for LLM agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.approval, "approval", "", "Override approval.mode (terminal, remote, auto, deny)")

	root.AddCommand(
		versionCmd(),
		serveCmd(&g),
		mcpCmd(&g),
		toolsCmd(&g),
		rulesCmd(&g),
		runCmd(&g),
		scriptCmd(&g),
		cacheCmd(&g),
		decisionsCmd(&g),
		configCmd(&g),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolgate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// openApp builds the application from the global flags. Logs go to the
// command's error stream so stdout stays clean for results.
func openApp(cmd *cobra.Command, g *globalFlags) (*app.App, error) {
	return app.Build(cmd.Context(), app.Params{
		ConfigPath:   g.config,
		Version:      version,
		LogOutput:    cmd.ErrOrStderr(),
		LogLevel:     g.logLevel,
		ApprovalMode: g.approval,
	})
}

// withApp runs fn against a built app and closes it afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(*app.App) error) (err error) {
	a, err := openApp(cmd, g)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
