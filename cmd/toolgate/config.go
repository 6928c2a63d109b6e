package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/pkg/app"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [path]",
			Short: "Validate configuration and wire every component",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				local := *g
				if len(args) == 1 {
					local.config = args[0]
				}
				return withApp(cmd, &local, func(a *app.App) error {
					source := a.ConfigPath
					if source == "" {
						source = "built-in defaults"
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Configuration OK (%s)\n", source)
					fmt.Fprintf(out, "  approval mode: %s\n", a.Config.Approval.Mode)
					fmt.Fprintf(out, "  tools: %d (%d enabled)\n",
						len(a.Registry.Definitions()), len(a.Registry.EnabledDefinitions()))
					fmt.Fprintf(out, "  groups: %d\n", len(a.Registry.Groups()))
					if a.Providers != nil {
						for _, st := range a.Providers.Status() {
							fmt.Fprintf(out, "  provider: %s (%s)\n", st.Name, st.Model)
						}
					}
					for _, job := range a.Scheduler.Jobs() {
						fmt.Fprintf(out, "  job: %s\n", job)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, g, func(a *app.App) error {
					raw, err := yaml.Marshal(a.Config)
					if err != nil {
						return fmt.Errorf("encode config: %w", err)
					}
					_, err = fmt.Fprint(cmd.OutOrStdout(), a.Redactor.Redact(string(raw)))
					return err
				})
			},
		},
	)
	return cmd
}
