package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/internal/store/sqlite"
	"github.com/flemzord/toolgate/pkg/app"
)

func decisionsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Manage persisted approval decisions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List persisted decisions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDecisions(cmd, g, func(s *sqlite.DecisionStore) error {
					rows, err := s.List(cmd.Context())
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TOOL\tAPPROVED\tUPDATED\tARGUMENTS")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n",
							r.Key.ToolName, r.Decision.Approved, r.UpdatedAt.Format(time.RFC3339), r.Key.Args)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "forget [tool]",
			Short: "Delete persisted decisions for one tool, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var name string
				if len(args) == 1 {
					name = args[0]
				}
				return withDecisions(cmd, g, func(s *sqlite.DecisionStore) error {
					n, err := s.Forget(cmd.Context(), name)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "Forgot %d decisions\n", n)
					return err
				})
			},
		},
	)
	return cmd
}

func withDecisions(cmd *cobra.Command, g *globalFlags, fn func(*sqlite.DecisionStore) error) error {
	return withApp(cmd, g, func(a *app.App) error {
		if a.Decisions == nil {
			return errors.New("approval.decisions_db is not configured")
		}
		return fn(a.Decisions)
	})
}
