package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/internal/pipeline"
	"github.com/flemzord/toolgate/pkg/app"
)

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage untruncated result files",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached results, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, func(c *pipeline.Cache) error {
					entries, err := c.List()
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "FILE\tMODIFIED")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%s\n", filepath.Base(e.Path), e.ModTime.Format(time.RFC3339))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "show <file>",
			Short: "Print one cached result",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd, g, func(c *pipeline.Cache) error {
					e, err := c.Read(args[0])
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "tool: %s\narguments: %s\n\n", e.Tool, e.Arguments)
					_, err = fmt.Fprintln(out, e.Text)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Remove all but the newest results.keep files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, func(c *pipeline.Cache) error {
					n, err := c.Prune()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files from %s\n", n, c.Dir())
					return err
				})
			},
		},
	)
	return cmd
}

func withCache(cmd *cobra.Command, g *globalFlags, fn func(*pipeline.Cache) error) error {
	return withApp(cmd, g, func(a *app.App) error {
		if _, err := a.CacheDir(); err != nil {
			return err
		}
		return fn(a.Cache)
	})
}
