package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/internal/script"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/pkg/app"
)

// errCallFailed is returned when a tool call ends in a non-success status.
// The result itself has already been printed.
var errCallFailed = errors.New("tool call did not succeed")

func toolsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tools with their group, state and effective permission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app.App) error {
				return printTools(cmd.OutOrStdout(), a.Registry, asJSON)
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print definitions as JSON")

	cmd.AddCommand(list)
	return cmd
}

type toolRow struct {
	tool.Definition
	Group      string          `json:"group,omitempty"`
	Enabled    bool            `json:"enabled"`
	Permission tool.Permission `json:"permission"`
}

func printTools(w io.Writer, reg *tool.Registry, asJSON bool) error {
	groupOf := make(map[string]string)
	for _, gi := range reg.Groups() {
		for _, name := range gi.Tools {
			groupOf[name] = gi.Name
		}
	}

	defs := reg.Definitions()
	rows := make([]toolRow, 0, len(defs))
	for _, d := range defs {
		perm, err := reg.EffectivePermission(d.Name)
		if err != nil {
			return err
		}
		rows = append(rows, toolRow{
			Definition: d,
			Group:      groupOf[d.Name],
			Enabled:    reg.IsToolEnabled(d.Name),
			Permission: perm,
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGROUP\tENABLED\tEXECUTION\tRESULT")
	for _, r := range rows {
		group := r.Group
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", r.Name, group, r.Enabled, r.Permission.Execution, r.Permission.Result)
	}
	return tw.Flush()
}

func rulesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the usage rules of enabled tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app.App) error {
				rules := a.Registry.ToolRules()
				if rules == "" {
					return nil
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), rules)
				return err
			})
		},
	}
}

func runCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <tool> [json-arguments]",
		Short: "Execute one tool through the full approval and result pipeline",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := json.RawMessage(`{}`)
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			return withApp(cmd, g, func(a *app.App) error {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()
				res := a.Registry.Execute(ctx, args[0], raw, tool.ExecuteOptions{})
				return printResult(cmd.OutOrStdout(), res, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func scriptCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON  bool
		timeout int
	)
	cmd := &cobra.Command{
		Use:   "script <file|->",
		Short: "Run a JavaScript orchestration script through " + script.Name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			payload := map[string]any{"script": source}
			if timeout > 0 {
				payload["timeout"] = timeout
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(a *app.App) error {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()
				res := a.Registry.Execute(ctx, script.Name, raw, tool.ExecuteOptions{})
				return printResult(cmd.OutOrStdout(), res, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout in milliseconds")
	return cmd
}

func readSource(stdin io.Reader, arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("read script: empty source")
	}
	return string(data), nil
}

func printResult(w io.Writer, res tool.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		text := res.FinalText
		if !res.OK() {
			text = fmt.Sprintf("%s: %s", res.Status, firstNonEmpty(res.Error, res.RejectReason, res.FinalText))
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	if !res.OK() {
		return fmt.Errorf("%w: %s", errCallFailed, res.Status)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
