package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ltl/internal/agent"
)

func toolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "List, describe and run tools without a model",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.shutdown()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range a.registry.Definitions() {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "help [name]",
		Short: "Describe a tool and its parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.shutdown()

			if a.registry.Get(args[0]) == nil {
				return fmt.Errorf("unknown tool: %s", args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), a.registry.Help(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run [name] [json-object | key=value ...]",
		Short: "Run a tool directly",
		Example: `  ltl tool run get_time format="%H:%M"
  ltl tool run list_dir '{"path": ".", "recursive": true}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			toolArgs, err := agent.ToolArgs(name, args[1:])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.shutdown()

			res := a.registry.Execute(ctx, name, toolArgs)
			if !res.Success {
				return errors.New(res.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), agent.FormatData(res.Data))
			return nil
		},
	})

	return cmd
}
