package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ltl/internal/agent"
	"ltl/internal/channel"
	"ltl/internal/tool"
)

func chatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger, appOptions{withBackend: true})
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.backend.Healthy(ctx); err != nil {
				logger.Warn("backend not reachable at startup", "backend", a.backend.Kind, "error", err)
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			sess := a.newSession(sessionID)
			logger.Info("chat session started", "session", sess.ID(), "backend", a.backend.Kind)

			cli := channel.NewCLI(sess, channel.CLIConfig{
				Logger:  logger,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
				Spinner: isTerminal(os.Stdout),
			})
			a.alarms.SetNotify(func(al tool.Alarm) { cli.Notify(al.Message()) })
			return cli.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id recorded in the turn log (default: random)")
	return cmd
}

func askCmd() *cobra.Command {
	var showTools bool
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer a single message and exit",
		Long:  "Runs one turn through the orchestrator. The message comes from the arguments, or from stdin when none are given.",
		Example: `  ltl ask "what time is it in Tokyo?"
  ltl ask "/tool list_dir path=."
  echo "what do you see?" | ltl ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return errors.New("nothing to ask")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger, appOptions{withBackend: true})
			if err != nil {
				return err
			}
			defer a.shutdown()

			res, err := a.newSession(uuid.NewString()).HandleTurn(ctx, text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showTools {
				printToolRuns(out, res.ToolCalls)
			}
			fmt.Fprintln(out, res.Text)
			if res.Degraded {
				return errors.New("answer is degraded, see the log for the cause")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "print the tool calls made while answering")
	return cmd
}

func printToolRuns(w io.Writer, runs []agent.ToolRun) {
	for _, r := range runs {
		status := "ok"
		if !r.Result.Success {
			status = "failed: " + r.Result.Error
		}
		fmt.Fprintf(w, "[tool] %s %v -> %s\n", r.Call.Name, r.Call.Arguments, status)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
