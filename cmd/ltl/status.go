package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ltl/internal/domain"
	"ltl/internal/metrics"
)

const healthTimeout = 5 * time.Second

func statusCmd() *cobra.Command {
	var showMetrics bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the backend, models, storage and tools",
		Long: `Runs a set of checks against the configured runtime and reports
pass/warn/fail for each. Exits non-zero when a check fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			r := &report{out: out}

			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config", "no file at "+cfgPath+", using defaults (run 'ltl init')")
			} else {
				r.pass("Config", cfgPath)
			}

			a, err := newApp(cfg, logger, appOptions{withBackend: true})
			if err != nil {
				r.fail("Runtime", err.Error())
				return r.summary()
			}
			defer a.shutdown()

			r.pass("Workspace", cfg.General.Workspace)
			if a.store != nil {
				r.pass("Memory", cfg.Memory.DBPath)
			} else {
				r.warn("Memory", "disabled")
			}
			r.pass("Tools", fmt.Sprintf("%d registered", len(a.registry.Names())))

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()
			if err := a.backend.Healthy(ctx); err != nil {
				r.fail("Backend", fmt.Sprintf("%s: %v", a.backend.Kind, err))
			} else {
				r.pass("Backend", a.backend.Kind+" reachable")
				if running, err := a.backend.Running(ctx); err == nil && running != nil {
					r.info("Loaded on server", listOrNone(running))
				}
			}

			keep := cfg.Resources.KeepLoadedPolicy()
			for _, class := range []domain.ResourceClass{domain.ResourceTextGeneration, domain.ResourceVision} {
				policy := "released after each turn"
				if keep[class] {
					policy = "kept loaded"
				}
				r.info("Model "+class.String(), fmt.Sprintf("%s (%s)", a.backend.Models[class], policy))
			}

			switch {
			case len(cfg.Vision.CaptureCommand) > 0:
				r.pass("Image source", strings.Join(cfg.Vision.CaptureCommand, " "))
			case cfg.Vision.ImagePath != "":
				if _, err := os.Stat(cfg.Vision.ImagePath); err != nil {
					r.warn("Image source", err.Error())
				} else {
					r.pass("Image source", cfg.Vision.ImagePath)
				}
			default:
				r.warn("Image source", "none configured, vision turns will be declined")
			}

			if showMetrics {
				fmt.Fprintln(out)
				if err := metrics.Collector.WriteText(out); err != nil {
					return err
				}
			}
			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print runtime metrics in Prometheus text format")
	return cmd
}

type report struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) info(check, detail string) {
	fmt.Fprintf(r.out, "         %-20s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Fprintf(r.out, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
