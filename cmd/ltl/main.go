package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ltl/internal/agent"
	"ltl/internal/config"
)

// skipConfig marks commands that must run without a valid config file.
const skipConfig = "skipConfig"

var (
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg        *config.Config
	configPath string // overridable via --config flag
	envFile    string
	logLevel   string
	logCloser  io.Closer
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ltl",
		Short:         "ltl: a local assistant that shares one accelerator between chat and vision models",
		Long:          "ltl answers chat, vision and tool requests with local models, swapping them through a single accelerator slot.",
		Version:       agent.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.ltl/config.json)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(toolCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(configCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// setup loads the dotenv file and the config, then builds the logger.
func setup(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot load env file", "path", envFile, "error", err)
	}

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	var err error
	cfg, err = config.LoadOrDefault(resolveConfigPath())
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	logger, logCloser, err = newLogger(cfg.General.LogLevel, cfg.General.LogFile)
	return err
}

// newLogger builds the process logger: text on stderr, or appended to
// logFile when one is configured.
func newLogger(level, logFile string) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), f, nil
}
