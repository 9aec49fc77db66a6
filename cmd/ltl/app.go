package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ltl/internal/agent"
	"ltl/internal/arbiter"
	"ltl/internal/capture"
	"ltl/internal/config"
	"ltl/internal/domain"
	"ltl/internal/memory"
	"ltl/internal/provider"
	"ltl/internal/retry"
	"ltl/internal/security"
	"ltl/internal/tool"
)

const shutdownTimeout = 30 * time.Second

// app is the wired runtime shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *memory.SQLiteStore // nil when memory is disabled
	security *security.Engine
	registry *tool.Registry
	backend  *provider.Backend // nil for tool-only commands
	arbiter  *arbiter.Arbiter
	throttle *agent.Throttle
	images   domain.ImageSource
	alarms   *tool.Scheduler
}

type appOptions struct {
	withBackend bool
}

func newApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, alarms: tool.NewScheduler(logger.With("component", "scheduler"))}

	var audit security.AuditLogger
	if cfg.Memory.Enabled {
		store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		a.store = store
		audit = store
	}

	sec, err := security.NewEngine(cfg.Security, audit, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("security engine: %w", err)
	}
	a.security = sec

	policy := provider.RetryPolicy(cfg.Retry, logger)
	a.registry = tool.NewRegistry(logger,
		tool.WithDefaultTimeout(time.Duration(cfg.Tools.TimeoutSeconds)*time.Second))
	if err := tool.RegisterBuiltins(a.registry, builtinConfig(cfg, sec, a.memoryStore(), a.alarms, policy)); err != nil {
		a.close()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	if !opts.withBackend {
		return a, nil
	}

	a.backend, err = provider.NewFromConfig(cfg.Backend, policy, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.arbiter = arbiter.New(a.backend.Loader, logger.With("component", "arbiter"))
	if a.backend.Kind == "openai" && cfg.Backend.OpenAI.RequestsPerMinute > 0 {
		rpm := cfg.Backend.OpenAI.RequestsPerMinute
		a.throttle = agent.NewThrottle(max(1, rpm/10), float64(rpm))
	}
	a.images = capture.New(cfg.Vision.ImagePath, cfg.Vision.CaptureCommand)
	return a, nil
}

func builtinConfig(cfg *config.Config, guard tool.CommandGuard, store domain.MemoryStore, alarms *tool.Scheduler, policy retry.Policy) tool.BuiltinConfig {
	bc := tool.BuiltinConfig{
		Files: tool.FileConfig{
			Workspace: cfg.General.Workspace,
			Restrict:  cfg.Tools.RestrictToWorkspace,
		},
		Store:     store,
		Scheduler: alarms,
		Disabled:  cfg.Tools.Disabled,
	}
	if cfg.Tools.Shell.Enabled {
		bc.Shell = &tool.ShellConfig{
			WorkingDir:     cfg.General.Workspace,
			TimeoutSeconds: cfg.Tools.Shell.Timeout,
			MaxOutputBytes: cfg.Tools.Shell.MaxOutputBytes,
			Guard:          guard,
		}
	}
	if cfg.Tools.Web.Enabled {
		bc.Web = &tool.WebConfig{
			SearchEndpoint:   cfg.Tools.Web.SearchEndpoint,
			LocationEndpoint: cfg.Tools.Web.LocationEndpoint,
			UserAgent:        cfg.Tools.Web.UserAgent,
			Client:           provider.NewHTTPClient(time.Duration(cfg.Tools.TimeoutSeconds) * time.Second),
			Retry:            policy,
		}
	}
	return bc
}

// memoryStore returns the store as an interface value that is nil when
// memory is disabled.
func (a *app) memoryStore() domain.MemoryStore {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *app) newSession(id string) *agent.Session {
	cfg := a.cfg
	var turnLog agent.TurnLog
	if a.store != nil && cfg.Memory.LogTurns {
		turnLog = a.store
	}
	return agent.NewSession(agent.Options{
		ID:                id,
		Arbiter:           a.arbiter,
		Generator:         a.backend.Generator,
		Vision:            a.backend.Vision,
		Images:            a.images,
		Tools:             a.registry,
		Classifier:        agent.NewClassifier(cfg.Intent, a.logger),
		Prompt:            agent.NewPromptBuilder(cfg.General.Workspace, cfg.General.SystemPrompt, a.memoryStore(), a.logger),
		TurnLog:           turnLog,
		Throttle:          a.throttle,
		Models:            a.backend.Models,
		KeepLoaded:        cfg.Resources.KeepLoadedPolicy(),
		MaxToolIterations: cfg.General.MaxToolIterations,
		HistorySize:       cfg.General.HistorySize,
		Temperature:       cfg.Backend.Temperature,
		VisionPrompt:      cfg.Vision.Prompt,
		OnTransition: func(from, to agent.State) {
			a.logger.Debug("state", "session", id, "from", from, "to", to)
		},
		Logger: a.logger,
	})
}

// shutdown unloads whatever model is resident and closes the store. It uses
// its own deadline because the command context is usually cancelled by now.
func (a *app) shutdown() {
	if n := a.alarms.Stop(); n > 0 {
		a.logger.Warn("dropping pending timers", "count", n)
	}
	if a.arbiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.arbiter.Release(ctx); err != nil {
			a.logger.Warn("release on shutdown failed", "error", err)
		}
		cancel()
	}
	a.close()
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close memory store", "error", err)
		}
	}
}
