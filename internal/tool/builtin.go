package tool

import (
	"slices"

	"ltl/internal/domain"
)

// BuiltinConfig selects and configures the built-in tools. Nil sections
// leave those tools out.
type BuiltinConfig struct {
	Files     FileConfig
	Shell     *ShellConfig
	Web       *WebConfig
	Store     domain.MemoryStore
	Scheduler *Scheduler
	Disabled  []string
}

// RegisterBuiltins adds the built-in tools to r in a fixed order.
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) error {
	var tools []domain.Tool
	if cfg.Shell != nil {
		tools = append(tools, NewShellTool(*cfg.Shell))
	}
	tools = append(tools,
		NewReadFileTool(cfg.Files),
		NewWriteFileTool(cfg.Files),
		NewListDirTool(cfg.Files),
	)
	if cfg.Web != nil {
		tools = append(tools,
			NewWebSearchTool(*cfg.Web),
			NewWebFetchTool(*cfg.Web),
			NewLocationTool(*cfg.Web, cfg.Store),
		)
	}
	tools = append(tools, NewTimeTool(), NewSysInfoTool())
	if cfg.Store != nil {
		tools = append(tools, MemoryTools(cfg.Store)...)
		tools = append(tools, TaskTools(cfg.Store)...)
	}
	if cfg.Scheduler != nil {
		tools = append(tools, TimerTools(cfg.Scheduler, cfg.Store)...)
	}

	for _, t := range tools {
		if slices.Contains(cfg.Disabled, t.Name()) {
			continue
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
