package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"ltl/internal/domain"
	"ltl/internal/metrics"
)

const defaultToolTimeout = 30 * time.Second

// timeoutParam is the parameter name a tool declares to let callers choose
// its execution bound in seconds.
const timeoutParam = "timeout"

// Registry holds all available tools and executes them. Tools are registered
// at startup; after that the registry is only read.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]domain.Tool
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Registry)

// WithDefaultTimeout bounds tools that do not declare a timeout parameter.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		tools:   make(map[string]domain.Tool),
		timeout: defaultToolTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t. Names are unique; a second tool with the same name is
// rejected with domain.ErrDuplicateTool.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("register tool: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register %s: %w", name, domain.ErrDuplicateTool)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	r.logger.Debug("registered tool", "name", name)
	return nil
}

// MustRegister is Register for startup wiring, where a duplicate is a bug.
func (r *Registry) MustRegister(tools ...domain.Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns the tools in registration order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns tool definitions in function-calling format for backends.
func (r *Registry) Definitions() []domain.ToolDefinition {
	tools := r.List()
	defs := make([]domain.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  ToolParameters(t.Parameters()),
		})
	}
	return defs
}

// Help describes one tool and its parameters in plain text.
func (r *Registry) Help(name string) string {
	t := r.Get(name)
	if t == nil {
		return "unknown tool: " + name
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", t.Name(), t.Description())
	params := t.Parameters()
	if len(params) == 0 {
		sb.WriteString("No parameters.\n")
		return sb.String()
	}
	sb.WriteString("Parameters:\n")
	for _, p := range params {
		fmt.Fprintf(&sb, "  - %s (%s", p.Name, p.Type)
		if p.Required {
			sb.WriteString(", required")
		} else if p.Default != nil {
			fmt.Fprintf(&sb, ", default %v", p.Default)
		}
		sb.WriteString(")")
		if p.Description != "" {
			sb.WriteString(": " + p.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Execute validates args against the tool's parameters and runs it within a
// bounded time. It never returns an error or panics: every failure is a
// ToolResult with Success=false.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	start := time.Now()
	metrics.ToolExecutions.Inc()
	defer metrics.ToolLatency.ObserveSince(start)

	res := r.execute(ctx, name, args)
	if !res.Success {
		metrics.ToolFailures.Inc()
		r.logger.Warn("tool failed", "tool", name, "error", res.Error, "duration", time.Since(start))
	} else {
		r.logger.Debug("tool executed", "tool", name, "duration", time.Since(start))
	}
	return res
}

func (r *Registry) execute(ctx context.Context, name string, args map[string]any) domain.ToolResult {
	t := r.Get(name)
	if t == nil {
		return failure(fmt.Errorf("%w: %s", domain.ErrUnknownTool, name))
	}

	params := t.Parameters()
	clean, err := CoerceArgs(params, args)
	if err != nil {
		return failure(err)
	}

	timeout := r.timeout
	if secs, ok := clean[timeoutParam].(int64); ok && declares(params, timeoutParam) && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, p)}
			}
		}()
		data, err := t.Execute(callCtx, clean)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return failure(domain.ErrTimeout)
			}
			return failure(out.err)
		}
		return domain.ToolResult{Success: true, Data: out.data}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return failure(ctx.Err())
		}
		return failure(domain.ErrTimeout)
	}
}

func failure(err error) domain.ToolResult {
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrBlockedCommand):
		msg = domain.ErrBlockedCommand.Error()
	case errors.Is(err, domain.ErrTimeout):
		msg = domain.ErrTimeout.Error()
	}
	return domain.ToolResult{Success: false, Error: msg}
}

func declares(params []domain.ParamSpec, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}
