// Package security screens shell commands against a configurable deny list
// before the shell tool runs them.
//
// The deny list is a heuristic guard against obvious destructive commands. It
// is not a sandbox: quoting, variables, or indirection can get around it.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"ltl/internal/config"
	"ltl/internal/domain"
	"ltl/internal/metrics"
)

// Action is the verdict for a command.
type Action int

const (
	ActionAllow Action = iota
	ActionBlock
)

func (a Action) String() string {
	if a == ActionBlock {
		return "block"
	}
	return "allow"
}

// AuditLogger is the interface for writing audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

// regexPrefix marks a pattern as a regular expression. Anything else is a
// case-insensitive substring.
const regexPrefix = "re:"

// Engine matches commands against deny and allow patterns.
type Engine struct {
	cfg         config.SecurityConfig
	auditLogger AuditLogger
	logger      *slog.Logger

	denyRe  []*regexp.Regexp
	allowRe []*regexp.Regexp
}

func NewEngine(cfg config.SecurityConfig, auditLogger AuditLogger, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:         cfg,
		auditLogger: auditLogger,
		logger:      logger,
	}

	var err error
	e.denyRe, err = compilePatterns(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("invalid blacklist pattern: %w", err)
	}
	e.allowRe, err = compilePatterns(cfg.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist pattern: %w", err)
	}
	return e, nil
}

// Check returns ActionBlock when the command matches the deny list or, under
// a "deny" default policy, matches nothing on the allow list.
func (e *Engine) Check(ctx context.Context, toolName, command string) Action {
	cmd := normalize(command)

	for _, re := range e.denyRe {
		if re.MatchString(cmd) {
			e.logger.Warn("command blocked",
				"tool", toolName,
				"command", cmd,
				"pattern", re.String(),
			)
			metrics.CommandsBlocked.Inc()
			e.audit(ctx, "command_blocked", toolName, cmd, "blocked", "deny match: "+re.String())
			return ActionBlock
		}
	}

	for _, re := range e.allowRe {
		if re.MatchString(cmd) {
			e.audit(ctx, "tool_exec", toolName, cmd, "allowed", "allow match: "+re.String())
			return ActionAllow
		}
	}

	if e.cfg.DefaultPolicy == "deny" {
		metrics.CommandsBlocked.Inc()
		e.audit(ctx, "command_blocked", toolName, cmd, "blocked", "default policy: deny")
		return ActionBlock
	}
	e.audit(ctx, "tool_exec", toolName, cmd, "allowed", "default policy: allow")
	return ActionAllow
}

// Guard is Check expressed as an error, for tools.
func (e *Engine) Guard(ctx context.Context, toolName, command string) error {
	if e.Check(ctx, toolName, command) == ActionBlock {
		return domain.ErrBlockedCommand
	}
	return nil
}

func (e *Engine) audit(ctx context.Context, action, toolName, command, result, details string) {
	if !e.cfg.AuditLog || e.auditLogger == nil {
		return
	}
	err := e.auditLogger.LogAudit(ctx, domain.AuditEntry{
		Action:   action,
		ToolName: toolName,
		Command:  command,
		Result:   result,
		Details:  details,
	})
	if err != nil {
		e.logger.Warn("audit write failed", "error", err)
	}
}

// normalize trims and collapses runs of whitespace so "rm  -rf   /" matches
// the same literal as "rm -rf /".
func normalize(command string) string {
	return strings.Join(strings.Fields(command), " ")
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if expr, ok := strings.CutPrefix(p, regexPrefix); ok {
			re, err = regexp.Compile(expr)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(normalize(p)))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
