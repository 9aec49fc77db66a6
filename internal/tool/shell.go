package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"ltl/internal/domain"
)

const (
	defaultShellTimeout   = 30
	defaultMaxOutputBytes = 65536
)

// CommandGuard vets a command before it runs.
type CommandGuard interface {
	Guard(ctx context.Context, toolName, command string) error
}

type ShellConfig struct {
	WorkingDir     string
	TimeoutSeconds int
	MaxOutputBytes int
	Guard          CommandGuard
}

// ShellTool runs a command through sh -c. Every call starts in the same
// working directory, so a "cd" in one command does not leak into the next.
type ShellTool struct {
	workingDir     string
	timeoutSeconds int
	maxOutputBytes int
	guard          CommandGuard
}

func NewShellTool(cfg ShellConfig) *ShellTool {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultShellTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	dir := cfg.WorkingDir
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &ShellTool{
		workingDir:     dir,
		timeoutSeconds: cfg.TimeoutSeconds,
		maxOutputBytes: cfg.MaxOutputBytes,
		guard:          cfg.Guard,
	}
}

func (s *ShellTool) Name() string { return "execute_command" }

func (s *ShellTool) Description() string {
	return "Execute a shell command and return its combined stdout and stderr. Destructive commands are refused."
}

func (s *ShellTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "command", Type: domain.ParamString, Required: true, Description: "The shell command to execute (e.g. 'ls -la', 'git status')"},
		{Name: "timeout", Type: domain.ParamInt, Default: s.timeoutSeconds, Description: "Maximum run time in seconds"},
	}
}

func (s *ShellTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	command := strings.TrimSpace(ArgString(args, "command"))
	if command == "" {
		return nil, fmt.Errorf("%w command", domain.ErrMissingParameter)
	}

	if s.guard != nil {
		if err := s.guard.Guard(ctx, s.Name(), command); err != nil {
			return nil, err
		}
	}

	// The registry bounds the call already; this covers direct use.
	timeout := time.Duration(ArgInt(args, "timeout", s.timeoutSeconds)) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workingDir
	cmd.WaitDelay = 2 * time.Second

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := s.truncate(buf.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrTimeout
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if strings.TrimSpace(output) == "" {
			return nil, fmt.Errorf("exit: %w", err)
		}
		return nil, fmt.Errorf("exit: %w\n%s", err, output)
	}
	return output, nil
}

func (s *ShellTool) truncate(out string) string {
	if s.maxOutputBytes > 0 && len(out) > s.maxOutputBytes {
		return truncateUTF8(out, s.maxOutputBytes) + "\n... (output truncated)"
	}
	return out
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
