package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"ltl/internal/domain"
)

const promptMemoryLimit = 8

// PromptBuilder assembles the system prompt and the message list sent to the
// text backend.
type PromptBuilder struct {
	workspace string
	extra     string
	memory    domain.MemoryStore // optional
	logger    *slog.Logger
	now       func() time.Time
}

func NewPromptBuilder(workspace, extra string, memory domain.MemoryStore, logger *slog.Logger) *PromptBuilder {
	return &PromptBuilder{
		workspace: workspace,
		extra:     extra,
		memory:    memory,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *PromptBuilder) SystemPrompt(ctx context.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are ltl, a helpful assistant running entirely on the user's machine.

## Current Time
%s

## Runtime
%s/%s

## Workspace
%s

## Rules
1. When the user asks you to do something a tool can do, call the tool instead of guessing.
2. Use the tool calling mechanism. Do not print raw JSON tool calls in your answer.
3. After a tool runs, summarize the result plainly. Do not mention tool names.
4. If a tool fails, try different arguments once or explain what went wrong.
5. Answer in the language the user writes in. Be accurate and concise.`,
		p.now().Format("2006-01-02 15:04 (Monday)"), runtime.GOOS, runtime.GOARCH, p.workspace)

	if p.extra != "" {
		sb.WriteString("\n\n## Custom Instructions\n")
		sb.WriteString(p.extra)
	}

	if p.memory != nil {
		mems, err := p.memory.ListMemories(ctx, "")
		if err != nil {
			p.logger.Warn("failed to load memories for prompt", "error", err)
		} else if len(mems) > 0 {
			sb.WriteString("\n\n## What you remember about the user\n")
			for i, m := range mems {
				if i == promptMemoryLimit {
					break
				}
				fmt.Fprintf(&sb, "- [%s] %s: %s\n", m.Category, m.Key, m.Value)
			}
		}
	}
	return sb.String()
}

// BuildMessages returns system prompt, prior turns, then the new user text.
func (p *PromptBuilder) BuildMessages(ctx context.Context, history []domain.Turn, user string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: "system", Content: p.SystemPrompt(ctx)})
	for _, t := range history {
		msgs = append(msgs, domain.Message{Role: string(t.Role), Content: t.Text})
	}
	return append(msgs, domain.Message{Role: "user", Content: user})
}
