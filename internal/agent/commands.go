package agent

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"ltl/internal/domain"
)

// ChatCommand is a parsed slash command typed into an interactive session.
type ChatCommand struct {
	Name string
	Args []string
	Raw  string
}

// CommandResult is the reply to a slash command. Quit asks the caller to
// end the session.
type CommandResult struct {
	Response string
	Handled  bool
	Quit     bool
}

var startTime = time.Now()

// Version is reported by /version and the CLI.
var Version = "0.1.0"

// ParseCommand returns nil for ordinary text and for tool directives, which
// go through HandleTurn instead.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if "/"+name == DirectivePrefix {
		return nil
	}
	return &ChatCommand{Name: name, Args: parts[1:], Raw: text}
}

// HandleCommand answers session-level commands. Unknown commands come back
// with Handled=false so the text can be treated as a normal message.
func (s *Session) HandleCommand(cmd *ChatCommand) CommandResult {
	switch cmd.Name {
	case "help":
		return CommandResult{Response: helpText(), Handled: true}
	case "new", "clear":
		s.Reset()
		return CommandResult{Response: "Conversation cleared.", Handled: true}
	case "status":
		return CommandResult{Response: s.statusText(), Handled: true}
	case "tools":
		return CommandResult{Response: s.toolsText(), Handled: true}
	case "history":
		return CommandResult{Response: historyText(s.History()), Handled: true}
	case "uptime":
		return CommandResult{Response: "Uptime: " + time.Since(startTime).Round(time.Second).String(), Handled: true}
	case "version":
		return CommandResult{Response: fmt.Sprintf("ltl %s (%s/%s, %s)", Version, runtime.GOOS, runtime.GOARCH, runtime.Version()), Handled: true}
	case "quit", "exit", "bye":
		return CommandResult{Response: "Goodbye!", Handled: true, Quit: true}
	}
	return CommandResult{}
}

func helpText() string {
	return `Commands:
  /help                 show this help
  /clear, /new          forget the conversation
  /status               loaded model and session info
  /tools                list available tools
  /tool <name> [args]   run a tool directly (JSON object or key=value)
  /history              show the conversation so far
  /uptime, /version
  /quit                 leave`
}

func (s *Session) statusText() string {
	slot := s.opts.Arbiter.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", s.id)
	if slot.Class == domain.ResourceNone {
		sb.WriteString("Loaded model: none\n")
	} else {
		fmt.Fprintf(&sb, "Loaded model: %s (%s) since %s\n", slot.Name, slot.Class, slot.LoadedAt.Format(time.Kitchen))
	}
	s.mu.Lock()
	fmt.Fprintf(&sb, "History: %d/%d messages\n", s.history.Len(), s.history.Cap())
	s.mu.Unlock()
	fmt.Fprintf(&sb, "Tools: %d\n", len(s.opts.Tools.Definitions()))
	fmt.Fprintf(&sb, "Uptime: %s", time.Since(startTime).Round(time.Second))
	return sb.String()
}

func (s *Session) toolsText() string {
	defs := s.opts.Tools.Definitions()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Available tools (%d):\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(&sb, "  %-15s %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func historyText(turns []domain.Turn) string {
	if len(turns) == 0 {
		return "No conversation yet."
	}
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", t.Timestamp.Format("15:04"), t.Role, t.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}
