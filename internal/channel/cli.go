// Package channel holds the interactive front ends of the runtime.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"ltl/internal/agent"
)

// Conversation is the session the CLI talks to.
type Conversation interface {
	HandleTurn(ctx context.Context, text string) (*agent.TurnResult, error)
	HandleCommand(cmd *agent.ChatCommand) agent.CommandResult
}

// CLI is an interactive terminal chat.
type CLI struct {
	conv    Conversation
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	spinner bool

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	// Spinner animates a "Thinking..." line while a turn runs. Leave it off
	// when output is not a terminal.
	Spinner bool
}

func NewCLI(conv Conversation, cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		conv:    conv,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     &lockedWriter{w: cfg.Out},
		spinner: cfg.Spinner,
	}
}

// lockedWriter serializes writes from the REPL, the spinner and Notify.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Notify prints an out-of-band message, such as a finished timer. It may be
// called from any goroutine.
func (c *CLI) Notify(text string) {
	prefix := "\n"
	if c.spinner {
		prefix = "\r\033[K"
	}
	_, _ = fmt.Fprintf(c.out, "%s[!] %s\n", prefix, text)
}

// Run reads lines until EOF, /quit, or ctx is cancelled.
func (c *CLI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	_, _ = fmt.Fprintln(c.out, "ltl chat. Type a message and press Enter, /help for commands, /quit to leave.")
	for {
		_, _ = fmt.Fprint(c.out, "You> ")

		var line string
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(c.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				_, _ = fmt.Fprintln(c.out)
				return <-scanErr
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if cmd := agent.ParseCommand(line); cmd != nil {
			res := c.conv.HandleCommand(cmd)
			if res.Handled {
				_, _ = fmt.Fprintln(c.out, res.Response)
				if res.Quit {
					c.logger.Info("user requested quit")
					return nil
				}
				continue
			}
		}

		c.startThinking()
		res, err := c.conv.HandleTurn(ctx, line)
		c.stopThinking()
		if err != nil {
			if agent.IsCancelled(err) && ctx.Err() != nil {
				_, _ = fmt.Fprintln(c.out)
				return nil
			}
			return err
		}
		c.printReply(res)
	}
}

func (c *CLI) printReply(res *agent.TurnResult) {
	_, _ = fmt.Fprintln(c.out, "--- ltl ---")
	_, _ = fmt.Fprintln(c.out, res.Text)
	if res.Truncated {
		_, _ = fmt.Fprintln(c.out, "(stopped early: tool step limit reached)")
	}
	_, _ = fmt.Fprintln(c.out, "-----------")
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				_, _ = fmt.Fprint(c.out, "\r\033[K")
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
}
