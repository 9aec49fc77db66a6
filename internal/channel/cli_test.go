package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/agent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeConversation struct {
	turns    []string
	commands []string
	err      error
}

func (f *fakeConversation) HandleTurn(_ context.Context, text string) (*agent.TurnResult, error) {
	f.turns = append(f.turns, text)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.TurnResult{Text: "echo: " + text, Truncated: text == "loop"}, nil
}

func (f *fakeConversation) HandleCommand(cmd *agent.ChatCommand) agent.CommandResult {
	f.commands = append(f.commands, cmd.Name)
	switch cmd.Name {
	case "help":
		return agent.CommandResult{Response: "some help", Handled: true}
	case "quit":
		return agent.CommandResult{Response: "Goodbye!", Handled: true, Quit: true}
	}
	return agent.CommandResult{}
}

func run(t *testing.T, conv Conversation, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cli := NewCLI(conv, CLIConfig{Logger: testLogger(), In: strings.NewReader(input), Out: &out})
	err := cli.Run(context.Background())
	return out.String(), err
}

func TestCLI_TurnsAndCommands(t *testing.T) {
	conv := &fakeConversation{}
	out, err := run(t, conv, "hello\n\n/help\n/unknown thing\nloop\n/quit\nnever read\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "/unknown thing", "loop"}, conv.turns)
	assert.Equal(t, []string{"help", "unknown", "quit"}, conv.commands)
	assert.Contains(t, out, "echo: hello")
	assert.Contains(t, out, "some help")
	assert.Contains(t, out, "tool step limit")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "never read")
}

func TestCLI_EOF(t *testing.T) {
	conv := &fakeConversation{}
	_, err := run(t, conv, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, conv.turns)
}

func TestCLI_TurnError(t *testing.T) {
	boom := errors.New("boom")
	_, err := run(t, &fakeConversation{err: boom}, "hi\n")
	assert.ErrorIs(t, err, boom)
}

func TestCLI_CancelledContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := NewCLI(&fakeConversation{}, CLIConfig{Logger: testLogger(), In: pr, Out: &out}).Run(ctx)
	assert.NoError(t, err)
}

func TestCLI_NotifyFromOtherGoroutines(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(&fakeConversation{}, CLIConfig{Logger: testLogger(), In: strings.NewReader("a\nb\nc\n"), Out: &out})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cli.Notify("Time's up!")
		}()
	}
	require.NoError(t, cli.Run(context.Background()))
	wg.Wait()

	assert.Equal(t, 20, strings.Count(out.String(), "[!] Time's up!\n"))
	assert.Contains(t, out.String(), "echo: c")
}
