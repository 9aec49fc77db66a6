package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func echoTool(name string) domain.Tool {
	return NewFunc(name, "echoes its input",
		[]domain.ParamSpec{
			{Name: "x", Type: domain.ParamString, Required: true},
			{Name: "n", Type: domain.ParamInt, Default: 1},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		})
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(testLogger())
	require.NoError(t, r.Register(echoTool("echo")))
	err := r.Register(echoTool("echo"))
	assert.ErrorIs(t, err, domain.ErrDuplicateTool)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.Panics(t, func() { r.MustRegister(echoTool("a"), echoTool("a")) })
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("zeta"), echoTool("alpha"), echoTool("mid"))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
	assert.Equal(t, []string{"x"}, defs[0].Parameters["required"])
}

func TestExecute_UnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	res := r.Execute(context.Background(), "nonexistent_tool", map[string]any{})
	assert.False(t, res.Success)
	assert.Equal(t, "unknown tool: nonexistent_tool", res.Error)
}

func TestExecute_MissingRequired(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("t"))
	res := r.Execute(context.Background(), "t", map[string]any{})
	assert.False(t, res.Success)
	assert.Equal(t, "missing parameter x", res.Error)
}

func TestExecute_CoercesAndDropsUndeclared(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("t"))

	res := r.Execute(context.Background(), "t", map[string]any{"x": 42.0, "n": "30", "extra": true})
	require.True(t, res.Success, res.Error)
	got := res.Data.(map[string]any)
	assert.Equal(t, "42", got["x"])
	assert.Equal(t, int64(30), got["n"])
	assert.NotContains(t, got, "extra")

	res = r.Execute(context.Background(), "t", map[string]any{"x": "a"})
	require.True(t, res.Success)
	assert.Equal(t, int64(1), res.Data.(map[string]any)["n"], "default filled")
}

func TestExecute_InvalidParameter(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("t"))
	res := r.Execute(context.Background(), "t", map[string]any{"x": "a", "n": "thirty"})
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "invalid parameter n:"), res.Error)
}

func TestExecute_HandlerErrorBecomesFailure(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(NewFunc("boom", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("disk on fire")
	}))
	res := r.Execute(context.Background(), "boom", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "disk on fire", res.Error)
}

func TestExecute_PanicRecovered(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(NewFunc("panicky", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		panic("nil map")
	}))
	res := r.Execute(context.Background(), "panicky", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestExecute_DefaultTimeout(t *testing.T) {
	r := NewRegistry(testLogger(), WithDefaultTimeout(50*time.Millisecond))
	r.MustRegister(NewFunc("slow", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		time.Sleep(time.Second)
		return "late", nil
	}))

	start := time.Now()
	res := r.Execute(context.Background(), "slow", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.Error)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecute_DeclaredTimeoutParameter(t *testing.T) {
	r := NewRegistry(testLogger(), WithDefaultTimeout(time.Hour))
	r.MustRegister(NewFunc("waiter", "",
		[]domain.ParamSpec{{Name: "timeout", Type: domain.ParamInt, Default: 30}},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	start := time.Now()
	res := r.Execute(context.Background(), "waiter", map[string]any{"timeout": "1"})
	assert.Equal(t, "timeout", res.Error)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecute_BlockedErrorMessage(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(NewFunc("guarded", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, domain.ErrBlockedCommand
	}))
	res := r.Execute(context.Background(), "guarded", nil)
	assert.Equal(t, "blocked: potentially destructive command", res.Error)
}

func TestExecute_ParentCancelled(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(NewFunc("wait", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Execute(ctx, "wait", nil)
	assert.False(t, res.Success)
	assert.Equal(t, context.Canceled.Error(), res.Error)
}

func TestExecute_ConcurrentCalls(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("t"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Execute(context.Background(), "t", map[string]any{"x": "v"})
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
}

func TestHelp(t *testing.T) {
	r := NewRegistry(testLogger())
	r.MustRegister(echoTool("echo"))
	help := r.Help("echo")
	assert.Contains(t, help, "echo: echoes its input")
	assert.Contains(t, help, "x (string, required)")
	assert.Contains(t, help, "n (int, default 1)")
	assert.Equal(t, "unknown tool: nope", r.Help("nope"))
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(testLogger())
	err := RegisterBuiltins(r, BuiltinConfig{
		Files:     FileConfig{Workspace: t.TempDir()},
		Shell:     &ShellConfig{},
		Web:       &WebConfig{},
		Store:     newFakeStore(),
		Scheduler: NewScheduler(testLogger()),
		Disabled:  []string{"system_info"},
	})
	require.NoError(t, err)

	names := r.Names()
	assert.Equal(t, "execute_command", names[0])
	for _, want := range []string{"read_file", "write_file", "list_dir", "web_search", "web_fetch", "get_time",
		"save_memory", "recall_memory", "list_memories", "delete_memory", "create_task", "list_tasks", "complete_task",
		"get_location", "set_timer", "list_timers", "cancel_timer", "schedule_reminder"} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, "system_info")
}
