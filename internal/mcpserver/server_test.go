package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
	"ltl/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() *tool.Registry {
	r := tool.NewRegistry(testLogger())
	r.MustRegister(
		tool.NewFunc("greet", "says hello",
			[]domain.ParamSpec{{Name: "name", Type: domain.ParamString, Required: true, Description: "who to greet"}},
			func(_ context.Context, args map[string]any) (any, error) {
				return "hello " + args["name"].(string), nil
			}),
		tool.NewFunc("stats", "returns a map", nil,
			func(context.Context, map[string]any) (any, error) {
				return map[string]int{"n": 2}, nil
			}),
		tool.NewFunc("fail", "always fails", nil,
			func(context.Context, map[string]any) (any, error) {
				return nil, errors.New("disk full")
			}),
	)
	return r
}

func call(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.handler(name)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNew_RegistersTools(t *testing.T) {
	s := New(testRegistry(), "test", testLogger())
	tools := s.mcp.ListTools()
	require.Len(t, tools, 3)

	greet := tools["greet"].Tool
	assert.Equal(t, "says hello", greet.Description)
	assert.Equal(t, "object", greet.InputSchema.Type)
	assert.Equal(t, []string{"name"}, greet.InputSchema.Required)
	assert.Contains(t, greet.InputSchema.Properties, "name")
}

func TestHandler(t *testing.T) {
	s := New(testRegistry(), "test", testLogger())

	res := call(t, s, "greet", map[string]any{"name": "Sam"})
	assert.False(t, res.IsError)
	assert.Equal(t, "hello Sam", text(t, res))

	res = call(t, s, "stats", nil)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"n":2}`, text(t, res))

	res = call(t, s, "fail", map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, "disk full", text(t, res))

	res = call(t, s, "greet", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "name")
}
