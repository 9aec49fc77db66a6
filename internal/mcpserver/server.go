// Package mcpserver exposes the tool registry to MCP clients over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"ltl/internal/agent"
	"ltl/internal/domain"
)

const serverName = "ltl"

// Registry is the part of the tool registry served over MCP.
type Registry interface {
	Definitions() []domain.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) domain.ToolResult
}

type Server struct {
	mcp      *mcpserver.MCPServer
	registry Registry
	logger   *slog.Logger
}

// New registers every tool of reg with a fresh MCP server.
func New(reg Registry, version string, logger *slog.Logger) *Server {
	s := &Server{
		mcp:      mcpserver.NewMCPServer(serverName, version, mcpserver.WithToolCapabilities(false)),
		registry: reg,
		logger:   logger,
	}
	for _, def := range reg.Definitions() {
		s.mcp.AddTool(toMCPTool(def), s.handler(def.Name))
	}
	logger.Debug("mcp tools registered", "count", len(reg.Definitions()))
	return s
}

// Serve answers MCP requests on stdin/stdout until the client disconnects.
func (s *Server) Serve() error {
	s.logger.Info("serving tools over mcp stdio")
	if err := mcpserver.ServeStdio(s.mcp); err != nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		res := s.registry.Execute(ctx, name, args)
		if !res.Success {
			return mcp.NewToolResultError(res.Error), nil
		}
		return mcp.NewToolResultText(agent.FormatData(res.Data)), nil
	}
}

func toMCPTool(def domain.ToolDefinition) mcp.Tool {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}}
	if props, ok := def.Parameters["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if req, ok := def.Parameters["required"].([]string); ok {
		schema.Required = req
	}
	return mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: schema,
	}
}
