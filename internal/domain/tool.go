package domain

import "context"

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
)

// JSONType maps the parameter type onto the JSON Schema vocabulary used in
// function-calling payloads.
func (t ParamType) JSONType() string {
	switch t {
	case ParamInt:
		return "integer"
	case ParamFloat:
		return "number"
	case ParamBool:
		return "boolean"
	default:
		return "string"
	}
}

// ParamSpec declares one tool parameter.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
}

// Tool is the interface for agent capabilities (shell, file ops, search, etc).
// Execute receives arguments that the registry has already validated and
// coerced to the declared types.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParamSpec
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolResult is the outcome of one invocation.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolDefinition is the function-calling view of a tool handed to backends.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
