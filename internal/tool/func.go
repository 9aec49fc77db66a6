package tool

import (
	"context"

	"ltl/internal/domain"
)

// HandlerFunc is the signature of closure-backed tools.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

type funcTool struct {
	name        string
	description string
	params      []domain.ParamSpec
	fn          HandlerFunc
}

// NewFunc wraps a closure as a domain.Tool.
func NewFunc(name, description string, params []domain.ParamSpec, fn HandlerFunc) domain.Tool {
	return &funcTool{name: name, description: description, params: params, fn: fn}
}

func (f *funcTool) Name() string                   { return f.name }
func (f *funcTool) Description() string            { return f.description }
func (f *funcTool) Parameters() []domain.ParamSpec { return f.params }
func (f *funcTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}
