package domain

import "context"

// Generator is the text-generation backend.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// VisionAnalyzer answers a prompt about an image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, req VisionRequest) (string, error)
}

// ImageSource produces the image for a vision turn (camera, file, screenshot).
type ImageSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

type GenerateRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
}

type GenerateResponse struct {
	Content   string
	ToolCalls []ToolCall
	LatencyMs int64
}

func (r *GenerateResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

type VisionRequest struct {
	Model  string
	Prompt string
	Image  []byte
}

type Message struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	// ArgumentsError is set when the backend sent arguments that could not
	// be decoded; the call fails with it instead of running the tool.
	ArgumentsError string `json:"-"`
}
