package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ltl/internal/domain"
	"ltl/internal/metrics"
	"ltl/internal/retry"
)

const (
	ollamaDefaultBase      = "http://localhost:11434"
	ollamaDefaultKeepAlive = "30m"
)

// Ollama talks to a local Ollama server. It generates text, answers vision
// prompts, and loads or unloads models for the arbiter.
type Ollama struct {
	baseURL     string
	textModel   string
	visionModel string
	keepAlive   string
	client      *http.Client
	retry       retry.Policy
	logger      *slog.Logger
}

type OllamaOptions struct {
	BaseURL     string
	TextModel   string
	VisionModel string
	KeepAlive   string
	Client      *http.Client
	Retry       retry.Policy
	Logger      *slog.Logger
}

func NewOllama(opts OllamaOptions) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = ollamaDefaultBase
	}
	if opts.KeepAlive == "" {
		opts.KeepAlive = ollamaDefaultKeepAlive
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ollama{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		textModel:   opts.TextModel,
		visionModel: opts.VisionModel,
		keepAlive:   opts.KeepAlive,
		client:      opts.Client,
		retry:       opts.Retry,
		logger:      opts.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Healthy checks that the server answers /api/tags.
func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// Running lists the models the Ollama server currently holds in memory.
func (o *Ollama) Running(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ollama /api/ps: %w", err)
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ollamaChatRequest matches the Ollama /api/chat request body.
type ollamaChatRequest struct {
	Model     string         `json:"model"`
	Messages  []ollamaMsg    `json:"messages"`
	Stream    bool           `json:"stream"`
	Tools     []ollamaTool   `json:"tools,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type ollamaMsg struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    [][]byte         `json:"images,omitempty"` // base64 on the wire
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string     `json:"type"`
	Function ollamaFunc `json:"function"`
}

type ollamaFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	ID       string         `json:"id,omitempty"`
	Function ollamaFuncCall `json:"function"`
}

type ollamaFuncCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // object or JSON-encoded string
}

type ollamaChatResponse struct {
	Message    ollamaMsg `json:"message"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason"`
}

// ollamaGenerateRequest is the /api/generate body used to load and unload
// models. keep_alive 0 evicts the model immediately.
type ollamaGenerateRequest struct {
	Model     string `json:"model"`
	KeepAlive any    `json:"keep_alive"`
	Stream    bool   `json:"stream"`
}

func (o *Ollama) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = o.textModel
	}

	body := ollamaChatRequest{
		Model:     model,
		Messages:  toOllamaMessages(req.Messages),
		KeepAlive: o.keepAlive,
	}
	if req.Temperature > 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunc{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	start := time.Now()
	resp, err := retry.DoValue(ctx, o.retry, "ollama chat", func(ctx context.Context) (ollamaChatResponse, error) {
		var out ollamaChatResponse
		err := o.postJSON(ctx, "/api/chat", body, &out)
		return out, err
	})
	metrics.BackendRequests.Inc()
	metrics.BackendLatency.ObserveSince(start)
	if err != nil {
		return nil, err
	}

	out := &domain.GenerateResponse{
		Content:   resp.Message.Content,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for _, tc := range resp.Message.ToolCalls {
		call := domain.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			o.logger.Warn("unparseable tool arguments", "tool", tc.Function.Name, "error", err)
			call.ArgumentsError = err.Error()
		}
		call.Arguments = args
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// Analyze sends one image with a prompt to the vision model.
func (o *Ollama) Analyze(ctx context.Context, req domain.VisionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.visionModel
	}
	body := ollamaChatRequest{
		Model: model,
		Messages: []ollamaMsg{{
			Role:    "user",
			Content: req.Prompt,
			Images:  [][]byte{req.Image},
		}},
		KeepAlive: o.keepAlive,
	}

	start := time.Now()
	resp, err := retry.DoValue(ctx, o.retry, "ollama vision", func(ctx context.Context) (ollamaChatResponse, error) {
		var out ollamaChatResponse
		err := o.postJSON(ctx, "/api/chat", body, &out)
		return out, err
	})
	metrics.BackendRequests.Inc()
	metrics.BackendLatency.ObserveSince(start)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Load asks Ollama to bring the model into memory and keep it there for the
// configured keep-alive.
func (o *Ollama) Load(ctx context.Context, class domain.ResourceClass, name string) error {
	o.logger.Info("loading model", "class", class, "model", name)
	return o.retry.Do(ctx, "ollama load "+name, func(ctx context.Context) error {
		return o.postJSON(ctx, "/api/generate", ollamaGenerateRequest{Model: name, KeepAlive: o.keepAlive}, nil)
	})
}

// Unload evicts the model from memory.
func (o *Ollama) Unload(ctx context.Context, class domain.ResourceClass, name string) error {
	o.logger.Info("unloading model", "class", class, "model", name)
	return o.retry.Do(ctx, "ollama unload "+name, func(ctx context.Context) error {
		return o.postJSON(ctx, "/api/generate", ollamaGenerateRequest{Model: name, KeepAlive: 0}, nil)
	})
}

func (o *Ollama) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: %w", path, &retry.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func toOllamaMessages(msgs []domain.Message) []ollamaMsg {
	out := make([]ollamaMsg, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMsg{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			om.ToolName = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				ID:       tc.ID,
				Function: ollamaFuncCall{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, om)
	}
	return out
}

// decodeArguments accepts tool-call arguments as a JSON object or as a
// JSON string holding an object. The map is never nil, even on error.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	if len(raw) == 0 {
		return args, nil
	}
	body := []byte(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return args, fmt.Errorf("decode arguments: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return args, nil
		}
		body = []byte(s)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return args, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	for k, v := range decoded {
		args[k] = v
	}
	return args, nil
}

var (
	_ domain.Generator      = (*Ollama)(nil)
	_ domain.VisionAnalyzer = (*Ollama)(nil)
	_ domain.ModelLoader    = (*Ollama)(nil)
)
