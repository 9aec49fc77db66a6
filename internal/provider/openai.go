package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ltl/internal/domain"
	"ltl/internal/metrics"
	"ltl/internal/retry"
)

// OpenAI targets any OpenAI-compatible chat completions API (OpenAI,
// OpenRouter, LocalAI, vLLM). The remote side owns model placement, so it
// pairs with NoopLoader.
type OpenAI struct {
	client      *openai.Client
	textModel   string
	visionModel string
	retry       retry.Policy
	logger      *slog.Logger
}

type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	Client      *http.Client
	Retry       retry.Policy
	Logger      *slog.Logger
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Client != nil {
		cfg.HTTPClient = opts.Client
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.VisionModel == "" {
		opts.VisionModel = opts.TextModel
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		textModel:   opts.TextModel,
		visionModel: opts.VisionModel,
		retry:       opts.Retry,
		logger:      opts.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai not reachable: %w", mapOpenAIError(err))
	}
	return nil
}

func (o *OpenAI) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = o.textModel
	}

	creq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	start := time.Now()
	resp, err := o.complete(ctx, "openai chat", creq)
	if err != nil {
		return nil, err
	}

	msg := resp.Choices[0].Message
	out := &domain.GenerateResponse{
		Content:   msg.Content,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for _, tc := range msg.ToolCalls {
		args := make(map[string]any)
		var argErr string
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				o.logger.Warn("unparseable tool arguments", "tool", tc.Function.Name, "error", err)
				argErr = fmt.Sprintf("arguments are not a JSON object: %v", err)
				args = make(map[string]any)
			}
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:             tc.ID,
			Name:           tc.Function.Name,
			Arguments:      args,
			ArgumentsError: argErr,
		})
	}
	return out, nil
}

// Analyze sends the image inline as a data URI.
func (o *OpenAI) Analyze(ctx context.Context, req domain.VisionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.visionModel
	}
	uri := "data:" + http.DetectContentType(req.Image) + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	resp, err := o.complete(ctx, "openai vision", openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: uri}},
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := retry.DoValue(ctx, o.retry, op, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		r, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return r, mapOpenAIError(err)
		}
		if len(r.Choices) == 0 {
			return r, retry.Transient(errors.New("empty choices in response"))
		}
		return r, nil
	})
	metrics.BackendRequests.Inc()
	metrics.BackendLatency.ObserveSince(start)
	return resp, err
}

// mapOpenAIError surfaces the HTTP status of API errors as a
// *retry.StatusError so the retry policy can classify them.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai: %w", &retry.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai: %w", &retry.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()})
	}
	return err
}

func toOpenAIMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		out = append(out, om)
	}
	return out
}

// NoopLoader satisfies domain.ModelLoader for backends that manage their own
// model placement.
type NoopLoader struct{}

func (NoopLoader) Load(context.Context, domain.ResourceClass, string) error   { return nil }
func (NoopLoader) Unload(context.Context, domain.ResourceClass, string) error { return nil }

var (
	_ domain.Generator      = (*OpenAI)(nil)
	_ domain.VisionAnalyzer = (*OpenAI)(nil)
	_ domain.ModelLoader    = NoopLoader{}
)
