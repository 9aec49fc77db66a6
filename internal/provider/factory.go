package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ltl/internal/config"
	"ltl/internal/domain"
	"ltl/internal/retry"
)

// Backend bundles everything the runtime needs from one backend kind.
type Backend struct {
	Kind      string
	Generator domain.Generator
	Vision    domain.VisionAnalyzer
	Loader    domain.ModelLoader
	// Models maps each resource class to the model name the arbiter loads.
	Models map[domain.ResourceClass]string

	healthy func(ctx context.Context) error
	running func(ctx context.Context) ([]string, error)
}

// Healthy reports whether the backend answers.
func (b *Backend) Healthy(ctx context.Context) error {
	if b.healthy == nil {
		return nil
	}
	return b.healthy(ctx)
}

// Running lists models the server reports as loaded. Backends that cannot
// tell return nil.
func (b *Backend) Running(ctx context.Context) ([]string, error) {
	if b.running == nil {
		return nil, nil
	}
	return b.running(ctx)
}

// NewFromConfig builds the backend selected by cfg.Kind.
func NewFromConfig(cfg config.BackendConfig, policy retry.Policy, logger *slog.Logger) (*Backend, error) {
	switch cfg.Kind {
	case "", "ollama":
		oc := cfg.Ollama
		o := NewOllama(OllamaOptions{
			BaseURL:     oc.BaseURL,
			TextModel:   oc.TextModel,
			VisionModel: oc.VisionModel,
			KeepAlive:   oc.KeepAlive,
			Client:      NewHTTPClient(time.Duration(oc.TimeoutSeconds) * time.Second),
			Retry:       policy,
			Logger:      logger.With("backend", "ollama"),
		})
		return &Backend{
			Kind:      "ollama",
			Generator: o,
			Vision:    o,
			Loader:    o,
			Models: map[domain.ResourceClass]string{
				domain.ResourceTextGeneration: oc.TextModel,
				domain.ResourceVision:         oc.VisionModel,
			},
			healthy: o.Healthy,
			running: o.Running,
		}, nil

	case "openai":
		oc := cfg.OpenAI
		key := oc.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		visionModel := oc.VisionModel
		if visionModel == "" {
			visionModel = oc.TextModel
		}
		o := NewOpenAI(OpenAIOptions{
			BaseURL:     oc.BaseURL,
			APIKey:      key,
			TextModel:   oc.TextModel,
			VisionModel: visionModel,
			Client:      NewHTTPClient(time.Duration(oc.TimeoutSeconds) * time.Second),
			Retry:       policy,
			Logger:      logger.With("backend", "openai"),
		})
		return &Backend{
			Kind:      "openai",
			Generator: o,
			Vision:    o,
			Loader:    NoopLoader{},
			Models: map[domain.ResourceClass]string{
				domain.ResourceTextGeneration: oc.TextModel,
				domain.ResourceVision:         visionModel,
			},
			healthy: o.Healthy,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
}

// RetryPolicy converts the retry config section into a policy.
func RetryPolicy(cfg config.RetryConfig, logger *slog.Logger) retry.Policy {
	p := retry.DefaultPolicy(logger)
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMs > 0 {
		p.BaseDelay = time.Duration(cfg.BaseDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.Jitter >= 0 && cfg.Jitter <= 1 {
		p.Jitter = cfg.Jitter
	}
	return p
}
