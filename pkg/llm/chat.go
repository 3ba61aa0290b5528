package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/ackaudit/internal/models"
)

const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
)

// ChatConfig describes one classification provider.
type ChatConfig struct {
	Name      string // identity recorded on verdicts; defaults to Kind/Model
	Kind      string // openai or ollama
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// ChatProvider sends zero-temperature chat requests to an LLM.
type ChatProvider struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a ChatProvider for the configured backend.
func NewWithConfig(config ChatConfig) (*ChatProvider, error) {
	if config.Kind == "" {
		config.Kind = KindOllama
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 256
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Kind {
	case KindOllama:
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		if config.Name == "" {
			config.Name = config.Kind + "/" + config.Model
		}
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
			ollama.WithHTTPClient(newQuotaClient(config.Name, config.Timeout)),
		)
	case KindOpenAI:
		if config.Model == "" {
			config.Model = "gpt-4o-mini"
		}
		if config.Name == "" {
			config.Name = config.Kind + "/" + config.Model
		}
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithToken(config.APIKey),
			openai.WithHTTPClient(newQuotaClient(config.Name, config.Timeout)),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", config.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatProvider{
		config: config,
		llm:    model,
	}, nil
}

// NewWithModel wraps an existing model.
func NewWithModel(name string, model llms.Model) *ChatProvider {
	return &ChatProvider{config: ChatConfig{Name: name, MaxTokens: 256}, llm: model}
}

func (cp *ChatProvider) Name() string { return cp.config.Name }

// Classify sends the system and user prompts and returns the first choice's text.
// Quota failures come back as *RateLimitError.
func (cp *ChatProvider) Classify(ctx context.Context, system, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	ctx, probe := withProbe(ctx)
	resp, err := cp.llm.GenerateContent(ctx, content,
		llms.WithTemperature(0),
		llms.WithMaxTokens(cp.config.MaxTokens),
	)
	if err != nil {
		var rle *RateLimitError
		if errors.As(err, &rle) {
			return "", rle
		}
		if probe.limited {
			return "", &RateLimitError{Provider: cp.config.Name, RetryAfter: probe.retryAfter}
		}
		return "", fmt.Errorf("%w: %s: %v", models.ErrClassification, cp.config.Name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: %s: empty response", models.ErrClassification, cp.config.Name)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
