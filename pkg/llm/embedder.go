package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/xhad/ackaudit/internal/models"
)

// EmbedderConfig represents the configuration for the sentence embedder.
type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	Dimension int
	BatchSize int
	Timeout   time.Duration
	// QueryPrefix is prepended to sentences, PassagePrefix to corpus phrases. e5 models
	// expect "query: " / "passage: ".
	QueryPrefix   string
	PassagePrefix string
}

// Embedder maps text to fixed-dimension vectors through an Ollama embedding model.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	prefix   string
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Dimension <= 0 {
		config.Dimension = 768
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	client, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithHTTPClient(newQuotaClient("ollama/"+config.Model, config.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		prefix:   config.QueryPrefix,
	}, nil
}

// Passages returns an embedder over the same model that uses the passage prefix.
func (e *Embedder) Passages() *Embedder {
	cp := *e
	cp.prefix = e.config.PassagePrefix
	return &cp
}

func (e *Embedder) Dimension() int { return e.config.Dimension }

// Embed embeds texts in one batch call. Every vector must have the configured dimension.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := texts
	if e.prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = e.prefix + t
		}
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbedding, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.config.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", models.ErrEmbedding, i, len(v), e.config.Dimension)
		}
	}
	return vectors, nil
}
