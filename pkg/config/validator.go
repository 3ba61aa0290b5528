package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Validate LLM config
	if !isHTTPURL(c.LLM.Embedding.BaseURL) {
		add("llm.embedding.base_url", "Ollama base URL is required")
	}
	if c.LLM.Embedding.Dimension < 1 {
		add("llm.embedding.dimension", "dimension must be positive")
	}
	if len(c.LLM.Classifiers) < 2 {
		add("llm.classifiers", "a primary and a fallback classifier are required")
	}
	seen := map[string]bool{}
	for i, cl := range c.LLM.Classifiers {
		field := fmt.Sprintf("llm.classifiers[%d]", i)
		switch cl.Kind {
		case "ollama":
		case "openai":
			if cl.APIKey == "" {
				add(field+".api_key", "api_key is required for openai")
			}
		default:
			add(field+".kind", fmt.Sprintf("unknown kind %q", cl.Kind))
		}
		if cl.BaseURL != "" && !isHTTPURL(cl.BaseURL) {
			add(field+".base_url", "invalid base URL")
		}
		if cl.MaxTokens < 1 || cl.MaxTokens > 4096 {
			add(field+".max_tokens", "max_tokens must be between 1 and 4096")
		}
		if cl.Name != "" {
			if seen[cl.Name] {
				add(field+".name", fmt.Sprintf("duplicate classifier name %q", cl.Name))
			}
			seen[cl.Name] = true
		}
	}

	// Validate Database config
	switch c.Database.Driver {
	case "memory":
	case "pgvector":
		if c.Database.URL == "" {
			add("database.url", "database URL is required for pgvector")
		} else if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			add("database.url", "invalid database URL")
		}
	default:
		add("database.driver", fmt.Sprintf("unknown driver %q", c.Database.Driver))
	}
	if c.Database.BatchSize < 1 {
		add("database.batch_size", "batch_size must be positive")
	}
	switch c.Database.Index {
	case "hnsw", "ivfflat", "none":
	default:
		add("database.index", fmt.Sprintf("unknown index %q", c.Database.Index))
	}
	if c.Database.TopK < 1 {
		add("database.top_k", "top_k must be positive")
	}

	// Validate Verifier config
	if t := c.Verifier.Threshold; t == nil || *t < 0 || *t > 1 {
		add("verifier.threshold", "threshold must be in [0, 1]")
	}
	if c.Verifier.MaxSentences < 1 {
		add("verifier.max_sentences", "max_sentences must be positive")
	}
	if c.Verifier.RequestsPerSecond < 0 {
		add("verifier.requests_per_second", "requests_per_second cannot be negative")
	}

	// Validate Highlight config
	if len(c.Highlight.Color) != 3 {
		add("highlight.color", "color must have three components")
	}
	for _, v := range c.Highlight.Color {
		if v < 0 || v > 1 {
			add("highlight.color", "color components must be between 0 and 1")
			break
		}
	}
	if c.Highlight.Opacity <= 0 || c.Highlight.Opacity > 1 {
		add("highlight.opacity", "opacity must be in (0, 1]")
	}

	// Validate Fetcher config
	if c.Fetcher.MaxDepth < 0 {
		add("fetcher.max_depth", "max_depth cannot be negative")
	}
	if c.Fetcher.RateLimit <= 0 {
		add("fetcher.rate_limit", "rate_limit must be positive")
	}

	if c.Server.MaxUploadMB < 1 {
		add("server.max_upload_mb", "max_upload_mb must be positive")
	}

	return errors
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
