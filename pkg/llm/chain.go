package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
)

// Chain tries providers in order. Only a rate-limited provider hands over to the next
// one; any other failure ends the attempt.
type Chain struct {
	providers []types.Classifier
	logger    zerolog.Logger

	// OnFallback is called each time a rate-limited provider hands over.
	OnFallback func(from, to string)
}

func NewChain(logger zerolog.Logger, providers ...types.Classifier) *Chain {
	return &Chain{
		providers: providers,
		logger:    logger.With().Str("component", "chain").Logger(),
	}
}

// Names lists the providers in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Classify returns the response and the name of the provider that produced it.
func (c *Chain) Classify(ctx context.Context, system, prompt string) (string, string, error) {
	if len(c.providers) == 0 {
		return "", "", fmt.Errorf("%w: no providers configured", models.ErrClassification)
	}

	var lastErr error
	for i, p := range c.providers {
		resp, err := p.Classify(ctx, system, prompt)
		if err == nil {
			return resp, p.Name(), nil
		}
		lastErr = err
		if !errors.Is(err, models.ErrRateLimited) {
			return "", p.Name(), err
		}
		if i+1 < len(c.providers) {
			next := c.providers[i+1].Name()
			c.logger.Warn().Str("from", p.Name()).Str("to", next).Msg("provider rate limited, falling back")
			if c.OnFallback != nil {
				c.OnFallback(p.Name(), next)
			}
		}
	}
	return "", c.providers[len(c.providers)-1].Name(), lastErr
}
