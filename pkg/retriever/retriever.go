// Package retriever finds the reference phrases nearest to each sentence of a document.
package retriever

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
)

type RetrieverConfig struct {
	K int // neighbours per sentence
}

type Retriever struct {
	config   RetrieverConfig
	embedder types.Embedder
	store    types.VectorStore
	logger   zerolog.Logger
}

func NewWithConfig(config RetrieverConfig, embedder types.Embedder, store types.VectorStore, logger zerolog.Logger) *Retriever {
	if config.K <= 0 {
		config.K = 30
	}
	return &Retriever{
		config:   config,
		embedder: embedder,
		store:    store,
		logger:   logger.With().Str("component", "retriever").Logger(),
	}
}

// Result holds the ranked candidates of one sentence.
type Result struct {
	Sentence   models.Sentence
	Candidates []models.CandidateMatch
}

// Best returns the most similar candidate.
func (r Result) Best() (models.CandidateMatch, bool) {
	if len(r.Candidates) == 0 {
		return models.CandidateMatch{}, false
	}
	return r.Candidates[0], true
}

// Retrieve embeds all sentences in one batch and looks up the neighbours of each.
// Embedding failures wrap ErrEmbedding and store failures wrap ErrRetrieval; an empty
// corpus is a retrieval failure.
func (r *Retriever) Retrieve(ctx context.Context, sentences []models.Sentence) ([]Result, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = s.Text
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("%w: got %d vectors for %d sentences", models.ErrEmbedding, len(vectors), len(sentences))
	}

	results := make([]Result, len(sentences))
	for i, s := range sentences {
		matches, err := r.store.Nearest(ctx, vectors[i], r.config.K)
		if err != nil {
			return nil, fmt.Errorf("%w: sentence %s: %w", models.ErrRetrieval, s.ID, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, models.ErrNoReferenceCorpus)
		}
		for j := range matches {
			matches[j].SentenceID = s.ID
		}
		results[i] = Result{Sentence: s, Candidates: matches}
	}

	r.logger.Debug().Int("sentences", len(sentences)).Int("k", r.config.K).Msg("retrieved candidates")
	return results, nil
}
