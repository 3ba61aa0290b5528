// Package corpus seeds the reference phrase store.
package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/processor"
)

var phraseNamespace = uuid.MustParse("6f1c3a52-8d0e-4b8a-9f57-2f6d0c7e4a11")

// PhraseID is stable for a phrase's text, so reloading a corpus upserts instead of
// duplicating.
func PhraseID(text string) string {
	return uuid.NewSHA1(phraseNamespace, []byte(text)).String()
}

// ReadPhrases reads one phrase per line. Blank lines and lines starting with '#' are
// skipped and duplicates are dropped.
func ReadPhrases(r io.Reader) ([]string, error) {
	var phrases []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := processor.CleanText(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		phrases = append(phrases, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read phrases: %w", err)
	}
	return phrases, nil
}

type LoaderConfig struct {
	BatchSize int
	// OnBatch is called after every stored batch with the running total.
	OnBatch func(done, total int)
}

type Loader struct {
	config   LoaderConfig
	embedder types.Embedder
	store    types.VectorStore
	logger   zerolog.Logger
}

// NewLoader embeds with embedder, which should apply the passage prefix.
func NewLoader(config LoaderConfig, embedder types.Embedder, store types.VectorStore, logger zerolog.Logger) *Loader {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	return &Loader{
		config:   config,
		embedder: embedder,
		store:    store,
		logger:   logger.With().Str("component", "corpus").Logger(),
	}
}

// Load embeds and stores phrases in batches and returns how many were stored.
func (l *Loader) Load(ctx context.Context, phrases []string) (int, error) {
	done := 0
	for start := 0; start < len(phrases); start += l.config.BatchSize {
		end := min(start+l.config.BatchSize, len(phrases))
		batch := phrases[start:end]

		vectors, err := l.embedder.Embed(ctx, batch)
		if err != nil {
			return done, fmt.Errorf("failed to embed phrases %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return done, fmt.Errorf("%w: got %d vectors for %d phrases", models.ErrEmbedding, len(vectors), len(batch))
		}

		refs := make([]models.ReferencePhrase, len(batch))
		for i, text := range batch {
			refs[i] = models.ReferencePhrase{ID: PhraseID(text), Text: text, Embedding: vectors[i]}
		}
		if err := l.store.Store(ctx, refs); err != nil {
			return done, fmt.Errorf("failed to store phrases %d-%d: %w", start, end, err)
		}

		done = end
		l.logger.Debug().Int("done", done).Int("total", len(phrases)).Msg("stored batch")
		if l.config.OnBatch != nil {
			l.config.OnBatch(done, len(phrases))
		}
	}
	l.logger.Info().Int("phrases", done).Msg("corpus loaded")
	return done, nil
}
