package types

import (
	"context"

	"github.com/xhad/ackaudit/internal/models"
)

// Core interfaces

// Embedder maps texts to fixed-dimension vectors, deterministically for identical input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorStore holds the reference phrase corpus. Implementations must be safe for
// concurrent readers.
type VectorStore interface {
	Nearest(ctx context.Context, embedding []float32, k int) ([]models.CandidateMatch, error)
	Store(ctx context.Context, phrases []models.ReferencePhrase) error
	Count(ctx context.Context) (int, error)
	Close()
}

// Classifier is one reasoning provider. Quota failures must satisfy
// errors.Is(err, models.ErrRateLimited).
type Classifier interface {
	Name() string
	Classify(ctx context.Context, system, prompt string) (string, error)
}

// Renderer turns PDF bytes into an inspectable document.
type Renderer interface {
	Render(ctx context.Context, pdf []byte) (RenderedDocument, error)
}

type RenderedDocument interface {
	NumPages() int
	// Pages returns unordered blocks per page; reading order is the layout extractor's job.
	Pages() []models.Page
	// Search finds the literal text on a 1-based page and returns one rectangle per line.
	Search(page int, text string) ([]models.Rect, error)
}

// Annotator applies highlight annotations and re-serialises the document.
type Annotator interface {
	Annotate(ctx context.Context, pdf []byte, highlights []models.Highlight) ([]byte, error)
}

// Sink persists annotated documents and returns a locator for them.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}
