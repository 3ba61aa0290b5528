// Package highlight re-locates verified sentences in the original PDF and annotates them.
package highlight

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/metrics"
)

// Stats describes what a highlight pass did.
type Stats struct {
	Requested int  `json:"requested"`
	Located   int  `json:"located"`
	Rects     int  `json:"rects"`
	Missing   int  `json:"missing"`
	Fallback  bool `json:"fallback"` // original bytes returned after an annotation failure
}

type Highlighter struct {
	renderer  types.Renderer
	annotator types.Annotator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func New(renderer types.Renderer, annotator types.Annotator, m *metrics.Metrics, logger zerolog.Logger) *Highlighter {
	return &Highlighter{
		renderer:  renderer,
		annotator: annotator,
		metrics:   m,
		logger:    logger.With().Str("component", "highlighter").Logger(),
	}
}

// Highlight renders pdf and annotates every Yes sentence it can find. It always returns a
// usable document: on any failure the original bytes come back unchanged.
func (h *Highlighter) Highlight(ctx context.Context, pdf []byte, sentences []models.Sentence, records []models.VerificationRecord) ([]byte, Stats) {
	if countYes(records) == 0 {
		return pdf, Stats{}
	}
	doc, err := h.renderer.Render(ctx, pdf)
	if err != nil {
		h.logger.Error().Err(err).Msg("render failed, returning original document")
		return pdf, Stats{Requested: countYes(records), Missing: countYes(records), Fallback: true}
	}
	return h.HighlightRendered(ctx, pdf, doc, sentences, records)
}

// HighlightRendered is Highlight for a document that has already been rendered.
func (h *Highlighter) HighlightRendered(ctx context.Context, pdf []byte, doc types.RenderedDocument, sentences []models.Sentence, records []models.VerificationRecord) (out []byte, stats Stats) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Msg("highlighting panicked, returning original document")
			out = pdf
			stats.Fallback = true
		}
	}()

	byID := make(map[string]models.Sentence, len(sentences))
	for _, s := range sentences {
		byID[s.ID] = s
	}
	pages := doc.Pages()

	var highlights []models.Highlight
	for _, rec := range records {
		if rec.Verdict != models.VerdictYes {
			continue
		}
		stats.Requested++

		s, ok := byID[rec.SentenceID]
		if !ok {
			s = models.Sentence{ID: rec.SentenceID, Page: rec.Page, Index: rec.Index, Text: rec.QueryText}
		}
		log := h.logger.With().Str("sentence", s.ID).Int("page", s.Page).Logger()

		rects, err := doc.Search(s.Page, s.Text)
		if err != nil {
			log.Warn().Err(err).Msg("search failed")
		}
		if len(rects) == 0 {
			stats.Missing++
			log.Info().Err(models.ErrHighlightNotFound).Msg("skipping sentence")
			continue
		}

		height := 0.0
		if s.Page >= 1 && s.Page <= len(pages) {
			height = pages[s.Page-1].Height
		}
		highlights = append(highlights, models.Highlight{
			SentenceID: s.ID,
			Page:       s.Page,
			PageHeight: height,
			Rects:      rects,
		})
		stats.Located++
		stats.Rects += len(rects)
	}

	h.metrics.RecordHighlight("located", stats.Located)
	h.metrics.RecordHighlight("missing", stats.Missing)
	if len(highlights) == 0 {
		return pdf, stats
	}

	annotated, err := h.annotator.Annotate(ctx, pdf, highlights)
	if err != nil || len(annotated) == 0 {
		if err == nil {
			err = fmt.Errorf("%w: empty output", models.ErrHighlightFatal)
		}
		h.logger.Error().Err(err).Msg("annotation failed, returning original document")
		h.metrics.RecordHighlight("fallback", 1)
		stats.Fallback = true
		return pdf, stats
	}
	return annotated, stats
}

func countYes(records []models.VerificationRecord) int {
	n := 0
	for _, r := range records {
		if r.Verdict == models.VerdictYes {
			n++
		}
	}
	return n
}
