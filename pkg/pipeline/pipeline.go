// Package pipeline composes extraction, verification and highlighting into an audit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/highlight"
	"github.com/xhad/ackaudit/pkg/layout"
	"github.com/xhad/ackaudit/pkg/metadata"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/processor"
	"github.com/xhad/ackaudit/pkg/retriever"
	"github.com/xhad/ackaudit/pkg/verifier"
)

// Stage names reported in progress events and metrics.
const (
	StageExtract   = "extract"
	StageRetrieve  = "retrieve"
	StageClassify  = "classify"
	StageHighlight = "highlight"
	StageDone      = "done"
)

// Event reports audit progress. Progress runs from 0 to 1.
type Event struct {
	DocumentID string  `json:"document_id"`
	Stage      string  `json:"stage"`
	Message    string  `json:"message"`
	Progress   float64 `json:"progress"`
}

// Deps are the components an Auditor drives.
type Deps struct {
	Renderer    types.Renderer
	Layout      layout.LayoutConfig
	Metadata    *metadata.Extractor
	Segmenter   processor.Processor
	Retriever   *retriever.Retriever
	Verifier    *verifier.Verifier
	Highlighter *highlight.Highlighter
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

type Auditor struct {
	deps   Deps
	logger zerolog.Logger
}

func New(deps Deps) *Auditor {
	if deps.Metadata == nil {
		deps.Metadata = metadata.NewWithConfig(metadata.DefaultConfig())
	}
	return &Auditor{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "auditor").Logger(),
	}
}

// Result is the full outcome of auditing one document.
type Result struct {
	DocumentID string                  `json:"document_id"`
	Name       string                  `json:"name"`
	Extraction *models.Extraction      `json:"extraction"`
	Verdict    *models.DocumentVerdict `json:"verdict"`
	Highlight  highlight.Stats         `json:"highlight"`
	Annotated  []byte                  `json:"-"`
	Duration   time.Duration           `json:"duration_ns"`
}

// Extract renders the document and returns its metadata, sentences and pages.
func (a *Auditor) Extract(ctx context.Context, pdf []byte) (*models.Extraction, error) {
	ext, _, err := a.extract(ctx, pdf)
	return ext, err
}

func (a *Auditor) extract(ctx context.Context, pdf []byte) (*models.Extraction, types.RenderedDocument, error) {
	start := time.Now()
	defer func() { a.deps.Metrics.RecordStage(StageExtract, time.Since(start)) }()

	doc, err := a.deps.Renderer.Render(ctx, pdf)
	if err != nil {
		if !errors.Is(err, models.ErrExtraction) {
			err = fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}
		return nil, nil, err
	}

	pages := doc.Pages()
	hasText := false
	for i := range pages {
		reading := layout.Order(pages[i].Blocks, pages[i].Width, a.deps.Layout)
		pages[i].Blocks = reading.Blocks
		pages[i].Columns = reading.Columns
		pages[i].Text = reading.Text()
		if pages[i].Text == "" {
			a.logger.Debug().Int("page", pages[i].Number).Msg("page has no text layer")
			continue
		}
		hasText = true
	}
	if !hasText {
		return nil, nil, fmt.Errorf("%w: no text layer on any page", models.ErrExtraction)
	}

	md := a.deps.Metadata.Extract(pages)
	sentences := a.deps.Segmenter.Process(pages)

	ext := &models.Extraction{
		Title:       md.Title,
		Authors:     nonNil(md.Authors),
		Identifier:  md.Identifier,
		Year:        md.Year,
		Instruments: nonNil(md.Instruments),
		NumPages:    doc.NumPages(),
		Sentences:   sentences,
		Pages:       pages,
	}
	if ext.Sentences == nil {
		ext.Sentences = []models.Sentence{}
	}
	a.logger.Debug().
		Int("pages", ext.NumPages).
		Int("sentences", len(ext.Sentences)).
		Str("title", ext.Title).
		Msg("extracted document")
	return ext, doc, nil
}

// Verify retrieves candidates for every sentence, classifies the selected ones and
// aggregates the verdict. Embedding and retrieval failures are returned; classification
// failures are recorded per sentence.
func (a *Auditor) Verify(ctx context.Context, ext *models.Extraction) (*models.DocumentVerdict, error) {
	return a.verify(ctx, ext, func(string, string, float64) {})
}

func (a *Auditor) verify(ctx context.Context, ext *models.Extraction, progress func(stage, msg string, p float64)) (*models.DocumentVerdict, error) {
	if ext == nil {
		return nil, fmt.Errorf("nil extraction")
	}
	if a.deps.Retriever == nil || a.deps.Verifier == nil {
		return nil, fmt.Errorf("verification is not configured")
	}

	start := time.Now()
	results, err := a.deps.Retriever.Retrieve(ctx, ext.Sentences)
	a.deps.Metrics.RecordStage(StageRetrieve, time.Since(start))
	if err != nil {
		return nil, err
	}
	progress(StageClassify, fmt.Sprintf("retrieved candidates for %d sentences", len(results)), 0.5)

	start = time.Now()
	records := a.deps.Verifier.Verify(ctx, results)
	a.deps.Metrics.RecordStage(StageClassify, time.Since(start))

	verdict := verifier.Aggregate(records)
	return &verdict, nil
}

// Highlight annotates the Yes sentences in pdf. It never fails; the original bytes are
// returned when nothing could be annotated.
func (a *Auditor) Highlight(ctx context.Context, pdf []byte, sentences []models.Sentence, records []models.VerificationRecord) []byte {
	out, _ := a.deps.Highlighter.Highlight(ctx, pdf, sentences, records)
	return out
}

// Audit runs extraction, verification and highlighting for one document, reporting
// progress through the optional callback.
func (a *Auditor) Audit(ctx context.Context, doc models.Document, progress func(Event)) (*Result, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if progress == nil {
		progress = func(Event) {}
	}
	emit := func(stage, msg string, p float64) {
		progress(Event{DocumentID: doc.ID, Stage: stage, Message: msg, Progress: p})
	}
	log := a.logger.With().Str("document", doc.ID).Str("name", doc.Name).Logger()

	defer a.deps.Metrics.Track()()
	started := time.Now()

	emit(StageExtract, "extracting text", 0)
	ext, rendered, err := a.extract(ctx, doc.Bytes)
	if err != nil {
		a.deps.Metrics.RecordDocument("extraction_failed")
		log.Error().Err(err).Msg("extraction failed")
		return nil, err
	}

	emit(StageRetrieve, fmt.Sprintf("%d sentences on %d pages", len(ext.Sentences), ext.NumPages), 0.25)
	verdict, err := a.verify(ctx, ext, emit)
	if err != nil {
		a.deps.Metrics.RecordDocument("verification_failed")
		log.Error().Err(err).Msg("verification failed")
		return nil, err
	}

	emit(StageHighlight, fmt.Sprintf("verdict %s (confidence %.2f)", verdict.Result, verdict.Confidence), 0.75)
	start := time.Now()
	annotated, stats := a.deps.Highlighter.HighlightRendered(ctx, doc.Bytes, rendered, ext.Sentences, verdict.Verifications)
	a.deps.Metrics.RecordStage(StageHighlight, time.Since(start))

	res := &Result{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Extraction: ext,
		Verdict:    verdict,
		Highlight:  stats,
		Annotated:  annotated,
		Duration:   time.Since(started),
	}
	a.deps.Metrics.RecordDocument(strings.ToLower(string(verdict.Result)))
	emit(StageDone, "audit complete", 1)
	log.Info().
		Str("result", string(verdict.Result)).
		Float64("confidence", verdict.Confidence).
		Int("classified", len(verdict.Verifications)).
		Int("highlighted", stats.Located).
		Dur("took", res.Duration).
		Msg("audited document")
	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
