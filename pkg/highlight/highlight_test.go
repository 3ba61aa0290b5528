package highlight_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/highlight"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/pdf"
)

const layout = `<html><body><doc>
<page width="612" height="792"><flow><block xMin="72" yMin="100" xMax="500" yMax="114">
<line xMin="72" yMin="100" xMax="500" yMax="114">
<word xMin="72" yMin="100" xMax="90" yMax="114">We</word>
<word xMin="94" yMin="100" xMax="180" yMax="114">acknowledge</word>
<word xMin="184" yMin="100" xMax="220" yMax="114">the</word>
<word xMin="224" yMin="100" xMax="280" yMax="114">CMCA.</word>
</line></block></flow></page>
</doc></body></html>`

type staticRenderer struct {
	doc types.RenderedDocument
	err error
}

func (r staticRenderer) Render(context.Context, []byte) (types.RenderedDocument, error) {
	return r.doc, r.err
}

type recordingAnnotator struct {
	got   []models.Highlight
	err   error
	panic bool
}

func (a *recordingAnnotator) Annotate(_ context.Context, pdf []byte, hs []models.Highlight) ([]byte, error) {
	if a.panic {
		panic("corrupt xref")
	}
	a.got = hs
	if a.err != nil {
		return nil, a.err
	}
	return append([]byte("annotated:"), pdf...), nil
}

func fixture(t *testing.T) types.RenderedDocument {
	doc, err := pdf.ParseBBoxLayout([]byte(layout))
	require.NoError(t, err)
	return doc
}

var sentence = models.Sentence{ID: "p1_s1", Page: 1, Index: 1, Text: "We acknowledge the CMCA."}

func yes(s models.Sentence) models.VerificationRecord {
	return models.VerificationRecord{SentenceID: s.ID, Page: s.Page, Index: s.Index, QueryText: s.Text, Verdict: models.VerdictYes}
}

func TestHighlighter_Verbatim(t *testing.T) {
	ann := &recordingAnnotator{}
	h := highlight.New(staticRenderer{doc: fixture(t)}, ann, metrics.New(), zerolog.Nop())

	out, stats := h.Highlight(context.Background(), []byte("%PDF"), []models.Sentence{sentence}, []models.VerificationRecord{
		yes(sentence),
		{SentenceID: "p1_s2", Page: 1, Verdict: models.VerdictNo, QueryText: "ignored"},
	})

	assert.Equal(t, "annotated:%PDF", string(out))
	assert.Equal(t, highlight.Stats{Requested: 1, Located: 1, Rects: 1}, stats)
	require.Len(t, ann.got, 1)
	assert.Equal(t, 792.0, ann.got[0].PageHeight)
	assert.Equal(t, []models.Rect{{X0: 72, Y0: 100, X1: 280, Y1: 114}}, ann.got[0].Rects)
}

func TestHighlighter_AlteredSentenceIsSkipped(t *testing.T) {
	ann := &recordingAnnotator{}
	h := highlight.New(staticRenderer{doc: fixture(t)}, ann, nil, zerolog.Nop())
	altered := sentence
	altered.Text = "We  acknowledge the CMCA."

	out, stats := h.Highlight(context.Background(), []byte("%PDF"), []models.Sentence{altered}, []models.VerificationRecord{yes(altered)})

	assert.Equal(t, "%PDF", string(out))
	assert.Equal(t, 0, stats.Rects)
	assert.Equal(t, 1, stats.Missing)
	assert.Nil(t, ann.got)
}

func TestHighlighter_FailuresReturnOriginal(t *testing.T) {
	records := []models.VerificationRecord{yes(sentence)}
	sentences := []models.Sentence{sentence}

	t.Run("annotator error", func(t *testing.T) {
		h := highlight.New(staticRenderer{doc: fixture(t)}, &recordingAnnotator{err: models.ErrHighlightFatal}, nil, zerolog.Nop())
		out, stats := h.Highlight(context.Background(), []byte("%PDF"), sentences, records)
		assert.Equal(t, "%PDF", string(out))
		assert.True(t, stats.Fallback)
	})

	t.Run("annotator panic", func(t *testing.T) {
		h := highlight.New(staticRenderer{doc: fixture(t)}, &recordingAnnotator{panic: true}, nil, zerolog.Nop())
		out, stats := h.Highlight(context.Background(), []byte("%PDF"), sentences, records)
		assert.Equal(t, "%PDF", string(out))
		assert.True(t, stats.Fallback)
	})

	t.Run("render error", func(t *testing.T) {
		h := highlight.New(staticRenderer{err: errors.New("bad pdf")}, &recordingAnnotator{}, nil, zerolog.Nop())
		out, stats := h.Highlight(context.Background(), []byte("%PDF"), sentences, records)
		assert.Equal(t, "%PDF", string(out))
		assert.True(t, stats.Fallback)
	})

	t.Run("no yes records", func(t *testing.T) {
		h := highlight.New(staticRenderer{err: errors.New("never called")}, &recordingAnnotator{}, nil, zerolog.Nop())
		out, stats := h.Highlight(context.Background(), []byte("%PDF"), sentences, nil)
		assert.Equal(t, "%PDF", string(out))
		assert.Equal(t, highlight.Stats{}, stats)
	})
}

func TestHighlighter_UnknownSentenceUsesRecord(t *testing.T) {
	ann := &recordingAnnotator{}
	h := highlight.New(staticRenderer{doc: fixture(t)}, ann, nil, zerolog.Nop())

	_, stats := h.Highlight(context.Background(), []byte("%PDF"), nil, []models.VerificationRecord{yes(sentence)})
	assert.Equal(t, 1, stats.Located)
}
