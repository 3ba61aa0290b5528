package pdf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/pdf"
)

const bboxLayout = `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
<title></title>
<meta name="Producer" content="pdfTeX"/>
</head>
<body>
<doc>
  <page width="612.000000" height="792.000000">
    <flow>
      <block xMin="72.0" yMin="100.0" xMax="300.0" yMax="134.0">
        <line xMin="72.0" yMin="100.0" xMax="300.0" yMax="114.0">
          <word xMin="72.0" yMin="100.0" xMax="130.0" yMax="114.0">The</word>
          <word xMin="134.0" yMin="100.0" xMax="190.0" yMax="114.0">authors</word>
          <word xMin="194.0" yMin="100.0" xMax="300.0" yMax="114.0">acknowledge</word>
        </line>
        <line xMin="72.0" yMin="120.0" xMax="260.0" yMax="134.0">
          <word xMin="72.0" yMin="120.0" xMax="110.0" yMax="134.0">the</word>
          <word xMin="114.0" yMin="120.0" xMax="170.0" yMax="134.0">CMCA</word>
          <word xMin="174.0" yMin="120.0" xMax="260.0" yMax="134.0">ﬁrmly.</word>
        </line>
      </block>
    </flow>
  </page>
  <page width="612.000000" height="792.000000">
  </page>
</doc>
</body>
</html>`

type fakeRunner struct {
	out  []byte
	err  error
	name string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name, f.args = name, args
	if f.err != nil {
		return nil, []byte("Syntax Error: broken"), f.err
	}
	return f.out, nil, nil
}

func TestPoppler_Render(t *testing.T) {
	runner := &fakeRunner{out: []byte(bboxLayout)}
	p := pdf.NewWithConfig(pdf.PopplerConfig{MaxPages: 5}, zerolog.Nop()).WithRunner(runner)

	doc, err := p.Render(context.Background(), []byte("%PDF-1.7"))
	require.NoError(t, err)

	assert.Equal(t, "pdftotext", runner.name)
	assert.Contains(t, runner.args, "-bbox-layout")
	assert.Contains(t, runner.args, "5")

	require.Equal(t, 2, doc.NumPages())
	pages := doc.Pages()
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 612.0, pages[0].Width)
	assert.Equal(t, 792.0, pages[0].Height)
	require.Len(t, pages[0].Blocks, 1)

	b := pages[0].Blocks[0]
	assert.Equal(t, "The authors acknowledge\nthe CMCA firmly.", b.Text)
	assert.Equal(t, models.Rect{X0: 72, Y0: 100, X1: 300, Y1: 134}, b.BBox)
	assert.InDelta(t, 14.0, b.FontSize, 1e-9)
	require.Len(t, b.Lines, 2)

	assert.Empty(t, pages[1].Blocks)
}

func TestPoppler_RenderFailures(t *testing.T) {
	p := pdf.NewWithConfig(pdf.PopplerConfig{}, zerolog.Nop()).
		WithRunner(&fakeRunner{err: errors.New("exit status 1")})

	_, err := p.Render(context.Background(), []byte("not a pdf"))
	assert.ErrorIs(t, err, models.ErrExtraction)

	_, err = p.Render(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrExtraction)

	p = pdf.NewWithConfig(pdf.PopplerConfig{}, zerolog.Nop()).
		WithRunner(&fakeRunner{out: []byte("<html><body><doc></doc></body></html>")})
	_, err = p.Render(context.Background(), []byte("%PDF-1.7"))
	assert.ErrorIs(t, err, models.ErrExtraction)
}

func TestDocument_Search(t *testing.T) {
	doc, err := pdf.ParseBBoxLayout([]byte(bboxLayout))
	require.NoError(t, err)

	t.Run("across lines", func(t *testing.T) {
		rects, err := doc.Search(1, "authors acknowledge the CMCA")
		require.NoError(t, err)
		require.Len(t, rects, 2)
		assert.Equal(t, models.Rect{X0: 134, Y0: 100, X1: 300, Y1: 114}, rects[0])
		assert.Equal(t, models.Rect{X0: 72, Y0: 120, X1: 170, Y1: 134}, rects[1])
	})

	t.Run("single line", func(t *testing.T) {
		rects, err := doc.Search(1, "CMCA firmly.")
		require.NoError(t, err)
		assert.Equal(t, []models.Rect{{X0: 114, Y0: 120, X1: 260, Y1: 134}}, rects)
	})

	t.Run("altered text", func(t *testing.T) {
		rects, err := doc.Search(1, "authors  acknowledge")
		require.NoError(t, err)
		assert.Empty(t, rects)
	})

	t.Run("page out of range", func(t *testing.T) {
		_, err := doc.Search(3, "CMCA")
		assert.Error(t, err)
	})
}
