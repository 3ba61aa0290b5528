// Package pdf reads text geometry out of PDF files and writes highlight annotations back.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/internal/types"
)

type PopplerConfig struct {
	Pdftotext string        // binary name or path
	Timeout   time.Duration // per document
	MaxPages  int           // 0 = all pages
}

// Poppler renders documents with `pdftotext -bbox-layout`.
type Poppler struct {
	config PopplerConfig
	runner Runner
	logger zerolog.Logger
}

func NewWithConfig(config PopplerConfig, logger zerolog.Logger) *Poppler {
	if config.Pdftotext == "" {
		config.Pdftotext = "pdftotext"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	logger = logger.With().Str("component", "pdf").Logger()
	return &Poppler{
		config: config,
		runner: execRunner{logger: logger},
		logger: logger,
	}
}

// WithRunner swaps the command runner.
func (p *Poppler) WithRunner(r Runner) *Poppler {
	p.runner = r
	return p
}

func (p *Poppler) Render(ctx context.Context, data []byte) (types.RenderedDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrExtraction)
	}

	tmp, err := os.CreateTemp("", "ackaudit-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	args := []string{"-bbox-layout", "-enc", "UTF-8"}
	if p.config.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.config.MaxPages))
	}
	args = append(args, tmp.Name(), "-")

	out, errb, err := p.runner.Run(ctx, p.config.Pdftotext, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftotext: %v: %s", models.ErrExtraction, err, strings.TrimSpace(string(errb)))
	}

	doc, err := ParseBBoxLayout(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	if doc.NumPages() == 0 {
		return nil, fmt.Errorf("%w: no pages", models.ErrExtraction)
	}
	p.logger.Debug().Int("pages", doc.NumPages()).Msg("rendered document")
	return doc, nil
}

type word struct {
	text string
	bbox models.Rect
	line int
}

type page struct {
	info  models.Page
	words []word
}

// Document is the parsed bbox-layout output of one PDF.
type Document struct {
	pages []page
}

// ParseBBoxLayout parses the XHTML written by `pdftotext -bbox-layout`.
func ParseBBoxLayout(data []byte) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bbox layout: %w", err)
	}

	doc := &Document{}
	dom.Find("page").Each(func(i int, sel *goquery.Selection) {
		pg := page{info: models.Page{
			Number: i + 1,
			Width:  attrFloat(sel, "width"),
			Height: attrFloat(sel, "height"),
		}}
		line := 0
		sel.Find("block").Each(func(_ int, bs *goquery.Selection) {
			block := models.TextBlock{BBox: attrRect(bs)}
			var heights []float64
			bs.Find("line").Each(func(_ int, ls *goquery.Selection) {
				var parts []string
				ls.Find("word").Each(func(_ int, ws *goquery.Selection) {
					t := strings.TrimSpace(norm.NFKC.String(ws.Text()))
					if t == "" {
						return
					}
					parts = append(parts, t)
					pg.words = append(pg.words, word{text: t, bbox: attrRect(ws), line: line})
				})
				line++
				if len(parts) == 0 {
					return
				}
				r := attrRect(ls)
				block.Lines = append(block.Lines, models.TextLine{
					BBox:     r,
					Text:     strings.Join(parts, " "),
					FontSize: r.Height(),
				})
				heights = append(heights, r.Height())
			})
			if len(block.Lines) == 0 {
				return
			}
			texts := make([]string, len(block.Lines))
			for j, l := range block.Lines {
				texts[j] = l.Text
			}
			block.Text = strings.Join(texts, "\n")
			block.FontSize = median(heights)
			pg.info.Blocks = append(pg.info.Blocks, block)
		})
		doc.pages = append(doc.pages, pg)
	})
	return doc, nil
}

func (d *Document) NumPages() int { return len(d.pages) }

// Pages returns the blocks of every page in the order pdftotext emitted them.
func (d *Document) Pages() []models.Page {
	out := make([]models.Page, len(d.pages))
	for i, p := range d.pages {
		out[i] = p.info
	}
	return out
}

// Search finds the first literal occurrence of text in the page's word stream, where
// words are joined by single spaces. The match is returned as one rectangle per line.
// A miss is not an error.
func (d *Document) Search(pageNum int, text string) ([]models.Rect, error) {
	if pageNum < 1 || pageNum > len(d.pages) {
		return nil, fmt.Errorf("page %d out of range [1,%d]", pageNum, len(d.pages))
	}
	if text == "" {
		return nil, nil
	}
	words := d.pages[pageNum-1].words

	var sb strings.Builder
	starts := make([]int, len(words))
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		starts[i] = sb.Len()
		sb.WriteString(w.text)
	}
	stream := sb.String()

	at := strings.Index(stream, text)
	if at < 0 {
		return nil, nil
	}
	end := at + len(text)

	var rects []models.Rect
	curLine := -1
	for i, w := range words {
		ws, we := starts[i], starts[i]+len(w.text)
		if we <= at || ws >= end {
			continue
		}
		if w.line != curLine {
			rects = append(rects, w.bbox)
			curLine = w.line
			continue
		}
		rects[len(rects)-1] = rects[len(rects)-1].Union(w.bbox)
	}
	return rects, nil
}

func attrFloat(sel *goquery.Selection, name string) float64 {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

// attrRect reads the xMin/yMin/xMax/yMax attributes; the HTML parser lowercases them.
func attrRect(sel *goquery.Selection) models.Rect {
	return models.Rect{
		X0: attrFloat(sel, "xmin"),
		Y0: attrFloat(sel, "ymin"),
		X1: attrFloat(sel, "xmax"),
		Y1: attrFloat(sel, "ymax"),
	}
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
