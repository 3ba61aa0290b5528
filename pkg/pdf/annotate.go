package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/models"
)

type AnnotatorConfig struct {
	Color   [3]float64 // RGB in [0,1]
	Opacity float64
	Author  string
}

// Annotator writes /Highlight annotations with pdfcpu.
type Annotator struct {
	config AnnotatorConfig
	logger zerolog.Logger
}

func NewAnnotator(config AnnotatorConfig, logger zerolog.Logger) *Annotator {
	if config.Color == [3]float64{} {
		config.Color = [3]float64{1, 1, 0}
	}
	if config.Opacity <= 0 || config.Opacity > 1 {
		config.Opacity = 0.4
	}
	if config.Author == "" {
		config.Author = "ackaudit"
	}
	return &Annotator{
		config: config,
		logger: logger.With().Str("component", "annotator").Logger(),
	}
}

// Annotate adds one highlight annotation per rectangle and re-serialises the document.
// Rectangles are in top-left origin points and are flipped against the page height.
func (a *Annotator) Annotate(ctx context.Context, data []byte, highlights []models.Highlight) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", models.ErrHighlightFatal, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pdf: %v", models.ErrHighlightFatal, err)
	}
	if err := api.ValidateContext(pctx); err != nil {
		return nil, fmt.Errorf("%w: failed to validate pdf: %v", models.ErrHighlightFatal, err)
	}

	added := 0
	for _, h := range highlights {
		if len(h.Rects) == 0 {
			continue
		}
		if h.Page < 1 || h.Page > pctx.PageCount {
			return nil, fmt.Errorf("%w: page %d out of range", models.ErrHighlightFatal, h.Page)
		}
		n, err := a.annotatePage(pctx, h)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", models.ErrHighlightFatal, h.Page, err)
		}
		added += n
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pctx, &buf); err != nil {
		return nil, fmt.Errorf("%w: failed to write pdf: %v", models.ErrHighlightFatal, err)
	}
	a.logger.Debug().Int("annotations", added).Msg("annotated document")
	return buf.Bytes(), nil
}

func (a *Annotator) annotatePage(pctx *model.Context, h models.Highlight) (int, error) {
	pageDict, _, inh, err := pctx.PageDict(h.Page, false)
	if err != nil {
		return 0, err
	}
	if pageDict == nil {
		return 0, fmt.Errorf("missing page dict")
	}

	originX, originY, height := pageFrame(inh, h.PageHeight)

	var annots types.Array
	if obj, found := pageDict.Find("Annots"); found && obj != nil {
		existing, err := pctx.DereferenceArray(obj)
		if err != nil {
			return 0, err
		}
		annots = append(annots, existing...)
	}

	for _, r := range h.Rects {
		x0, x1 := originX+r.X0, originX+r.X1
		top, bottom := originY+height-r.Y0, originY+height-r.Y1

		d := types.Dict(map[string]types.Object{
			"Type":    types.Name("Annot"),
			"Subtype": types.Name("Highlight"),
			"Rect":    floats(x0, bottom, x1, top),
			"QuadPoints": floats(
				x0, top, x1, top,
				x0, bottom, x1, bottom,
			),
			"C":        floats(a.config.Color[0], a.config.Color[1], a.config.Color[2]),
			"CA":       types.Float(a.config.Opacity),
			"F":        types.Integer(4),
			"T":        types.StringLiteral(a.config.Author),
			"Contents": types.StringLiteral(h.SentenceID),
			"NM":       types.StringLiteral(uuid.NewString()),
		})
		ref, err := pctx.IndRefForNewObject(d)
		if err != nil {
			return 0, err
		}
		annots = append(annots, *ref)
	}
	pageDict["Annots"] = annots
	return len(h.Rects), nil
}

// pageFrame returns the lower-left corner and height of the visible page box. pdftotext
// measures from the crop box, which defaults to the media box.
func pageFrame(inh *model.InheritedPageAttrs, pageHeight float64) (x, y, height float64) {
	height = pageHeight
	if inh == nil {
		return 0, 0, height
	}
	box := inh.MediaBox
	if inh.CropBox != nil {
		box = inh.CropBox
	}
	if box == nil {
		return 0, 0, height
	}
	if height <= 0 {
		height = box.Height()
	}
	return box.LL.X, box.LL.Y, height
}

func floats(vs ...float64) types.Array {
	arr := make(types.Array, len(vs))
	for i, v := range vs {
		arr[i] = types.Float(v)
	}
	return arr
}
