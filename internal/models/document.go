package models

// Rect is a rectangle in PDF points with a top-left origin (y grows downward).
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

type TextLine struct {
	BBox     Rect    `json:"bbox"`
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
}

// TextBlock is produced once by the layout extractor and is read-only afterwards.
// FontSize is the dominant line height of the block.
type TextBlock struct {
	BBox     Rect       `json:"bbox"`
	Text     string     `json:"text"`
	FontSize float64    `json:"font_size"`
	Lines    []TextLine `json:"lines,omitempty"`
}

type Page struct {
	Number  int         `json:"page"`
	Width   float64     `json:"width"`
	Height  float64     `json:"height"`
	Columns int         `json:"columns"`
	Blocks  []TextBlock `json:"blocks,omitempty"`
	Text    string      `json:"text"`
}

// Document is the raw upload. It is never mutated; only derived records outlive it.
type Document struct {
	ID    string
	Name  string
	Bytes []byte
}

// Extraction is the payload handed from extraction to verification.
type Extraction struct {
	Title       string     `json:"title"`
	Authors     []string   `json:"authors"`
	Identifier  string     `json:"identifier"`
	Year        string     `json:"year,omitempty"`
	Instruments []string   `json:"instruments"`
	NumPages    int        `json:"num_pages"`
	Sentences   []Sentence `json:"sentences"`
	Pages       []Page     `json:"pages"`
}
