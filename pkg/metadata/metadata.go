// Package metadata pulls bibliographic fields and instrument mentions out of laid-out pages.
package metadata

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/xhad/ackaudit/internal/models"
)

var (
	doiRE    = regexp.MustCompile(`(?i)\b(10\.\d{4,9}/[-._;()/:A-Z0-9]+)\b`)
	yearRE   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	markerRE = regexp.MustCompile(`[\*\d†‡§#]+`)
	splitRE  = regexp.MustCompile(`\s*(?:,|;|\band\b)\s*`)
	spaceRE  = regexp.MustCompile(`\s+`)
)

// DefaultInstruments is the technique and vendor vocabulary.
var DefaultInstruments = []string{
	"SEM", "TEM", "STEM", "AFM", "XRD", "X-ray diffraction", "NMR", "FTIR", "Raman",
	"LC-MS", "GC-MS", "HPLC", "EDX", "EDS", "ICP-OES", "ICP-MS", "FIB", "SAXS", "WAXS",
	"Zeiss", "Rigaku", "Bruker", "JEOL", "Thermo Fisher", "Hitachi", "Nikon",
	"Oxford Instruments", "Micromeritics", "Gatan", "Asylum Research",
}

type MetadataConfig struct {
	// TitleRegion is the fraction of the first page height searched for the title.
	TitleRegion float64
	// SizePrecision is the font size bucket width.
	SizePrecision float64
	// TitleTolerance: buckets within this distance of the largest size compete for the
	// title band.
	TitleTolerance float64
	AuthorMinSize  float64
	// AuthorWindow is how far below the last title line authors are looked for, in points.
	AuthorWindow float64
	Instruments  []string
}

func DefaultConfig() MetadataConfig {
	return MetadataConfig{
		TitleRegion:    0.40,
		SizePrecision:  0.5,
		TitleTolerance: 1.0,
		AuthorMinSize:  7,
		AuthorWindow:   220,
		Instruments:    DefaultInstruments,
	}
}

type Metadata struct {
	Title       string
	Authors     []string
	Identifier  string
	Year        string
	Instruments []string
}

type Extractor struct {
	config      MetadataConfig
	instruments []instrument
}

type instrument struct {
	name string
	re   *regexp.Regexp
}

func NewWithConfig(config MetadataConfig) *Extractor {
	d := DefaultConfig()
	if config.TitleRegion <= 0 || config.TitleRegion > 1 {
		config.TitleRegion = d.TitleRegion
	}
	if config.SizePrecision <= 0 {
		config.SizePrecision = d.SizePrecision
	}
	if config.TitleTolerance <= 0 {
		config.TitleTolerance = d.TitleTolerance
	}
	if config.AuthorMinSize <= 0 {
		config.AuthorMinSize = d.AuthorMinSize
	}
	if config.AuthorWindow <= 0 {
		config.AuthorWindow = d.AuthorWindow
	}
	if len(config.Instruments) == 0 {
		config.Instruments = d.Instruments
	}

	e := &Extractor{config: config}
	for _, name := range config.Instruments {
		flags := `(?i)`
		if isAcronym(name) {
			flags = ""
		}
		e.instruments = append(e.instruments, instrument{
			name: name,
			re:   regexp.MustCompile(flags + `\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	return e
}

// isAcronym reports whether name is written in capitals only, like SEM or LC-MS. Such
// entries match case-sensitively so "stem cells" is not STEM.
func isAcronym(name string) bool {
	return strings.ToUpper(name) == name && strings.ToLower(name) != name
}

// Extract reads every field it can. Missing fields are left empty.
func (e *Extractor) Extract(pages []models.Page) Metadata {
	var md Metadata
	if len(pages) == 0 {
		return md
	}

	title, size, bottom := e.Title(pages[0])
	md.Title = title
	if title != "" {
		md.Authors = e.Authors(pages[0], size, bottom)
	}

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	md.Identifier = FindIdentifier(texts)
	md.Year = FindYear(texts)
	md.Instruments = e.Instruments(strings.Join(texts, "\n"))
	return md
}

type sizedLine struct {
	models.TextLine
	bucket float64
}

func (e *Extractor) lines(p models.Page) []sizedLine {
	var out []sizedLine
	for _, b := range p.Blocks {
		lines := b.Lines
		if len(lines) == 0 && strings.TrimSpace(b.Text) != "" {
			lines = []models.TextLine{{BBox: b.BBox, Text: b.Text, FontSize: b.FontSize}}
		}
		for _, l := range lines {
			if strings.TrimSpace(l.Text) == "" {
				continue
			}
			out = append(out, sizedLine{TextLine: l, bucket: e.bucket(l.FontSize)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BBox.Y0 != out[j].BBox.Y0 {
			return out[i].BBox.Y0 < out[j].BBox.Y0
		}
		return out[i].BBox.X0 < out[j].BBox.X0
	})
	return out
}

func (e *Extractor) bucket(size float64) float64 {
	return math.Round(size/e.config.SizePrecision) * e.config.SizePrecision
}

// Title returns the title of the first page, its font size bucket and the top edge of
// its last line.
func (e *Extractor) Title(p models.Page) (title string, size, lastTop float64) {
	limit := p.Height * e.config.TitleRegion
	var region []sizedLine
	for _, l := range e.lines(p) {
		if p.Height <= 0 || l.BBox.Y0 < limit {
			region = append(region, l)
		}
	}
	if len(region) == 0 {
		return "", 0, 0
	}

	largest := 0.0
	counts := map[float64]int{}
	for _, l := range region {
		counts[l.bucket]++
		largest = max(largest, l.bucket)
	}
	for b, n := range counts {
		if largest-b > e.config.TitleTolerance {
			continue
		}
		if n > counts[size] || (n == counts[size] && b > size) {
			size = b
		}
	}

	var parts []string
	for _, l := range region {
		if l.bucket == size {
			parts = append(parts, l.Text)
			lastTop = max(lastTop, l.BBox.Y0)
		}
	}
	title = spaceRE.ReplaceAllString(strings.Join(parts, " "), " ")
	title = strings.Trim(title, " .–-:")
	return title, size, lastTop
}

// Authors reads the first font size band below the title that is smaller than the title
// and at least AuthorMinSize.
func (e *Extractor) Authors(p models.Page, titleSize, titleTop float64) []string {
	var band []string
	bandSize := -1.0
	for _, l := range e.lines(p) {
		if l.BBox.Y0 <= titleTop || l.BBox.Y0 >= titleTop+e.config.AuthorWindow {
			continue
		}
		if bandSize < 0 {
			if l.bucket >= titleSize || l.bucket < e.config.AuthorMinSize {
				continue
			}
			bandSize = l.bucket
		}
		if l.bucket != bandSize {
			if len(band) > 0 {
				break
			}
			continue
		}
		band = append(band, l.Text)
	}
	return SplitAuthors(strings.Join(band, ", "))
}

// SplitAuthors strips affiliation markers and splits a byline into names of two to five
// words.
func SplitAuthors(byline string) []string {
	byline = markerRE.ReplaceAllString(byline, "")
	var authors []string
	seen := map[string]bool{}
	for _, part := range splitRE.Split(byline, -1) {
		part = strings.Join(strings.Fields(part), " ")
		if part == "" || strings.Contains(part, "@") {
			continue
		}
		if n := len(strings.Fields(part)); n < 2 || n > 5 {
			continue
		}
		key := strings.ToLower(part)
		if seen[key] {
			continue
		}
		seen[key] = true
		authors = append(authors, part)
	}
	return authors
}

// FindIdentifier returns the first DOI on the first two pages, else anywhere.
func FindIdentifier(pages []string) string {
	return firstMatch(doiRE, pages, 1)
}

func FindYear(pages []string) string {
	return firstMatch(yearRE, pages, 0)
}

func firstMatch(re *regexp.Regexp, pages []string, group int) string {
	head := pages
	if len(head) > 2 {
		head = head[:2]
	}
	for _, scope := range []string{strings.Join(head, "\n"), strings.Join(pages, "\n")} {
		if m := re.FindStringSubmatch(scope); m != nil {
			return m[group]
		}
	}
	return ""
}

// Instruments returns the vocabulary entries found in text, in order of first occurrence.
func (e *Extractor) Instruments(text string) []string {
	type hit struct {
		name string
		at   int
	}
	var hits []hit
	seen := map[string]bool{}
	for _, in := range e.instruments {
		key := strings.ToLower(in.name)
		if seen[key] {
			continue
		}
		if loc := in.re.FindStringIndex(text); loc != nil {
			seen[key] = true
			hits = append(hits, hit{name: in.name, at: loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
