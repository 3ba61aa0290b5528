package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/metadata"
)

func line(text string, y0, size float64) models.TextLine {
	return models.TextLine{
		Text:     text,
		FontSize: size,
		BBox:     models.Rect{X0: 72, Y0: y0, X1: 540, Y1: y0 + size},
	}
}

func firstPage() models.Page {
	return models.Page{
		Number: 1,
		Width:  612,
		Height: 792,
		Blocks: []models.TextBlock{
			{Lines: []models.TextLine{line("Journal of Microscopy 2021", 30, 9)}},
			{Lines: []models.TextLine{
				line("Correlative imaging of", 80, 18),
				line("mineral grain boundaries:", 100, 18.1),
			}},
			{Lines: []models.TextLine{
				line("Jane Q. Smith1*, Alan Turing2 and Marie Curie†", 130, 11),
				line("1 Centre for Microscopy, The University of Western Australia", 145, 9),
			}},
			{Lines: []models.TextLine{line("jane.smith@uwa.edu.au", 175, 8)}},
			{Lines: []models.TextLine{line("Abstract", 400, 11)}},
		},
		Text: "Journal of Microscopy 2021\nCorrelative imaging\nhttps://doi.org/10.1111/jmi.13000.",
	}
}

func TestExtractor_Title(t *testing.T) {
	e := metadata.NewWithConfig(metadata.MetadataConfig{})

	title, size, lastTop := e.Title(firstPage())

	assert.Equal(t, "Correlative imaging of mineral grain boundaries", title)
	assert.Equal(t, 18.0, size)
	assert.Equal(t, 100.0, lastTop)
}

func TestExtractor_TitleOutsideRegion(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())
	p := models.Page{Height: 792, Blocks: []models.TextBlock{
		{Lines: []models.TextLine{line("Low on the page", 600, 20)}},
	}}

	title, _, _ := e.Title(p)
	assert.Empty(t, title)
}

func TestExtractor_TitleMajorityOfLargeSizes(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())
	p := models.Page{Height: 792, Blocks: []models.TextBlock{
		{Lines: []models.TextLine{
			line("A", 40, 16.4),
			line("Long Title Spanning", 60, 16),
			line("Three Lines", 80, 16),
			line("Of Text", 100, 16),
		}},
	}}

	title, size, _ := e.Title(p)
	assert.Equal(t, 16.0, size)
	assert.Equal(t, "Long Title Spanning Three Lines Of Text", title)
}

func TestExtractor_Authors(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())
	p := firstPage()
	_, size, lastTop := e.Title(p)

	authors := e.Authors(p, size, lastTop)

	assert.Equal(t, []string{"Jane Q. Smith", "Alan Turing", "Marie Curie"}, authors)
}

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		byline string
		want   []string
	}{
		{"A. Author, B. Writer", []string{"A. Author", "B. Writer"}},
		{"Solo", nil},
		{"Ann Lee; Ann Lee and Bo Chen#", []string{"Ann Lee", "Bo Chen"}},
		{"x@y.org Ann Lee, Dept of Very Long Affiliation Name Here Please", nil},
	}
	for _, tt := range tests {
		t.Run(tt.byline, func(t *testing.T) {
			assert.Equal(t, tt.want, metadata.SplitAuthors(tt.byline))
		})
	}
}

func TestFindIdentifierAndYear(t *testing.T) {
	pages := []string{"Front matter published 2019", "nothing", "see doi:10.1016/j.micron.2020.102345. End 1998"}

	assert.Equal(t, "10.1016/j.micron.2020.102345", metadata.FindIdentifier(pages))
	assert.Equal(t, "2019", metadata.FindYear(pages))

	pages[2] = "none here"
	assert.Empty(t, metadata.FindIdentifier(pages))
	assert.Empty(t, metadata.FindYear([]string{"no year 3021"}))
}

func TestExtractor_Instruments(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())

	got := e.Instruments("Samples were imaged on a JEOL 2100 TEM after SEM screening. Later, sem again and XRD; SEMINAR is not a match.")

	assert.Equal(t, []string{"JEOL", "TEM", "SEM", "XRD"}, got)
	assert.Empty(t, e.Instruments("nothing relevant"))
}

func TestExtractor_InstrumentAcronymsAreCaseSensitive(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())

	assert.Empty(t, e.Instruments("Neural stem cells were sorted (see Smith, eds.) near the fib fracture."))
	assert.Equal(t, []string{"Raman", "STEM", "EDS"},
		e.Instruments("raman spectra were collected, then STEM with EDS mapping."))
}

func TestExtractor_Extract(t *testing.T) {
	e := metadata.NewWithConfig(metadata.DefaultConfig())
	pages := []models.Page{firstPage(), {Number: 2, Text: "Imaged by SEM."}}

	md := e.Extract(pages)

	require.NotEmpty(t, md.Title)
	assert.Len(t, md.Authors, 3)
	assert.Equal(t, "10.1111/jmi.13000", md.Identifier)
	assert.Equal(t, "2021", md.Year)
	assert.Equal(t, []string{"SEM"}, md.Instruments)

	assert.Equal(t, metadata.Metadata{}, e.Extract(nil))
}
