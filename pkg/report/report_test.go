package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/highlight"
	"github.com/xhad/ackaudit/pkg/pipeline"
	"github.com/xhad/ackaudit/pkg/report"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		DocumentID: "d1",
		Name:       "paper.pdf",
		Extraction: &models.Extraction{
			Title:       "Imaging Grain Boundaries",
			Authors:     []string{"Jane Doe", "John Roe"},
			Identifier:  "10.1000/xyz",
			Instruments: []string{"SEM", "TEM"},
		},
		Verdict: &models.DocumentVerdict{
			Result:     models.VerdictYes,
			Confidence: 0.91,
			Verifications: []models.VerificationRecord{
				{SentenceID: "p4_s2", Page: 4, QueryText: "We acknowledge the CMCA.", Similarity: 0.91, Verdict: models.VerdictYes, Model: "ollama/mistral"},
				{SentenceID: "p4_s3", Page: 4, QueryText: "We thank Jane.", Similarity: 0.72, Verdict: models.VerdictNo, Model: "ollama/mistral"},
			},
		},
		Highlight: highlight.Stats{Requested: 1, Located: 1, Rects: 2},
		Duration:  time.Second,
	}
}

func TestFromResult(t *testing.T) {
	e := report.FromResult(sampleResult(), "out/paper.pdf")

	assert.Equal(t, "paper.pdf", e.Document)
	assert.Equal(t, models.VerdictYes, e.Result)
	assert.Equal(t, 0.91, e.Confidence)
	assert.Equal(t, 1, e.Highlighted)
	assert.Equal(t, "out/paper.pdf", e.Output)
	assert.Len(t, e.Verifications, 2)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	entries := []report.Entry{
		report.FromResult(sampleResult(), ""),
		report.Failed("broken.pdf", errors.New("extraction failed: no text layer")),
	}
	require.NoError(t, report.WriteJSON(&buf, entries))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Yes", decoded[0]["result"])
	assert.Equal(t, "extraction failed: no text layer", decoded[1]["error"])

	buf.Reset()
	require.NoError(t, report.WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestXLSX(t *testing.T) {
	data, err := report.XLSX([]report.Entry{
		report.FromResult(sampleResult(), "out/paper.pdf"),
		report.Failed("broken.pdf", errors.New("boom")),
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	docs, err := f.GetRows("Documents")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "Document", docs[0][0])
	assert.Equal(t, "paper.pdf", docs[1][0])
	assert.Equal(t, "Jane Doe; John Roe", docs[1][2])
	assert.Equal(t, "Yes", docs[1][6])
	assert.Equal(t, "broken.pdf", docs[2][0])
	assert.Equal(t, "boom", docs[2][11])

	sents, err := f.GetRows("Sentences")
	require.NoError(t, err)
	require.Len(t, sents, 3)
	assert.Equal(t, "p4_s2", sents[1][1])
	assert.Equal(t, "No", sents[2][6])
}
