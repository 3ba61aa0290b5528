// Package report renders audit results as JSON and XLSX.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/pipeline"
)

const (
	documentsSheet = "Documents"
	sentencesSheet = "Sentences"
)

// Entry is one audited document as it appears in a report.
type Entry struct {
	Document      string                      `json:"document"`
	DocumentID    string                      `json:"document_id,omitempty"`
	Title         string                      `json:"title"`
	Authors       []string                    `json:"authors"`
	Identifier    string                      `json:"identifier,omitempty"`
	Year          string                      `json:"year,omitempty"`
	Instruments   []string                    `json:"instruments"`
	Result        models.Verdict              `json:"result,omitempty"`
	Confidence    float64                     `json:"confidence"`
	Verifications []models.VerificationRecord `json:"verifications"`
	Highlighted   int                         `json:"highlighted"`
	Output        string                      `json:"output,omitempty"`
	Error         string                      `json:"error,omitempty"`
	Duration      time.Duration               `json:"duration_ns"`
}

// FromResult flattens an audit result. output is where the annotated PDF was written.
func FromResult(res *pipeline.Result, output string) Entry {
	e := Entry{
		Document:   res.Name,
		DocumentID: res.DocumentID,
		Output:     output,
		Duration:   res.Duration,
	}
	if ext := res.Extraction; ext != nil {
		e.Title = ext.Title
		e.Authors = ext.Authors
		e.Identifier = ext.Identifier
		e.Year = ext.Year
		e.Instruments = ext.Instruments
	}
	if v := res.Verdict; v != nil {
		e.Result = v.Result
		e.Confidence = v.Confidence
		e.Verifications = v.Verifications
	}
	e.Highlighted = res.Highlight.Located
	return e
}

// Failed records a document whose audit aborted.
func Failed(name string, err error) Entry {
	return Entry{Document: name, Error: err.Error()}
}

// WriteJSON writes entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// XLSX builds a workbook with one row per document and one row per classified sentence.
func XLSX(entries []Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", documentsSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(sentencesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	docHeaders := []any{"Document", "Title", "Authors", "Identifier", "Year", "Instruments",
		"Result", "Confidence", "Classified", "Highlighted", "Output", "Error"}
	if err := writeRow(f, documentsSheet, 1, docHeaders); err != nil {
		return nil, err
	}
	sentHeaders := []any{"Document", "Sentence", "Page", "Text", "Similarity", "Best Match",
		"Verdict", "Rationale", "Model", "Error"}
	if err := writeRow(f, sentencesSheet, 1, sentHeaders); err != nil {
		return nil, err
	}

	srow := 2
	for i, e := range entries {
		err := writeRow(f, documentsSheet, i+2, []any{
			e.Document, e.Title, strings.Join(e.Authors, "; "), e.Identifier, e.Year,
			strings.Join(e.Instruments, ", "), string(e.Result), e.Confidence,
			len(e.Verifications), e.Highlighted, e.Output, e.Error,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range e.Verifications {
			err := writeRow(f, sentencesSheet, srow, []any{
				e.Document, r.SentenceID, r.Page, r.QueryText, r.Similarity, r.BestMatch,
				string(r.Verdict), r.Rationale, r.Model, r.Error,
			})
			if err != nil {
				return nil, err
			}
			srow++
		}
	}

	_ = f.SetColWidth(documentsSheet, "A", "B", 40)
	_ = f.SetColWidth(documentsSheet, "C", "C", 30)
	_ = f.SetColWidth(sentencesSheet, "D", "D", 80)
	_ = f.SetColWidth(sentencesSheet, "F", "F", 50)
	_ = f.SetColWidth(sentencesSheet, "H", "H", 60)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
