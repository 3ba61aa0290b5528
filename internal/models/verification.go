package models

import "fmt"

// Sentence ids have the form p<page>_s<index>, both 1-based.
type Sentence struct {
	ID    string `json:"id"`
	Page  int    `json:"page"`
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func SentenceID(page, index int) string {
	return fmt.Sprintf("p%d_s%d", page, index)
}

// ReferencePhrase is a member of the curated acknowledgement corpus.
type ReferencePhrase struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

type CandidateMatch struct {
	SentenceID string          `json:"sentence_id"`
	Phrase     ReferencePhrase `json:"phrase"`
	Similarity float64         `json:"similarity"`
}

type Verdict string

const (
	VerdictYes   Verdict = "Yes"
	VerdictNo    Verdict = "No"
	VerdictError Verdict = "Error"
)

// VerificationRecord is created once per classified sentence and never modified.
type VerificationRecord struct {
	SentenceID string  `json:"sentence_id"`
	Page       int     `json:"page"`
	Index      int     `json:"index"`
	QueryText  string  `json:"query_text"`
	Similarity float64 `json:"similarity_score"`
	BestMatch  string  `json:"best_match"`
	Response   string  `json:"llm_response"`
	Rationale  string  `json:"rationale,omitempty"`
	Verdict    Verdict `json:"verdict"`
	Model      string  `json:"model,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type DocumentVerdict struct {
	Result        Verdict              `json:"result"`
	Confidence    float64              `json:"confidence"`
	Verifications []VerificationRecord `json:"verifications"`
}

// Highlight is a request to annotate the located rectangles of one sentence.
type Highlight struct {
	SentenceID string  `json:"sentence_id"`
	Page       int     `json:"page"`
	PageHeight float64 `json:"page_height"`
	Rects      []Rect  `json:"rects"`
}
