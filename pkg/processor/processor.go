// Package processor cleans page text and splits it into identified sentences.
package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/xhad/ackaudit/internal/models"
)

type ProcessorConfig struct {
	// MinSentenceLength drops fragments shorter than this many characters.
	MinSentenceLength int
	// CustomAbbreviations are guarded in addition to the defaults.
	CustomAbbreviations []string
}

type Processor struct {
	config        ProcessorConfig
	abbreviations []string
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MinSentenceLength == 0 {
		config.MinSentenceLength = 2
	}

	abbrevs := getAbbreviations()
	for _, a := range config.CustomAbbreviations {
		if a = strings.TrimSpace(a); a != "" && !contains(abbrevs, a) {
			abbrevs = append(abbrevs, a)
		}
	}

	return Processor{
		config:        config,
		abbreviations: abbrevs,
	}
}

// Process segments every page. Sentences come out page-major with 1-based indexes per page.
func (p *Processor) Process(pages []models.Page) []models.Sentence {
	var sentences []models.Sentence
	for _, page := range pages {
		sentences = append(sentences, p.Segment(page.Number, page.Text)...)
	}
	return sentences
}

func (p *Processor) Segment(page int, text string) []models.Sentence {
	var out []models.Sentence
	for _, s := range p.Split(text) {
		idx := len(out) + 1
		out = append(out, models.Sentence{
			ID:    models.SentenceID(page, idx),
			Page:  page,
			Index: idx,
			Text:  s,
		})
	}
	return out
}

// Split breaks text after '.', '?' or '!' when whitespace and then an uppercase letter or
// '(' follow, unless the text up to the punctuation ends in a guarded abbreviation.
func (p *Processor) Split(text string) []string {
	text = CleanText(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		// CleanText leaves exactly one space between words.
		if i+2 >= len(text) || text[i+1] != ' ' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+2:])
		if !unicode.IsUpper(next) && next != '(' {
			continue
		}
		if c == '.' && p.guarded(text[start:i+1]) {
			continue
		}
		sentences = p.appendSentence(sentences, text[start:i+1])
		start = i + 2
	}
	return p.appendSentence(sentences, text[start:])
}

func (p *Processor) appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < p.config.MinSentenceLength {
		return sentences
	}
	return append(sentences, s)
}

// guarded reports whether s ends with an abbreviation that starts a word.
func (p *Processor) guarded(s string) bool {
	for _, a := range p.abbreviations {
		if !strings.HasSuffix(s, a) {
			continue
		}
		before := s[:len(s)-len(a)]
		if before == "" {
			return true
		}
		r, _ := utf8.DecodeLastRuneInString(before)
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// CleanText applies NFKC, folds every kind of whitespace (including NBSP) to a single
// space and trims the result.
func CleanText(text string) string {
	text = norm.NFKC.String(text)
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Common abbreviations in scientific writing.
func getAbbreviations() []string {
	return []string{
		"et al.", "e.g.", "i.e.", "Fig.", "Figs.", "Eq.", "Eqs.", "Dr.", "Mr.", "Mrs.", "Ms.",
		"Prof.", "vs.", "No.", "ca.", "cf.", "Ref.", "Refs.", "Inc.", "Ltd.", "Jr.", "Sr.",
		"St.", "approx.", "Ph.D.", "U.S.", "U.K.",
	}
}
