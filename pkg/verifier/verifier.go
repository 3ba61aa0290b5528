// Package verifier decides, per sentence, whether a document formally acknowledges the
// target facility, and folds those decisions into a document verdict.
package verifier

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/retriever"
)

// Chain classifies a prompt and names the provider that answered.
type Chain interface {
	Classify(ctx context.Context, system, prompt string) (response, provider string, err error)
}

// DefaultEntities are the organisations an acknowledgement must name.
var DefaultEntities = []string{
	"CMCA (Centre for Microscopy Characterisation and Analysis)",
	"The University of Western Australia (UWA)",
	"Microscopy Australia or its nodes",
	"NCRIS (National Collaborative Research Infrastructure Strategy)",
}

const defaultSystemPrompt = "You are a research auditor."

var answerRE = regexp.MustCompile(`(?i)^\s*\**\s*Answer\s*:\s*\**\s*(Yes|No)\b`)
var reasonRE = regexp.MustCompile(`(?is)Reason\s*:\s*\**\s*(.*)`)

// DefaultThreshold applies when VerifierConfig.Threshold is nil.
const DefaultThreshold = 0.70

type VerifierConfig struct {
	// Threshold is the inclusive minimum best-candidate similarity. Nil means
	// DefaultThreshold; 0 keeps every sentence that has a candidate.
	Threshold    *float64
	MaxSentences int
	Entities     []string
	SystemPrompt string
	// RequestsPerSecond paces classification calls; Burst is the limiter bucket size.
	RequestsPerSecond float64
	Burst             int
}

type Verifier struct {
	config    VerifierConfig
	threshold float64
	chain     Chain
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewWithConfig(config VerifierConfig, chain Chain, m *metrics.Metrics, logger zerolog.Logger) *Verifier {
	threshold := DefaultThreshold
	if config.Threshold != nil {
		threshold = *config.Threshold
	}
	if config.MaxSentences <= 0 {
		config.MaxSentences = 7
	}
	if len(config.Entities) == 0 {
		config.Entities = DefaultEntities
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Verifier{
		config:    config,
		threshold: threshold,
		chain:     chain,
		limiter:   rate.NewLimiter(limit, config.Burst),
		metrics:   m,
		logger:    logger.With().Str("component", "verifier").Logger(),
	}
}

// Candidate is a sentence retained for classification with its best match.
type Candidate struct {
	Sentence models.Sentence
	Best     models.CandidateMatch
}

// Select keeps sentences whose best similarity reaches the threshold, orders them by that
// similarity (descending, stable) and caps the list at MaxSentences.
func (v *Verifier) Select(results []retriever.Result) []Candidate {
	var kept []Candidate
	for _, r := range results {
		best, ok := r.Best()
		if !ok {
			continue
		}
		v.metrics.ObserveSimilarity(best.Similarity)
		if best.Similarity >= v.threshold {
			kept = append(kept, Candidate{Sentence: r.Sentence, Best: best})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Best.Similarity > kept[j].Best.Similarity
	})
	if len(kept) > v.config.MaxSentences {
		kept = kept[:v.config.MaxSentences]
	}
	return kept
}

// Verify classifies the selected sentences one at a time. Failures are recorded on the
// sentence's record and never abort the document.
func (v *Verifier) Verify(ctx context.Context, results []retriever.Result) []models.VerificationRecord {
	candidates := v.Select(results)
	records := make([]models.VerificationRecord, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, v.classify(ctx, c))
	}
	return records
}

func (v *Verifier) classify(ctx context.Context, c Candidate) models.VerificationRecord {
	rec := models.VerificationRecord{
		SentenceID: c.Sentence.ID,
		Page:       c.Sentence.Page,
		Index:      c.Sentence.Index,
		QueryText:  c.Sentence.Text,
		Similarity: c.Best.Similarity,
		BestMatch:  c.Best.Phrase.Text,
	}
	log := v.logger.With().Str("sentence", c.Sentence.ID).Float64("similarity", c.Best.Similarity).Logger()

	if err := v.limiter.Wait(ctx); err != nil {
		rec.Verdict = models.VerdictError
		rec.Error = fmt.Sprintf("%v: %v", models.ErrClassification, err)
		return rec
	}

	start := time.Now()
	resp, provider, err := v.chain.Classify(ctx, v.config.SystemPrompt, BuildPrompt(c.Sentence.Text, c.Best, v.config.Entities))
	rec.Model = provider
	rec.Response = resp
	if err != nil {
		rec.Verdict = models.VerdictError
		rec.Error = err.Error()
		log.Warn().Err(err).Str("provider", provider).Msg("classification failed")
		v.metrics.RecordClassification(provider, string(rec.Verdict))
		return rec
	}

	verdict, rationale, err := ParseResponse(resp)
	rec.Verdict = verdict
	rec.Rationale = rationale
	if err != nil {
		rec.Error = err.Error()
		log.Warn().Err(err).Str("provider", provider).Msg("unparseable response")
	}
	log.Debug().Str("provider", provider).Str("verdict", string(verdict)).Dur("took", time.Since(start)).Msg("classified")
	v.metrics.RecordClassification(provider, string(rec.Verdict))
	return rec
}

// BuildPrompt renders the task for one sentence with its best reference phrase as
// provenance.
func BuildPrompt(sentence string, best models.CandidateMatch, entities []string) string {
	var b strings.Builder
	b.WriteString("You are acting as a **research compliance auditor**.\n")
	b.WriteString("Your role is to verify whether a given sentence from a scientific document constitutes a **formal acknowledgement** of institutional or financial support.\n\n")
	b.WriteString("**Extracted Sentence:**\n")
	fmt.Fprintf(&b, "%q\n\n", sentence)
	b.WriteString("This sentence was selected because it closely matches known acknowledgement phrases:\n")
	fmt.Fprintf(&b, "- %q (Similarity: %.2f)\n\n", best.Phrase.Text, best.Similarity)
	b.WriteString("### Your task\n")
	b.WriteString("Determine whether the sentence contains a **formal acknowledgement** that refers specifically to **one or more of the following entities**:\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	b.WriteString("\n### Decision Criteria\n")
	b.WriteString("Classify as a **formal acknowledgement** only if it clearly refers to:\n")
	b.WriteString("- Use of or access to the facilities of the entities above\n")
	b.WriteString("- Technical or analytical assistance by these institutions\n")
	b.WriteString("- Infrastructure or funding support from these institutions\n\n")
	b.WriteString("Do **not** classify if:\n")
	b.WriteString("- It only thanks individuals\n")
	b.WriteString("- It expresses generic gratitude with no link to facilities, funding, or institutional support\n\n")
	b.WriteString("### Respond in this exact format:\n")
	b.WriteString("Answer: [Yes or No]\n")
	b.WriteString("Reason: (1-3 lines)")
	return b.String()
}

// ParseResponse reads the leading "Answer: Yes|No" token and the rationale after
// "Reason:". A response without the token yields VerdictError.
func ParseResponse(resp string) (models.Verdict, string, error) {
	m := answerRE.FindStringSubmatch(resp)
	if m == nil {
		return models.VerdictError, "", fmt.Errorf("%w: %.80q", models.ErrUnparseableVerdict, resp)
	}

	verdict := models.VerdictNo
	if strings.EqualFold(m[1], "yes") {
		verdict = models.VerdictYes
	}

	rationale := ""
	if r := reasonRE.FindStringSubmatch(resp); r != nil {
		rationale = strings.TrimSpace(r[1])
	} else {
		rationale = strings.TrimLeft(strings.TrimSpace(resp[len(m[0]):]), ".:-* ")
	}
	return verdict, rationale, nil
}
