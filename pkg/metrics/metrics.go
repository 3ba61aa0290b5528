// Package metrics provides Prometheus metrics for the audit pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsTotal        *prometheus.CounterVec
	StageDuration         *prometheus.HistogramVec
	ClassificationsTotal  *prometheus.CounterVec
	FallbacksTotal        *prometheus.CounterVec
	HighlightsTotal       *prometheus.CounterVec
	DocumentsInFlight     prometheus.Gauge
	CandidateSimilarities prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		DocumentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ackaudit_documents_total",
				Help: "Documents audited, by outcome",
			},
			[]string{"status"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ackaudit_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		ClassificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ackaudit_classifications_total",
				Help: "Sentence classifications, by provider and verdict",
			},
			[]string{"provider", "verdict"},
		),
		FallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ackaudit_provider_fallbacks_total",
				Help: "Rate-limit fallbacks between classification providers",
			},
			[]string{"from", "to"},
		),
		HighlightsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ackaudit_highlights_total",
				Help: "Highlight attempts, by outcome",
			},
			[]string{"outcome"},
		),
		DocumentsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ackaudit_documents_in_flight",
				Help: "Documents currently being audited",
			},
		),
		CandidateSimilarities: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ackaudit_best_similarity",
				Help:    "Best candidate similarity per sentence",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
	}
}

func (m *Metrics) RecordDocument(status string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordClassification(provider, verdict string) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(provider, verdict).Inc()
}

func (m *Metrics) RecordFallback(from, to string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordHighlight(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HighlightsTotal.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) ObserveSimilarity(s float64) {
	if m == nil {
		return
	}
	m.CandidateSimilarities.Observe(s)
}

// Track marks a document in flight and returns the function that ends it.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.DocumentsInFlight.Inc()
	return m.DocumentsInFlight.Dec
}
