// Package app wires configured components into an auditor.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xhad/ackaudit/internal/types"
	"github.com/xhad/ackaudit/pkg/config"
	"github.com/xhad/ackaudit/pkg/corpus"
	"github.com/xhad/ackaudit/pkg/fetcher"
	"github.com/xhad/ackaudit/pkg/highlight"
	"github.com/xhad/ackaudit/pkg/layout"
	"github.com/xhad/ackaudit/pkg/llm"
	"github.com/xhad/ackaudit/pkg/metadata"
	"github.com/xhad/ackaudit/pkg/metrics"
	"github.com/xhad/ackaudit/pkg/pdf"
	"github.com/xhad/ackaudit/pkg/pipeline"
	"github.com/xhad/ackaudit/pkg/processor"
	"github.com/xhad/ackaudit/pkg/retriever"
	"github.com/xhad/ackaudit/pkg/sink"
	"github.com/xhad/ackaudit/pkg/store"
	"github.com/xhad/ackaudit/pkg/verifier"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Store    types.VectorStore
	Embedder *llm.Embedder
	Chain    *llm.Chain
	Auditor  *pipeline.Auditor
	Fetcher  *fetcher.Fetcher
	Sink     types.Sink
}

// New builds every component the configuration describes. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	m := metrics.New()

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:         cfg.LLM.Embedding.Model,
		BaseURL:       cfg.LLM.Embedding.BaseURL,
		Dimension:     cfg.LLM.Embedding.Dimension,
		BatchSize:     cfg.LLM.Embedding.BatchSize,
		Timeout:       cfg.LLM.Embedding.Timeout,
		QueryPrefix:   cfg.LLM.Embedding.QueryPrefix,
		PassagePrefix: cfg.LLM.Embedding.PassagePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chain, err := NewChain(cfg.LLM.Classifiers, logger)
	if err != nil {
		return nil, err
	}
	chain.OnFallback = m.RecordFallback

	vs, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out, err := NewSink(ctx, cfg, logger)
	if err != nil {
		vs.Close()
		return nil, err
	}

	deps := localDeps(cfg, m, logger)
	deps.Retriever = retriever.NewWithConfig(retriever.RetrieverConfig{K: cfg.Database.TopK}, emb, vs, logger)
	deps.Verifier = verifier.NewWithConfig(verifier.VerifierConfig{
		Threshold:         cfg.Verifier.Threshold,
		MaxSentences:      cfg.Verifier.MaxSentences,
		Entities:          cfg.Verifier.Entities,
		RequestsPerSecond: cfg.Verifier.RequestsPerSecond,
		Burst:             cfg.Verifier.Burst,
	}, chain, m, logger)
	auditor := pipeline.New(deps)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Store:    vs,
		Embedder: emb,
		Chain:    chain,
		Auditor:  auditor,
		Fetcher: fetcher.NewWithConfig(fetcher.FetcherConfig{
			MaxDepth:       cfg.Fetcher.MaxDepth,
			RateLimit:      cfg.Fetcher.RateLimit,
			IgnorePatterns: cfg.Fetcher.IgnorePatterns,
			MaxBytes:       cfg.Fetcher.MaxBytes,
		}, logger),
		Sink: out,
	}, nil
}

// NewLocal builds an auditor that can extract and highlight but not verify. It needs no
// database or model server.
func NewLocal(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *pipeline.Auditor {
	return pipeline.New(localDeps(cfg, m, logger))
}

func localDeps(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) pipeline.Deps {
	renderer := pdf.NewWithConfig(pdf.PopplerConfig{
		Pdftotext: cfg.PDF.Pdftotext,
		Timeout:   cfg.PDF.Timeout,
		MaxPages:  cfg.PDF.MaxPages,
	}, logger)

	var color [3]float64
	copy(color[:], cfg.Highlight.Color)
	annotator := pdf.NewAnnotator(pdf.AnnotatorConfig{Color: color, Opacity: cfg.Highlight.Opacity}, logger)

	mdCfg := metadata.DefaultConfig()
	if len(cfg.Metadata.Instruments) > 0 {
		mdCfg.Instruments = cfg.Metadata.Instruments
	}

	return pipeline.Deps{
		Renderer: renderer,
		Layout: layout.LayoutConfig{
			ColumnGap:        cfg.Layout.ColumnGap,
			ClusterTolerance: cfg.Layout.ClusterTolerance,
			MinColumnBlocks:  cfg.Layout.MinColumnBlocks,
		},
		Metadata: metadata.NewWithConfig(mdCfg),
		Segmenter: processor.NewWithConfig(processor.ProcessorConfig{
			MinSentenceLength:   cfg.Processor.MinSentenceLength,
			CustomAbbreviations: cfg.Processor.Abbreviations,
		}),
		Highlighter: highlight.New(renderer, annotator, m, logger),
		Metrics:     m,
		Logger:      logger,
	}
}

// Loader returns a corpus loader that embeds with the passage prefix.
func (a *App) Loader(onBatch func(done, total int)) *corpus.Loader {
	return corpus.NewLoader(corpus.LoaderConfig{
		BatchSize: a.Config.LLM.Embedding.BatchSize,
		OnBatch:   onBatch,
	}, a.Embedder.Passages(), a.Store, a.Logger)
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// NewChain builds the classification chain in configured order.
func NewChain(classifiers []config.ClassifierConfig, logger zerolog.Logger) (*llm.Chain, error) {
	providers := make([]types.Classifier, 0, len(classifiers))
	for _, c := range classifiers {
		p, err := llm.NewWithConfig(llm.ChatConfig{
			Name:      c.Name,
			Kind:      c.Kind,
			Model:     c.Model,
			BaseURL:   c.BaseURL,
			APIKey:    c.APIKey,
			MaxTokens: c.MaxTokens,
			Timeout:   c.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize classifier %q: %w", c.Name, err)
		}
		providers = append(providers, p)
	}
	return llm.NewChain(logger, providers...), nil
}

func NewStore(ctx context.Context, cfg *config.Config) (types.VectorStore, error) {
	switch cfg.Database.Driver {
	case "memory":
		return store.NewMemoryStore(cfg.LLM.Embedding.Dimension), nil
	case "pgvector", "":
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString:     cfg.Database.URL,
			TableName:      cfg.Database.TableName,
			VectorDim:      cfg.LLM.Embedding.Dimension,
			BatchSize:      cfg.Database.BatchSize,
			Index:          cfg.Database.Index,
			M:              cfg.Database.M,
			EfConstruction: cfg.Database.EfConstruction,
			EfSearch:       cfg.Database.EfSearch,
			Lists:          cfg.Database.Lists,
			Probes:         cfg.Database.Probes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return vs, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// NewSink uploads to MinIO when an endpoint is configured and writes to the output
// directory otherwise.
func NewSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (types.Sink, error) {
	mc := cfg.Output.Minio
	if mc.Endpoint == "" {
		d, err := sink.NewDir(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	m, err := sink.NewMinio(sink.MinioConfig{
		Endpoint:  mc.Endpoint,
		AccessKey: mc.AccessKey,
		SecretKey: mc.SecretKey,
		Bucket:    mc.Bucket,
		UseSSL:    mc.UseSSL,
		Prefix:    mc.Prefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
