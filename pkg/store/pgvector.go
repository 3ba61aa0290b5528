package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/ackaudit/internal/models"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Index kinds for the embedding column.
const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"
	IndexNone    = "none"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	// Index is hnsw (default), ivfflat or none. With none every query is an exact scan.
	Index string
	// M and EfConstruction build the hnsw graph; EfSearch is raised to k per query.
	M              int
	EfConstruction int
	EfSearch       int
	// Lists is the ivfflat list count. Probes defaults to Lists, which scans every list.
	Lists  int
	Probes int
}

func (c VectorStoreConfig) withDefaults() VectorStoreConfig {
	if c.TableName == "" {
		c.TableName = "reference_phrases"
	}
	if c.VectorDim == 0 {
		c.VectorDim = 768
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Index == "" {
		c.Index = IndexHNSW
	}
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 64
	}
	if c.EfSearch == 0 {
		c.EfSearch = 40
	}
	if c.Lists == 0 {
		c.Lists = 100
	}
	if c.Probes == 0 {
		c.Probes = c.Lists
	}
	return c
}

// IndexStatement returns the DDL for the embedding index, or "" when no index is wanted.
func (c VectorStoreConfig) IndexStatement() string {
	c = c.withDefaults()
	switch c.Index {
	case IndexHNSW:
		return fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = %d, ef_construction = %d)`,
			c.TableName, c.TableName, c.M, c.EfConstruction)
	case IndexIVFFlat:
		return fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d)`,
			c.TableName, c.TableName, c.Lists)
	default:
		return ""
	}
}

// SearchSettings returns the session settings that let an index return k rows.
func (c VectorStoreConfig) SearchSettings(k int) []string {
	c = c.withDefaults()
	switch c.Index {
	case IndexHNSW:
		return []string{fmt.Sprintf("SET hnsw.ef_search = %d", max(c.EfSearch, k))}
	case IndexIVFFlat:
		return []string{fmt.Sprintf("SET ivfflat.probes = %d", min(c.Probes, c.Lists))}
	default:
		return nil
	}
}

// VectorStore keeps reference phrases in Postgres with pgvector. The pool is safe for
// concurrent readers.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	config = config.withDefaults()
	if !identRE.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	switch config.Index {
	case IndexHNSW, IndexIVFFlat, IndexNone:
	default:
		return nil, fmt.Errorf("unknown index %q", config.Index)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			phrase TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if stmt := vs.config.IndexStatement(); stmt != "" {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Store upserts phrases in transactions of BatchSize rows.
func (vs *VectorStore) Store(ctx context.Context, phrases []models.ReferencePhrase) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, phrase, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			phrase = EXCLUDED.phrase,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	for start := 0; start < len(phrases); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(phrases))
		if err := vs.storeBatch(ctx, stmt, phrases[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (vs *VectorStore) storeBatch(ctx context.Context, stmt string, phrases []models.ReferencePhrase) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range phrases {
		if len(p.Embedding) != vs.config.VectorDim {
			return fmt.Errorf("phrase %s has dimension %d, want %d", p.ID, len(p.Embedding), vs.config.VectorDim)
		}
		_, err = tx.Exec(ctx, stmt, p.ID, sanitizeUTF8(p.Text), pgvector.NewVector(p.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert phrase %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Nearest returns the k phrases closest to embedding by cosine distance, most similar
// first.
func (vs *VectorStore) Nearest(ctx context.Context, embedding []float32, k int) ([]models.CandidateMatch, error) {
	if k <= 0 {
		k = DefaultK
	}

	query := fmt.Sprintf(`
		SELECT id, phrase, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	conn, err := vs.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	for _, setting := range vs.config.SearchSettings(k) {
		if _, err := conn.Exec(ctx, setting); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", setting, err)
		}
	}

	rows, err := conn.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query phrases: %w", err)
	}
	defer rows.Close()

	var matches []models.CandidateMatch
	for rows.Next() {
		var (
			m        models.CandidateMatch
			distance float64
		)
		if err := rows.Scan(&m.Phrase.ID, &m.Phrase.Text, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Similarity = SimilarityFromDistance(distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return matches, nil
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count phrases: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
