package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/store"
)

// Runs against a live pgvector database when ACKAUDIT_TEST_DATABASE_URL is set.
func getTestConfig(t *testing.T) store.VectorStoreConfig {
	url := os.Getenv("ACKAUDIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ACKAUDIT_TEST_DATABASE_URL not set")
	}
	return store.VectorStoreConfig{
		ConnString: url,
		TableName:  "test_reference_phrases",
		VectorDim:  3,
	}
}

func TestVectorStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewWithConfig(ctx, getTestConfig(t))
	require.NoError(t, err)
	defer s.Close()

	phrases := []models.ReferencePhrase{
		{ID: "cmca", Text: "The authors acknowledge the facilities of the CMCA", Embedding: []float32{1, 0, 0}},
		{ID: "funding", Text: "This work was funded by", Embedding: []float32{0, 1, 0}},
	}
	require.NoError(t, s.Store(ctx, phrases))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)

	matches, err := s.Nearest(ctx, []float32{0.9, 0.1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cmca", matches[0].Phrase.ID)
	assert.Greater(t, matches[0].Similarity, 0.9)
}

func TestVectorStore_IVFFlatDefaultsScanEveryList(t *testing.T) {
	ctx := context.Background()
	cfg := getTestConfig(t)
	cfg.TableName = "test_reference_phrases_ivf"
	cfg.Index = store.IndexIVFFlat
	s, err := store.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	var phrases []models.ReferencePhrase
	for i := range 20 {
		v := float32(i+1) / 20
		phrases = append(phrases, models.ReferencePhrase{
			ID:        fmt.Sprintf("p%02d", i),
			Text:      fmt.Sprintf("phrase %d", i),
			Embedding: []float32{v, 1 - v, 0.5},
		})
	}
	require.NoError(t, s.Store(ctx, phrases))

	matches, err := s.Nearest(ctx, []float32{1, 0, 0.5}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 10)
}

func TestVectorStoreConfig_IndexStatement(t *testing.T) {
	hnsw := store.VectorStoreConfig{TableName: "phrases"}.IndexStatement()
	assert.Contains(t, hnsw, "USING hnsw (embedding vector_cosine_ops)")
	assert.Contains(t, hnsw, "m = 16, ef_construction = 64")

	ivf := store.VectorStoreConfig{TableName: "phrases", Index: store.IndexIVFFlat}.IndexStatement()
	assert.Contains(t, ivf, "USING ivfflat")
	assert.Contains(t, ivf, "lists = 100")

	assert.Empty(t, store.VectorStoreConfig{Index: store.IndexNone}.IndexStatement())
}

func TestVectorStoreConfig_SearchSettings(t *testing.T) {
	assert.Equal(t, []string{"SET hnsw.ef_search = 40"}, store.VectorStoreConfig{}.SearchSettings(30))
	assert.Equal(t, []string{"SET hnsw.ef_search = 100"}, store.VectorStoreConfig{}.SearchSettings(100))

	// Default lists with unset probes searches every list.
	assert.Equal(t, []string{"SET ivfflat.probes = 100"},
		store.VectorStoreConfig{Index: store.IndexIVFFlat}.SearchSettings(30))
	assert.Equal(t, []string{"SET ivfflat.probes = 4"},
		store.VectorStoreConfig{Index: store.IndexIVFFlat, Lists: 10, Probes: 4}.SearchSettings(30))

	assert.Nil(t, store.VectorStoreConfig{Index: store.IndexNone}.SearchSettings(30))
}

func TestNewWithConfig_RejectsUnknownIndex(t *testing.T) {
	_, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{Index: "lsh"})
	assert.ErrorContains(t, err, "unknown index")
}

func TestNewWithConfig_RejectsBadTableName(t *testing.T) {
	_, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{TableName: "x; DROP TABLE y"})
	assert.Error(t, err)
}
