package corpus_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/pkg/corpus"
	"github.com/xhad/ackaudit/pkg/store"
)

type lengthEmbedder struct {
	calls int
	fail  bool
}

func (e *lengthEmbedder) Dimension() int { return 2 }

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, errors.New("model not loaded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestReadPhrases(t *testing.T) {
	in := `# acknowledgement corpus
The authors acknowledge the facilities of Microscopy Australia.

We thank the CMCA  for   technical assistance.
The authors acknowledge the facilities of Microscopy Australia.
`
	phrases, err := corpus.ReadPhrases(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"The authors acknowledge the facilities of Microscopy Australia.",
		"We thank the CMCA for technical assistance.",
	}, phrases)
}

func TestPhraseID(t *testing.T) {
	assert.Equal(t, corpus.PhraseID("a"), corpus.PhraseID("a"))
	assert.NotEqual(t, corpus.PhraseID("a"), corpus.PhraseID("b"))
}

func TestLoader_Load(t *testing.T) {
	emb := &lengthEmbedder{}
	vs := store.NewMemoryStore(2)
	var progress []int
	l := corpus.NewLoader(corpus.LoaderConfig{
		BatchSize: 2,
		OnBatch:   func(done, _ int) { progress = append(progress, done) },
	}, emb, vs, zerolog.Nop())

	phrases := []string{"one", "two", "three", "four", "five"}
	n, err := l.Load(context.Background(), phrases)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, emb.calls)
	assert.Equal(t, []int{2, 4, 5}, progress)

	count, err := vs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Reloading upserts.
	_, err = l.Load(context.Background(), phrases)
	require.NoError(t, err)
	count, err = vs.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestLoader_EmbedFailure(t *testing.T) {
	l := corpus.NewLoader(corpus.LoaderConfig{}, &lengthEmbedder{fail: true}, store.NewMemoryStore(2), zerolog.Nop())
	n, err := l.Load(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}
