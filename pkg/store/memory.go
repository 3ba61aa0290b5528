package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/ackaudit/internal/models"
)

// MemoryStore is an exact cosine search over phrases held in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	phrases []models.ReferencePhrase
	index   map[string]int
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim, index: map[string]int{}}
}

// Store upserts phrases by id.
func (m *MemoryStore) Store(_ context.Context, phrases []models.ReferencePhrase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range phrases {
		if m.dim > 0 && len(p.Embedding) != m.dim {
			return fmt.Errorf("phrase %s has dimension %d, want %d", p.ID, len(p.Embedding), m.dim)
		}
		p.Embedding = append([]float32(nil), p.Embedding...)
		if i, ok := m.index[p.ID]; ok {
			m.phrases[i] = p
			continue
		}
		m.index[p.ID] = len(m.phrases)
		m.phrases = append(m.phrases, p)
	}
	return nil
}

func (m *MemoryStore) Nearest(ctx context.Context, embedding []float32, k int) ([]models.CandidateMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}

	m.mu.RLock()
	matches := make([]models.CandidateMatch, 0, len(m.phrases))
	for _, p := range m.phrases {
		matches = append(matches, models.CandidateMatch{
			Phrase:     models.ReferencePhrase{ID: p.ID, Text: p.Text},
			Similarity: Cosine(embedding, p.Embedding),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.phrases), nil
}

func (m *MemoryStore) Close() {}
