package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine-similarity index held in process
// memory. Reads may run concurrently; writes take the exclusive lock.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Upsert stores records, replacing any with matching IDs.
func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("semantic: record %s has empty embedding", r.ID)
		}
		if i, ok := m.byID[r.ID]; ok {
			m.records[i] = r
			continue
		}
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// Search returns up to topK records by descending cosine similarity. Ties
// keep insertion order. An empty index returns an empty slice.
func (m *MemoryStore) Search(_ context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if topK <= 0 || len(m.records) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, len(m.records))
	for i, r := range m.records {
		results[i] = SearchResult{
			ID:    r.ID,
			Score: cosine(embedding, r.Embedding),
			Chunk: r.Chunk,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Count reports the number of stored records.
func (m *MemoryStore) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.records)), nil
}

// Reset discards all records.
func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.byID = make(map[string]int)
	return nil
}

// cosine computes cosine similarity without assuming normalised inputs.
func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
