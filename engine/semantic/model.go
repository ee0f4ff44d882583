// Package semantic owns the vector index: storing embedded chunks and
// answering nearest-neighbour queries. Two implementations share one
// contract and one similarity metric (cosine): a Qdrant-backed store for
// deployments and an in-memory brute-force store for development and tests.
package semantic

import (
	"context"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// Record is an embedded chunk as stored in the index. Vectors are never
// mutated after insert.
type Record struct {
	ID        string
	Embedding []float32
	Chunk     domain.Chunk
}

// SearchResult is a single nearest-neighbour hit.
type SearchResult struct {
	ID    string       `json:"id"`
	Score float32      `json:"score"`
	Chunk domain.Chunk `json:"chunk"`
}

// Index is the vector index contract consumed by retrieval and ingestion.
type Index interface {
	// Upsert stores records; re-inserting an ID overwrites it.
	Upsert(ctx context.Context, records []Record) error
	// Search returns up to topK hits ordered by descending similarity.
	// An empty index yields an empty slice, not an error.
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	// Count reports how many records the index currently holds.
	Count(ctx context.Context) (uint64, error)
	// Reset drops every record. Re-ingestion replaces the whole set.
	Reset(ctx context.Context) error
}
