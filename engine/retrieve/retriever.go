// Package retrieve turns a query into a ranked candidate set: embed the
// query, run a top-k nearest-neighbour search against the vector index.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/semantic"
)

// DefaultTopK is how many candidates retrieval hands to selection.
const DefaultTopK = 10

// Embedder maps text to a fixed-length dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever orchestrates query embedding and vector search.
type Retriever struct {
	embed  Embedder
	index  semantic.Index
	logger *slog.Logger
}

// New creates a Retriever.
func New(embed Embedder, index semantic.Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, index: index, logger: logger}
}

// Retrieve returns up to topK chunks ordered by descending similarity to the
// query. An empty index is a valid terminal state: the result is an empty
// slice, never an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}
	r.logger.Debug("retrieval done", "candidates", len(hits))

	out := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = domain.ScoredChunk{Chunk: h.Chunk, Score: float64(h.Score)}
	}
	return out, nil
}
