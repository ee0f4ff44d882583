// Package rank narrows retrieved candidates to the final context set sent to
// generation. Two strategies share one contract: plain truncation of the
// retriever's ranking, and cross-relevance reranking with a pairwise scoring
// model. Output order is the citation order used downstream.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// DefaultFinalK is how many chunks survive selection into the prompt.
const DefaultFinalK = 3

// TruncateConfidence is the fixed confidence reported by the truncation
// strategy. It is a placeholder standing in for a measured relevance signal,
// not one itself.
const TruncateConfidence = 0.75

// Selection is the outcome of narrowing candidates for one query.
type Selection struct {
	Chunks     []domain.ScoredChunk
	Confidence float64
}

// Selector narrows a ranked candidate list to at most finalK chunks.
type Selector interface {
	Select(ctx context.Context, query string, candidates []domain.ScoredChunk, finalK int) (Selection, error)
}

// PairScorer scores each (query, document) pair independently with a
// pairwise relevance model. Scores are raw model outputs, not probabilities.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Truncate takes the first finalK candidates verbatim, trusting the
// retriever's ordering. Cheap; meant for resource-constrained deployments.
type Truncate struct{}

// NewTruncate creates the truncation selector.
func NewTruncate() *Truncate { return &Truncate{} }

// Select implements Selector.
func (*Truncate) Select(_ context.Context, _ string, candidates []domain.ScoredChunk, finalK int) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, nil
	}
	if finalK <= 0 {
		finalK = DefaultFinalK
	}
	if finalK > len(candidates) {
		finalK = len(candidates)
	}
	out := make([]domain.ScoredChunk, finalK)
	copy(out, candidates[:finalK])
	return Selection{Chunks: out, Confidence: TruncateConfidence}, nil
}

// CrossRelevance rescores every candidate against the query with a pairwise
// model, sorts descending, and keeps the top finalK. Confidence is the top
// candidate's raw score squashed into [0,1] with a logistic function.
type CrossRelevance struct {
	scorer PairScorer
	logger *slog.Logger
}

// NewCrossRelevance creates the reranking selector.
func NewCrossRelevance(scorer PairScorer, logger *slog.Logger) *CrossRelevance {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossRelevance{scorer: scorer, logger: logger}
}

// Select implements Selector. Equal scores keep the original retrieval order
// (stable sort), preserving the citation-order invariant on ties.
func (c *CrossRelevance) Select(ctx context.Context, query string, candidates []domain.ScoredChunk, finalK int) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, nil
	}
	if finalK <= 0 {
		finalK = DefaultFinalK
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Chunk.Text
	}

	scores, err := c.scorer.ScorePairs(ctx, query, documents)
	if err != nil {
		return Selection{}, err
	}
	if len(scores) != len(candidates) {
		return Selection{}, fmt.Errorf("rank: scorer returned %d scores for %d candidates", len(scores), len(candidates))
	}

	rescored := make([]domain.ScoredChunk, len(candidates))
	for i, cand := range candidates {
		rescored[i] = domain.ScoredChunk{Chunk: cand.Chunk, Score: scores[i]}
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})

	if finalK > len(rescored) {
		finalK = len(rescored)
	}
	top := rescored[:finalK]
	c.logger.Debug("rerank done", "candidates", len(candidates), "kept", finalK, "top_score", top[0].Score)

	return Selection{Chunks: top, Confidence: sigmoid(top[0].Score)}, nil
}

// sigmoid squashes a raw relevance score into (0,1).
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
