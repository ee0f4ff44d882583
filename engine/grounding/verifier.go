// Package grounding scores the semantic alignment between a generated answer
// and the context it was generated from, and decides grounded/not-grounded.
//
// This is a coarse global-similarity check, not span-level attribution. It
// can pass answers that are topically similar to the context yet factually
// unsupported, and it can fail correct answers phrased very differently from
// the source wording.
package grounding

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the cosine similarity below which an answer is flagged
// as ungrounded.
const DefaultThreshold = 0.65

// Embedder maps text to a fixed-length dense vector. The same embedding
// capability must serve both answer and context so the scores are comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Verifier checks answers against their context set.
type Verifier struct {
	embed     Embedder
	threshold float64
}

// New creates a Verifier. A non-positive threshold falls back to the default.
func New(embed Embedder, threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{embed: embed, threshold: threshold}
}

// Verify embeds the answer and the space-joined context independently and
// compares their cosine similarity against the threshold. The score is
// rounded to 3 decimal places. An empty or whitespace-only answer returns
// (false, 0) without touching the embedder.
func (v *Verifier) Verify(ctx context.Context, answer string, contextChunks []string) (bool, float64, error) {
	if strings.TrimSpace(answer) == "" {
		return false, 0, nil
	}

	contextText := strings.Join(contextChunks, " ")

	answerVec, err := v.embed.Embed(ctx, answer)
	if err != nil {
		return false, 0, fmt.Errorf("grounding: embed answer: %w", err)
	}
	contextVec, err := v.embed.Embed(ctx, contextText)
	if err != nil {
		return false, 0, fmt.Errorf("grounding: embed context: %w", err)
	}

	// The threshold compares against the raw similarity; rounding is for
	// reporting only.
	similarity := cosine(answerVec, contextVec)
	return similarity >= v.threshold, round3(similarity), nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func cosine(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
