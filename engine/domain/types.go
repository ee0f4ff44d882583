// Package domain defines the core record types shared across the policy RAG
// pipeline, plus query validation and the error taxonomy. Every stage consumes
// and produces these typed records; there are no open metadata maps.
package domain

// Page is one page of extracted document text, as produced by the loader.
type Page struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Number int    `json:"page"`
}

// Section is a contiguous span of the merged document scoped to one numbered
// header. Sections are non-overlapping and ordered by document position.
type Section struct {
	Number string `json:"section_number"` // dotted numerals, e.g. "3.1"
	Title  string `json:"section_title"`
	Text   string `json:"text"`
}

// Chunk is the atomic retrieval unit. IDs are a monotonically increasing
// counter across one ingestion run; they identify chunks for logging only and
// are not stable across runs.
type Chunk struct {
	ID            int    `json:"chunk_id"`
	Text          string `json:"text"`
	Source        string `json:"source"`
	SectionNumber string `json:"section_number,omitempty"`
	SectionTitle  string `json:"section_title,omitempty"`
}

// ScoredChunk pairs a chunk with its similarity or relevance score for one
// query. Ephemeral, request-scoped.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SourceRef is one deduplicated citation entry in an answer.
type SourceRef struct {
	SectionNumber string `json:"section_number"`
	SectionTitle  string `json:"section_title"`
}

// AnswerRecord is the structured response for one query. Constructed once,
// returned to the caller, never persisted.
type AnswerRecord struct {
	Answer          string      `json:"answer"`
	Sources         []SourceRef `json:"sources"`
	ConfidenceScore float64     `json:"confidence_score"`
	ConfidenceLevel string      `json:"confidence_level"`
	Grounded        bool        `json:"grounded_in_context"`
	GroundingScore  float64     `json:"grounding_similarity_score"`
}

// Confidence labels and their lower bounds.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"

	HighThreshold   = 0.85
	MediumThreshold = 0.65
)

// ClassifyConfidence maps a 0-1 score onto a label. The thresholds are
// inclusive: 0.85 is High, 0.65 is Medium.
func ClassifyConfidence(score float64) string {
	switch {
	case score >= HighThreshold:
		return ConfidenceHigh
	case score >= MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// DedupSources collapses chunks from the same section into a single citation,
// preserving first-seen order. Chunks without section metadata are skipped.
func DedupSources(chunks []Chunk) []SourceRef {
	type key struct{ number, title string }
	seen := make(map[key]struct{}, len(chunks))
	out := make([]SourceRef, 0, len(chunks))
	for _, c := range chunks {
		if c.SectionNumber == "" && c.SectionTitle == "" {
			continue
		}
		k := key{c.SectionNumber, c.SectionTitle}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, SourceRef{SectionNumber: c.SectionNumber, SectionTitle: c.SectionTitle})
	}
	return out
}
