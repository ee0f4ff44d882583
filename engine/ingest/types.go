package ingest

import "github.com/PolicyDeskAI/policyrag-mvp/engine/domain"

// MergedDoc is a whole document collapsed into one string, pages joined in
// order. Section headers can span page boundaries, so chunking always runs
// on the merged text rather than page by page.
type MergedDoc struct {
	Text   string
	Source string
}

// ChunkedDoc carries the embeddable chunks cut from a merged document.
type ChunkedDoc struct {
	Source string
	Chunks []domain.Chunk
}

// EmbeddedDoc pairs chunks with their embeddings, index-aligned.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}
