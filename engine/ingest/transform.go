package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/chunk"
	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// FrontMatterPages is how many leading pages are dropped before cleaning.
// Cover page and table of contents carry repeated headers and no policy
// content, and would otherwise pollute retrieval.
const FrontMatterPages = 2

// filterFrontMatter keeps pages past the front matter.
func filterFrontMatter(pages []domain.Page) []domain.Page {
	kept := make([]domain.Page, 0, len(pages))
	for _, p := range pages {
		if p.Number > FrontMatterPages {
			kept = append(kept, p)
		}
	}
	return kept
}

// mergePages joins cleaned pages into a single document string. Pages are
// separated by a blank line so paragraph boundaries survive the merge.
func mergePages(pages []domain.Page) MergedDoc {
	if len(pages) == 0 {
		return MergedDoc{}
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return MergedDoc{Text: strings.Join(texts, "\n\n"), Source: pages[0].Source}
}

// Strategy selects how a merged document is cut into chunks.
type Strategy string

const (
	// StrategySection chunks by numbered section headers, splitting long
	// sections to the sub-chunk limit. The default.
	StrategySection Strategy = "section"
	// StrategyParagraph groups blank-line-separated paragraphs with one
	// paragraph of overlap. No section metadata on sources.
	StrategyParagraph Strategy = "paragraph"
)

// buildChunks cuts a merged document into embeddable chunks using the given
// strategy. Under StrategySection, documents with no detectable headers fall
// back to flat windowing so a headerless document still becomes searchable,
// just without section metadata on its sources.
func buildChunks(doc MergedDoc, strategy Strategy) []domain.Chunk {
	if strategy == StrategyParagraph {
		return paragraphChunks(doc)
	}
	return sectionChunks(doc)
}

func sectionChunks(doc MergedDoc) []domain.Chunk {
	sections := chunk.Sections(doc.Text)
	if len(sections) == 0 {
		return flatChunks(doc)
	}

	var chunks []domain.Chunk
	id := 0
	for _, section := range sections {
		for _, text := range chunk.Split(section.Text, chunk.DefaultMaxChars) {
			chunks = append(chunks, domain.Chunk{
				ID:            id,
				Text:          text,
				Source:        doc.Source,
				SectionNumber: section.Number,
				SectionTitle:  section.Title,
			})
			id++
		}
	}
	return chunks
}

func paragraphChunks(doc MergedDoc) []domain.Chunk {
	var chunks []domain.Chunk
	for id, text := range chunk.Paragraphs(doc.Text, chunk.DefaultParagraphBudget, chunk.DefaultOverlapParagraph) {
		chunks = append(chunks, domain.Chunk{ID: id, Text: text, Source: doc.Source})
	}
	return chunks
}

func flatChunks(doc MergedDoc) []domain.Chunk {
	var chunks []domain.Chunk
	for id, text := range chunk.Flat(doc.Text, chunk.DefaultFlatSize, chunk.DefaultFlatOverlap) {
		chunks = append(chunks, domain.Chunk{ID: id, Text: text, Source: doc.Source})
	}
	return chunks
}

// pointID derives a stable vector point ID from the document source and
// chunk ID, so re-running ingestion overwrites points instead of
// duplicating them.
func pointID(source string, chunkID int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", source, chunkID))).String()
}
