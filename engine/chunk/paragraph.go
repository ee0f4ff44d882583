package chunk

import "strings"

// Paragraph chunking defaults.
const (
	DefaultParagraphBudget  = 1200
	DefaultOverlapParagraph = 1
)

// Paragraphs groups blank-line-separated paragraphs into chunks of at most
// maxChars, carrying overlapParagraphs trailing paragraphs into the next
// chunk. Alternative ingestion strategy; not used on the default path, which
// is section-based and overlap-free.
func Paragraphs(text string, maxChars, overlapParagraphs int) []string {
	if maxChars <= 0 {
		maxChars = DefaultParagraphBudget
	}
	if overlapParagraphs < 0 {
		overlapParagraphs = 0
	}

	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}

	var chunks []string
	var current []string
	length := 0

	for _, para := range paras {
		if length+len(para) > maxChars && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			if overlapParagraphs > 0 && overlapParagraphs < len(current) {
				current = append([]string(nil), current[len(current)-overlapParagraphs:]...)
			} else if overlapParagraphs > 0 {
				current = append([]string(nil), current...)
			} else {
				current = nil
			}
			length = 0
			for _, p := range current {
				length += len(p)
			}
		}
		current = append(current, para)
		length += len(para)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}
