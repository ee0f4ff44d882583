package chunk

import (
	"strings"
	"unicode/utf8"
)

// Flat chunking defaults, used when no section headers are detected.
const (
	DefaultFlatSize    = 1000
	DefaultFlatOverlap = 200
)

// Flat splits text into fixed-size character windows with overlap. This is
// the fallback for unstructured documents; it ignores sentence and section
// boundaries entirely.
func Flat(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultFlatSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}
		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
		next := end - overlap
		for next > start && next < len(text) && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
