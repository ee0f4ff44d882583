package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default per-chunk character budget.
const DefaultMaxChars = 1200

// Split bounds text to maxChars per piece, walking it in budget-sized
// windows. A window that would cut mid-sentence is shrunk back to the last
// "." inside it; if the window contains no period the cut lands on the
// nearest rune boundary. Greedy, single pass, no overlap. Empty pieces are
// dropped.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end < len(text) {
			if idx := strings.LastIndex(text[start:end], "."); idx != -1 {
				end = start + idx + 1
			} else {
				end = cutPoint(text, start, end)
			}
		} else {
			end = len(text)
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			out = append(out, piece)
		}
		start = end
	}
	return out
}

// cutPoint moves end back to the start of the rune it lands inside, keeping
// at least one rune of progress past start.
func cutPoint(text string, start, end int) int {
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end <= start {
		_, n := utf8.DecodeRuneInString(text[start:])
		return start + n
	}
	return end
}
