// Package chunk splits cleaned document text into retrieval units. The
// default path is structure-aware: numbered section headers define spans,
// and each span is bounded to a character budget on sentence boundaries.
// A paragraph-based variant and a flat overlapping chunker exist for
// documents where section detection is unsuitable or fails.
package chunk

import (
	"regexp"
	"strings"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// headerPattern matches numbered section headers at line starts:
//
//	1. Title
//	2 Title
//	3.1 Title
//	5.10 Title
//
// One or more dot-separated integers, an optional trailing period, then a
// capitalised title on the same line.
var headerPattern = regexp.MustCompile(`(?m)^\s*(\d+(?:\.\d+)*)\.?\s+([A-Z][^\n]+)`)

// Sections splits merged whole-document text into ordered, non-overlapping
// section spans. Headers can span page boundaries, so callers must merge all
// pages into one string first. A document with no detectable headers yields
// nil; callers fall back to flat chunking in that case.
func Sections(text string) []domain.Section {
	matches := headerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]domain.Section, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, domain.Section{
			Number: strings.TrimSpace(text[m[2]:m[3]]),
			Title:  strings.TrimSpace(text[m[4]:m[5]]),
			Text:   strings.TrimSpace(text[start:end]),
		})
	}
	return sections
}
