// Package clean normalises raw page text extracted from a PDF before
// chunking: standalone page numbers, repeated header/footer lines, broken
// spaced-out capitals, whitespace noise, and duplicated lines.
package clean

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

var (
	pageNumberLine = regexp.MustCompile(`(?m)^\s*\d+\s*$`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	runSpaces      = regexp.MustCompile(`[ \t]+`)
)

// Cleaner applies the normalisation passes. The zero value is usable;
// FooterPatterns lets callers strip document-specific running headers.
type Cleaner struct {
	footers []*regexp.Regexp
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithFooterPattern adds a case-insensitive pattern whose matches are removed
// wholesale. Used for running headers/footers that repeat on every page.
func WithFooterPattern(pattern string) Option {
	return func(c *Cleaner) {
		c.footers = append(c.footers, regexp.MustCompile(`(?i)`+pattern))
	}
}

// New creates a Cleaner.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clean runs all normalisation passes over one page of text.
func (c *Cleaner) Clean(text string) string {
	text = pageNumberLine.ReplaceAllString(text, "")
	for _, f := range c.footers {
		text = f.ReplaceAllString(text, "")
	}
	text = joinSpacedCapitals(text)
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = runSpaces.ReplaceAllString(text, " ")
	return dedupeLines(text)
}

// CleanPages cleans a batch of pages, preserving metadata.
func (c *Cleaner) CleanPages(pages []domain.Page) []domain.Page {
	out := make([]domain.Page, len(pages))
	for i, p := range pages {
		out[i] = domain.Page{Text: c.Clean(p.Text), Source: p.Source, Number: p.Number}
	}
	return out
}

// joinSpacedCapitals removes whitespace between consecutive uppercase
// letters, repairing extraction artifacts like "IN FO RMATIO N". Whitespace
// is dropped only when the characters on both sides are uppercase.
func joinSpacedCapitals(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsUpper(r) {
			// Look past a whitespace run for another uppercase letter.
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j > i+1 && j < len(runes) && unicode.IsUpper(runes[j]) {
				b.WriteRune(r)
				i = j - 1
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dedupeLines drops blank lines and repeats, keeping first occurrences in
// order. PDF extractors frequently duplicate header paragraphs per page.
func dedupeLines(text string) string {
	lines := strings.Split(text, "\n")
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
