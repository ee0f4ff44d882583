// Package pdfload extracts text from a PDF file as an ordered sequence of
// pages. Parsing internals belong to the pdf library; this package only maps
// its output onto domain pages.
package pdfload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/PolicyDeskAI/policyrag-mvp/engine/domain"
)

// Loader reads pages from a PDF on the local filesystem.
type Loader struct{}

// New creates a Loader.
func New() *Loader { return &Loader{} }

// Load returns one Page per PDF page that yields text, in page order. Pages
// with no extractable text are skipped. A missing file is reported with the
// expected path so startup failures are actionable.
func (l *Loader) Load(path string) ([]domain.Page, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pdfload: %w: expected document at %s", domain.ErrMissingDocument, path)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfload: open %s: %w", path, err)
	}
	defer f.Close()

	source := filepath.Base(path)
	var pages []domain.Page

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("pdfload: extract page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Text: text, Source: source, Number: i})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("pdfload: %s: %w", path, domain.ErrNoExtractableText)
	}
	return pages, nil
}
