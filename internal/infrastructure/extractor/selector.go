package extractor

import (
	"context"
	"strings"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// Selector routes extraction to the adapter matching the document's mime
// type. Unknown types fall through to the plain-text extractor.
type Selector struct {
	pdf         ports.TextExtractor
	spreadsheet ports.TextExtractor
	plain       ports.TextExtractor
}

func NewSelector(pdf, spreadsheet, plain ports.TextExtractor) *Selector {
	return &Selector{pdf: pdf, spreadsheet: spreadsheet, plain: plain}
}

func (s *Selector) Extract(ctx context.Context, doc *domain.Document, pageFrom, pageTo int) (domain.Extraction, error) {
	return s.pick(doc).Extract(ctx, doc, pageFrom, pageTo)
}

// PageCount reports the page count when the selected extractor can know it
// ahead of extraction; everything else is a single batch.
func (s *Selector) PageCount(ctx context.Context, doc *domain.Document) (int, error) {
	if counter, ok := s.pick(doc).(ports.PageCounter); ok {
		return counter.PageCount(ctx, doc)
	}
	return 1, nil
}

func (s *Selector) pick(doc *domain.Document) ports.TextExtractor {
	mime := strings.ToLower(doc.MimeType)
	switch {
	case strings.Contains(mime, "pdf"):
		return s.pdf
	case strings.Contains(mime, "spreadsheet"), strings.Contains(mime, "excel"),
		strings.HasSuffix(strings.ToLower(doc.Name), ".xlsx"):
		return s.spreadsheet
	default:
		return s.plain
	}
}
