package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

// Extract pulls text from a stored PDF, optionally bounded to the 1-based
// page range [pageFrom, pageTo]. Zero bounds mean the whole document.
func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, pageFrom, pageTo int) (domain.Extraction, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read source document: %w", err)
	}
	if len(raw) < 8 {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf",
			errors.New("document too short to be a pdf"))
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf",
			fmt.Errorf("parse %s: %w", doc.Name, err))
	}

	totalPages := pdfReader.NumPage()
	if pageFrom <= 0 {
		pageFrom = 1
	}
	if pageTo <= 0 || pageTo > totalPages {
		pageTo = totalPages
	}
	if pageFrom > totalPages {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf",
			fmt.Errorf("page %d beyond document end %d", pageFrom, totalPages))
	}

	var sb strings.Builder
	for pageNum := pageFrom; pageNum <= pageTo; pageNum++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("extract page %d: %w", pageNum, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract pdf",
			errors.New("no extractable text"))
	}
	return domain.Extraction{Text: text}, nil
}

// PageCount reports the number of pages, used by the splitting stage to
// size batches.
func (e *Extractor) PageCount(ctx context.Context, doc *domain.Document) (int, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read source document: %w", err)
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "count pdf pages", err)
	}
	return pdfReader.NumPage(), nil
}
