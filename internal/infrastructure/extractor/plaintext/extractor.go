package plaintext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

// Extract reads the whole stored file as UTF-8 text. Plain text has no page
// structure, so page bounds are ignored and markdown-style headings are
// captured as extraction context.
func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, _, _ int) (domain.Extraction, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("binary content in %s", doc.Name))
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract text",
			errors.New("empty document"))
	}

	return domain.Extraction{
		Text:     text,
		Headings: scanHeadings(text),
	}, nil
}

func scanHeadings(text string) []domain.HeadingLevel {
	var out []domain.HeadingLevel
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		title := strings.TrimSpace(trimmed[level:])
		if title != "" && level <= 6 {
			out = append(out, domain.HeadingLevel{Level: level, Text: title})
		}
	}
	return out
}
