package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

// Extract renders every sheet as a markdown table. The tables are also
// returned separately so the summarization step can replace each with a
// short natural-language summary before embedding.
func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, _, _ int) (domain.Extraction, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract spreadsheet",
			fmt.Errorf("parse %s: %w", doc.Name, err))
	}
	defer workbook.Close()

	var sb strings.Builder
	var tables []string
	var headings []domain.HeadingLevel

	for _, sheet := range workbook.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		table := renderMarkdownTable(rows)
		if table == "" {
			continue
		}
		headings = append(headings, domain.HeadingLevel{Level: 1, Text: sheet})
		tables = append(tables, table)
		sb.WriteString("# " + sheet + "\n\n")
		sb.WriteString(table)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract spreadsheet",
			errors.New("no populated sheets"))
	}
	return domain.Extraction{
		Text:     text,
		Headings: headings,
		Tables:   tables,
	}, nil
}

func renderMarkdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return ""
	}

	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString("|")
		for col := 0; col < width; col++ {
			cell := ""
			if col < len(row) {
				cell = strings.ReplaceAll(row[col], "|", "\\|")
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
		if i == 0 {
			sb.WriteString("|" + strings.Repeat("---|", width) + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
