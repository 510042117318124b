package usecase

import (
	"context"
	"fmt"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// DocumentProgress is the operator view of one document's pipeline state.
type DocumentProgress struct {
	Document    *domain.Document `json:"document"`
	TotalChunks int              `json:"total_chunks"`
	ReadyChunks int              `json:"ready_chunks"`
}

type DocumentQueryUseCase struct {
	docs   ports.DocumentRepository
	chunks ports.ChunkRepository
}

func NewDocumentQueryUseCase(docs ports.DocumentRepository, chunks ports.ChunkRepository) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{docs: docs, chunks: chunks}
}

func (uc *DocumentQueryUseCase) Get(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	return doc, nil
}

func (uc *DocumentQueryUseCase) Progress(ctx context.Context, id string) (DocumentProgress, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return DocumentProgress{}, fmt.Errorf("fetch document: %w", err)
	}
	total, ready, err := uc.chunks.CountByDocument(ctx, id)
	if err != nil {
		return DocumentProgress{}, fmt.Errorf("count chunks: %w", err)
	}
	return DocumentProgress{
		Document:    doc,
		TotalChunks: total,
		ReadyChunks: ready,
	}, nil
}
