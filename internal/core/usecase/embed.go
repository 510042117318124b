package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

const defaultEmbedBatch = 200

// EmbedStage claims pending chunks of one document, embeds them as a batch,
// and stores the vectors. Item failures mark only the failing chunk; the
// batch as a whole continues.
type EmbedStage struct {
	chunks    ports.ChunkRepository
	embedder  ports.ChunkEmbedder
	readiness *ReadinessChecker
	logger    *slog.Logger
}

func NewEmbedStage(
	chunks ports.ChunkRepository,
	embedder ports.ChunkEmbedder,
	readiness *ReadinessChecker,
	logger *slog.Logger,
) *EmbedStage {
	return &EmbedStage{
		chunks:    chunks,
		embedder:  embedder,
		readiness: readiness,
		logger:    logger,
	}
}

func (s *EmbedStage) Run(ctx context.Context, req ports.StageRequest) (ports.StageReport, error) {
	if req.DocumentID == "" {
		return ports.StageReport{}, domain.WrapError(domain.ErrInvalidInput, "embed", errors.New("documentId is required"))
	}

	limit := req.BatchSize
	if limit <= 0 {
		limit = defaultEmbedBatch
	}

	pending, err := s.chunks.ListByStatus(ctx, req.DocumentID, domain.EmbedPending, limit)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("list pending chunks: %w", err)
	}

	var report reportBuilder
	if len(pending) == 0 {
		if _, err := s.readiness.Check(ctx, req.DocumentID); err != nil {
			s.logger.Warn("readiness_check_failed", "document_id", req.DocumentID, "error", err)
		}
		return report.build("no pending chunks"), nil
	}

	claimed := make([]domain.Chunk, 0, len(pending))
	for _, chunk := range pending {
		if err := s.chunks.UpdateStatus(ctx, chunk.ID, domain.EmbedProcessing, ""); err != nil {
			report.fail(fmt.Sprintf("chunk %s: claim: %v", chunk.ID, err))
			continue
		}
		claimed = append(claimed, chunk)
	}

	texts := make([]string, len(claimed))
	for i := range claimed {
		texts[i] = claimed[i].EmbeddingInput()
	}

	vectors, failures := s.embedder.EmbedBatch(ctx, texts)
	failureByIndex := make(map[int]ports.BatchItemFailure, len(failures))
	for _, f := range failures {
		failureByIndex[f.Index] = f
	}

	for i, chunk := range claimed {
		if f, failed := failureByIndex[i]; failed {
			report.fail(fmt.Sprintf("chunk %s: %s (attempts=%d)", chunk.ID, f.Error, f.Attempts))
			if err := s.chunks.UpdateStatus(ctx, chunk.ID, domain.EmbedFailed, f.Error); err != nil {
				s.logger.Warn("chunk_fail_mark_failed", "chunk_id", chunk.ID, "error", err)
			}
			continue
		}
		if err := s.chunks.SetEmbedding(ctx, chunk.ID, vectors[i]); err != nil {
			report.fail(fmt.Sprintf("chunk %s: store embedding: %v", chunk.ID, err))
			continue
		}
		report.ok()
	}

	if _, err := s.readiness.Check(ctx, req.DocumentID); err != nil {
		s.logger.Warn("readiness_check_failed", "document_id", req.DocumentID, "error", err)
	}

	return report.build(fmt.Sprintf("embedded %d of %d chunks", report.processed, len(pending))), nil
}
