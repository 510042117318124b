package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// AggregateStage finalizes a batch-split document once every processing job
// completed: the document is marked aggregated, advanced to chunked, and the
// embedding stage is triggered. Re-running on an aggregated document is a
// no-op.
type AggregateStage struct {
	docs       ports.DocumentRepository
	jobs       ports.ProcessingJobRepository
	dispatcher ports.StageDispatcher
	logger     *slog.Logger
}

func NewAggregateStage(
	docs ports.DocumentRepository,
	jobs ports.ProcessingJobRepository,
	dispatcher ports.StageDispatcher,
	logger *slog.Logger,
) *AggregateStage {
	return &AggregateStage{
		docs:       docs,
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *AggregateStage) Run(ctx context.Context, req ports.StageRequest) (ports.StageReport, error) {
	if req.DocumentID == "" {
		return ports.StageReport{}, domain.WrapError(domain.ErrInvalidInput, "aggregate", errors.New("documentId is required"))
	}

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("fetch document: %w", err)
	}
	if doc.Aggregated {
		return ports.StageReport{Success: true, Message: "document already aggregated"}, nil
	}

	total, completed, err := s.jobs.CountByDocument(ctx, doc.ID)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("count processing jobs: %w", err)
	}
	if total == 0 || completed < total {
		return ports.StageReport{
			Success: true,
			Message: fmt.Sprintf("not ready: %d/%d batches complete", completed, total),
		}, nil
	}

	if err := s.docs.MarkAggregated(ctx, doc.ID); err != nil {
		return ports.StageReport{}, fmt.Errorf("mark aggregated: %w", err)
	}
	if _, err := s.docs.UpdateStatus(ctx, doc.ID, domain.DocChunked, ""); err != nil {
		return ports.StageReport{}, fmt.Errorf("set status=chunked: %w", err)
	}

	s.logger.Info("document_aggregated",
		"document_id", doc.ID,
		"batches", total,
	)
	s.dispatcher.Dispatch(domain.StageEmbed, domain.StagePayload{DocumentID: doc.ID})

	return ports.StageReport{
		Success:   true,
		Processed: total,
		Message:   fmt.Sprintf("aggregated %d batches", total),
	}, nil
}
