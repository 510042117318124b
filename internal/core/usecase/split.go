package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// SplitStage turns an ingested document into page-range processing jobs.
// Extractors without a page count get a single whole-document job.
type SplitStage struct {
	docs        ports.DocumentRepository
	jobs        ports.ProcessingJobRepository
	extractor   ports.TextExtractor
	dispatcher  ports.StageDispatcher
	logger      *slog.Logger
	pagesPerJob int
}

func NewSplitStage(
	docs ports.DocumentRepository,
	jobs ports.ProcessingJobRepository,
	extractor ports.TextExtractor,
	dispatcher ports.StageDispatcher,
	logger *slog.Logger,
	pagesPerJob int,
) *SplitStage {
	if pagesPerJob <= 0 {
		pagesPerJob = 25
	}
	return &SplitStage{
		docs:        docs,
		jobs:        jobs,
		extractor:   extractor,
		dispatcher:  dispatcher,
		logger:      logger,
		pagesPerJob: pagesPerJob,
	}
}

func (s *SplitStage) Run(ctx context.Context, req ports.StageRequest) (ports.StageReport, error) {
	if req.DocumentID == "" {
		return ports.StageReport{}, domain.WrapError(domain.ErrInvalidInput, "split", errors.New("documentId is required"))
	}

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("fetch document: %w", err)
	}
	if doc.Status.Terminal() {
		return ports.StageReport{
			Success: true,
			Message: fmt.Sprintf("document already %s", doc.Status),
		}, nil
	}

	if _, err := s.docs.UpdateStatus(ctx, doc.ID, domain.DocProcessing, ""); err != nil {
		return ports.StageReport{}, fmt.Errorf("set status=processing: %w", err)
	}

	batches, err := s.batchCount(ctx, doc)
	if err != nil {
		if _, failErr := s.docs.UpdateStatus(ctx, doc.ID, domain.DocFailed, err.Error()); failErr != nil {
			return ports.StageReport{}, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return ports.StageReport{}, err
	}

	now := time.Now().UTC()
	jobs := make([]domain.ProcessingJob, 0, batches)
	for i := 0; i < batches; i++ {
		jobs = append(jobs, domain.ProcessingJob{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			BatchIndex: i,
			Status:     domain.JobPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := s.jobs.CreateBatch(ctx, jobs); err != nil {
		return ports.StageReport{}, fmt.Errorf("create processing jobs: %w", err)
	}

	s.logger.Info("document_split",
		"document_id", doc.ID,
		"batches", batches,
	)
	s.dispatcher.Dispatch(domain.StageJobs, domain.StagePayload{DocumentID: doc.ID})

	return ports.StageReport{
		Success:   true,
		Processed: batches,
		Message:   fmt.Sprintf("created %d processing jobs", batches),
	}, nil
}

func (s *SplitStage) batchCount(ctx context.Context, doc *domain.Document) (int, error) {
	counter, ok := s.extractor.(ports.PageCounter)
	if !ok {
		return 1, nil
	}
	pages, err := counter.PageCount(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	if pages <= s.pagesPerJob {
		return 1, nil
	}
	return (pages + s.pagesPerJob - 1) / s.pagesPerJob, nil
}
