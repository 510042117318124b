package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// batchIndexStride spaces chunk indexes so concurrently processed batches of
// the same document never collide on (document_id, chunk_index).
const batchIndexStride = 10000

// BatchRunner executes one processing job: extract the job's page range,
// chunk the text, summarize tables, register visual elements, and persist
// everything. Job status itself is owned by the caller.
type BatchRunner struct {
	docs        ports.DocumentRepository
	chunks      ports.ChunkRepository
	visualJobs  ports.VisualJobRepository
	extractor   ports.TextExtractor
	chunker     ports.Chunker
	summarizer  ports.TableSummarizer
	logger      *slog.Logger
	pagesPerJob int
}

func NewBatchRunner(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	visualJobs ports.VisualJobRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	summarizer ports.TableSummarizer,
	logger *slog.Logger,
	pagesPerJob int,
) *BatchRunner {
	if pagesPerJob <= 0 {
		pagesPerJob = 25
	}
	return &BatchRunner{
		docs:        docs,
		chunks:      chunks,
		visualJobs:  visualJobs,
		extractor:   extractor,
		chunker:     chunker,
		summarizer:  summarizer,
		logger:      logger,
		pagesPerJob: pagesPerJob,
	}
}

func (r *BatchRunner) ProcessJob(ctx context.Context, job *domain.ProcessingJob) error {
	doc, err := r.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	pageFrom := job.BatchIndex*r.pagesPerJob + 1
	pageTo := pageFrom + r.pagesPerJob - 1
	extraction, err := r.extractor.Extract(ctx, doc, pageFrom, pageTo)
	if err != nil {
		return fmt.Errorf("extract batch %d: %w", job.BatchIndex, err)
	}

	segments, err := r.chunker.Split(extraction.Text, extraction.Headings)
	if err != nil {
		return fmt.Errorf("chunk batch %d: %w", job.BatchIndex, err)
	}

	now := time.Now().UTC()
	offset := job.BatchIndex * batchIndexStride
	chunks := make([]domain.Chunk, 0, len(segments)+len(extraction.Visuals)+len(extraction.Tables))

	for _, seg := range segments {
		chunks = append(chunks, domain.Chunk{
			ID:              uuid.NewString(),
			DocumentID:      doc.ID,
			Index:           offset + seg.Index,
			Content:         seg.Content,
			Headings:        seg.Headings,
			SpanStart:       seg.SpanStart,
			SpanEnd:         seg.SpanEnd,
			Kind:            domain.ChunkText,
			EmbeddingStatus: domain.EmbedPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	next := offset + len(segments)
	visualJobs := make([]domain.VisualJob, 0, len(extraction.Visuals))
	for _, visual := range extraction.Visuals {
		chunkID := uuid.NewString()
		chunks = append(chunks, domain.Chunk{
			ID:              chunkID,
			DocumentID:      doc.ID,
			Index:           next,
			Content:         fmt.Sprintf("[%s page %d]", elementLabel(visual.ElementType), visual.PageNumber),
			Kind:            domain.ChunkVisual,
			ImageRef:        fmt.Sprintf("%s:p%d", elementLabel(visual.ElementType), visual.PageNumber),
			EmbeddingStatus: domain.EmbedWaitingEnrichment,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		visualJobs = append(visualJobs, domain.VisualJob{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			ChunkID:      chunkID,
			ImagePayload: visual.ImagePayload,
			ElementType:  visual.ElementType,
			Context:      doc.Category,
			PageNumber:   visual.PageNumber,
			Status:       domain.JobPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		next++
	}

	for _, table := range extraction.Tables {
		summary, err := r.summarizer.Summarize(ctx, table)
		if err != nil {
			// Verbatim fallback keeps the table searchable.
			r.logger.Warn("table_summary_failed", "document_id", doc.ID, "error", err)
			summary = table
		}
		chunks = append(chunks, domain.Chunk{
			ID:              uuid.NewString(),
			DocumentID:      doc.ID,
			Index:           next,
			Content:         table,
			SemanticSummary: summary,
			Kind:            domain.ChunkText,
			EmbeddingStatus: domain.EmbedPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		next++
	}

	if err := r.chunks.UpsertBatch(ctx, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if len(visualJobs) > 0 {
		if err := r.visualJobs.CreateBatch(ctx, visualJobs); err != nil {
			return fmt.Errorf("queue visual jobs: %w", err)
		}
	}

	r.logger.Info("batch_processed",
		"document_id", doc.ID,
		"batch_index", job.BatchIndex,
		"chunks", len(chunks),
		"visual_jobs", len(visualJobs),
	)
	return nil
}

func elementLabel(elementType string) string {
	if elementType == "" {
		return "image"
	}
	return elementType
}
