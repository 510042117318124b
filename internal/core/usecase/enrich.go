package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// EnrichOptions bound one enrichment invocation.
type EnrichOptions struct {
	BatchSize     int
	MaxIterations int
	StuckAfter    time.Duration
}

func (o EnrichOptions) normalize() EnrichOptions {
	out := o
	if out.BatchSize <= 0 {
		out.BatchSize = 10
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = 20
	}
	if out.StuckAfter <= 0 {
		out.StuckAfter = 5 * time.Minute
	}
	return out
}

// EnrichStage drains the visual-enrichment queue: pending jobs with a linked
// chunk get an image description from the vision provider, the chunk content
// is rewritten, and the chunk is re-embedded synchronously. Orphaned jobs
// never enter the batch. A failed description marks the job failed without
// retry; only jobs stuck in processing are swept back to pending.
type EnrichStage struct {
	jobs      ports.VisualJobRepository
	chunks    ports.ChunkRepository
	docs      ports.DocumentRepository
	vision    ports.VisionProvider
	embedder  ports.EmbeddingProvider
	readiness *ReadinessChecker
	logger    *slog.Logger
	opts      EnrichOptions
}

func NewEnrichStage(
	jobs ports.VisualJobRepository,
	chunks ports.ChunkRepository,
	docs ports.DocumentRepository,
	vision ports.VisionProvider,
	embedder ports.EmbeddingProvider,
	readiness *ReadinessChecker,
	logger *slog.Logger,
	opts EnrichOptions,
) *EnrichStage {
	return &EnrichStage{
		jobs:      jobs,
		chunks:    chunks,
		docs:      docs,
		vision:    vision,
		embedder:  embedder,
		readiness: readiness,
		logger:    logger,
		opts:      opts.normalize(),
	}
}

func (s *EnrichStage) Run(ctx context.Context, req ports.StageRequest) (ports.StageReport, error) {
	reset, err := s.jobs.ResetStuck(ctx, s.opts.StuckAfter)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("reset stuck visual jobs: %w", err)
	}
	if reset > 0 {
		s.logger.Info("visual_jobs_reset", "count", reset)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.opts.BatchSize
	}

	var report reportBuilder
	for iteration := 0; iteration < s.opts.MaxIterations; iteration++ {
		batch, err := s.jobs.ListActivePending(ctx, batchSize)
		if err != nil {
			return ports.StageReport{}, fmt.Errorf("list pending visual jobs: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			job := &batch[i]
			if err := s.processJob(ctx, job); err != nil {
				report.fail(fmt.Sprintf("job %s: %v", job.ID, err))
				if markErr := s.jobs.UpdateStatus(ctx, job.ID, domain.JobFailed, err.Error()); markErr != nil {
					s.logger.Warn("visual_job_mark_failed", "job_id", job.ID, "error", markErr)
				}
				continue
			}
			report.ok()
		}
	}

	return report.build(fmt.Sprintf("enriched %d visual jobs", report.processed)), nil
}

func (s *EnrichStage) processJob(ctx context.Context, job *domain.VisualJob) error {
	if job.Orphaned() {
		return errors.New("orphaned job leaked into active batch")
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if _, err := base64.StdEncoding.DecodeString(job.ImagePayload); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode image payload", err)
	}

	description, err := s.vision.Describe(ctx, domain.VisionRequest{
		ImagePayload: job.ImagePayload,
		ElementType:  job.ElementType,
		Context:      s.resolveContext(ctx, job),
		PageNumber:   job.PageNumber,
	})
	if err != nil {
		return fmt.Errorf("describe image: %w", err)
	}
	if strings.TrimSpace(description) == "" {
		return errors.New("vision provider returned empty description")
	}

	if err := s.jobs.SetResult(ctx, job.ID, description); err != nil {
		return fmt.Errorf("store enrichment result: %w", err)
	}

	updated, err := s.applyToChunks(ctx, job, description)
	if err != nil {
		return err
	}

	for _, chunkID := range updated {
		if err := s.embedChunk(ctx, chunkID); err != nil {
			s.logger.Warn("enriched_chunk_embed_failed", "chunk_id", chunkID, "error", err)
		}
	}

	if _, err := s.readiness.Check(ctx, job.DocumentID); err != nil {
		s.logger.Warn("readiness_check_failed", "document_id", job.DocumentID, "error", err)
	}
	return nil
}

// applyToChunks rewrites chunk content with the description. Dedicated visual
// chunks are overwritten in place; legacy placeholder chunks have the job
// token and any bracketed image ref substituted inside sibling text.
func (s *EnrichStage) applyToChunks(ctx context.Context, job *domain.VisualJob, description string) ([]string, error) {
	chunk, err := s.chunks.GetByID(ctx, job.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("fetch linked chunk: %w", err)
	}

	if chunk.Kind == domain.ChunkVisual {
		if err := s.chunks.ReplaceContent(ctx, chunk.ID, description, chunk.Content, domain.EmbedPending); err != nil {
			return nil, fmt.Errorf("rewrite visual chunk: %w", err)
		}
		return []string{chunk.ID}, nil
	}

	token := domain.PlaceholderToken(job.ID)
	siblings, err := s.chunks.ListWithPlaceholder(ctx, job.DocumentID, token)
	if err != nil {
		return nil, fmt.Errorf("list placeholder chunks: %w", err)
	}

	updated := make([]string, 0, len(siblings))
	for _, sibling := range siblings {
		content := strings.ReplaceAll(sibling.Content, token, description)
		if sibling.ImageRef != "" {
			content = strings.ReplaceAll(content, "["+sibling.ImageRef+"]", description)
		}
		if err := s.chunks.ReplaceContent(ctx, sibling.ID, content, sibling.Content, domain.EmbedPending); err != nil {
			return nil, fmt.Errorf("rewrite placeholder chunk %s: %w", sibling.ID, err)
		}
		updated = append(updated, sibling.ID)
	}
	return updated, nil
}

func (s *EnrichStage) embedChunk(ctx context.Context, chunkID string) error {
	chunk, err := s.chunks.GetByID(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("fetch chunk: %w", err)
	}
	if err := s.chunks.UpdateStatus(ctx, chunkID, domain.EmbedProcessing, ""); err != nil {
		return fmt.Errorf("claim chunk: %w", err)
	}
	vector, err := s.embedder.Embed(ctx, chunk.EmbeddingInput())
	if err != nil {
		if markErr := s.chunks.UpdateStatus(ctx, chunkID, domain.EmbedFailed, err.Error()); markErr != nil {
			s.logger.Warn("chunk_fail_mark_failed", "chunk_id", chunkID, "error", markErr)
		}
		return fmt.Errorf("embed enriched chunk: %w", err)
	}
	if err := s.chunks.SetEmbedding(ctx, chunkID, vector); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	return nil
}

// resolveContext prefers the context captured at job creation; otherwise the
// document category and name are matched against known domains, falling back
// to "general".
func (s *EnrichStage) resolveContext(ctx context.Context, job *domain.VisualJob) string {
	if strings.TrimSpace(job.Context) != "" {
		return job.Context
	}

	hint := ""
	if doc, err := s.docs.GetByID(ctx, job.DocumentID); err == nil {
		hint = doc.Category + " " + doc.Name
	}
	inferred := inferContext(hint)
	s.logger.Warn("vision_context_inferred",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"context_source", "inferred",
		"context", inferred,
	)
	return inferred
}

func inferContext(hint string) string {
	hint = strings.ToLower(hint)
	switch {
	case strings.Contains(hint, "invoice"), strings.Contains(hint, "billing"), strings.Contains(hint, "finance"):
		return "financial document"
	case strings.Contains(hint, "contract"), strings.Contains(hint, "legal"):
		return "legal document"
	case strings.Contains(hint, "report"), strings.Contains(hint, "analytics"):
		return "analytical report"
	case strings.Contains(hint, "manual"), strings.Contains(hint, "guide"), strings.Contains(hint, "spec"):
		return "technical manual"
	default:
		return "general"
	}
}
