package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vgrishin/docingest/internal/core/ports"
)

const defaultReconcileScan = 100

// ReconcileStage is the safety net for lost embed completions: it scans
// documents in intermediate status and advances any whose chunks are all
// ready. Zero-chunk documents are never advanced. The readiness check is
// idempotent, so overlapping runs are harmless. It also surfaces chunks
// whose placeholder never resolved, for operator visibility.
type ReconcileStage struct {
	docs      ports.DocumentRepository
	chunks    ports.ChunkRepository
	readiness *ReadinessChecker
	logger    *slog.Logger
}

func NewReconcileStage(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	readiness *ReadinessChecker,
	logger *slog.Logger,
) *ReconcileStage {
	return &ReconcileStage{
		docs:      docs,
		chunks:    chunks,
		readiness: readiness,
		logger:    logger,
	}
}

func (s *ReconcileStage) Run(ctx context.Context, req ports.StageRequest) (ports.StageReport, error) {
	limit := req.BatchSize
	if limit <= 0 {
		limit = defaultReconcileScan
	}

	docs, err := s.docs.ListIntermediate(ctx, limit)
	if err != nil {
		return ports.StageReport{}, fmt.Errorf("list intermediate documents: %w", err)
	}

	var report reportBuilder
	advanced := 0
	for _, doc := range docs {
		if req.DocumentID != "" && doc.ID != req.DocumentID {
			continue
		}
		ready, err := s.readiness.Check(ctx, doc.ID)
		if err != nil {
			report.fail(fmt.Sprintf("document %s: %v", doc.ID, err))
			continue
		}
		report.ok()
		if ready {
			advanced++
		}
	}

	if advanced > 0 {
		s.logger.Info("reconcile_advanced", "count", advanced)
	}
	s.reportOrphans(ctx)
	return report.build(fmt.Sprintf("scanned %d documents, advanced %d", report.processed, advanced)), nil
}

// reportOrphans logs chunks still carrying a placeholder whose enrichment
// job is gone or finished without rewriting them. Diagnostic only, the
// chunks themselves are left untouched.
func (s *ReconcileStage) reportOrphans(ctx context.Context) {
	orphans, err := s.chunks.FindOrphanedChunks(ctx)
	if err != nil {
		s.logger.Warn("orphaned_chunk_scan_failed", "error", err)
		return
	}
	for _, o := range orphans {
		s.logger.Warn("orphaned_chunk",
			"chunk_id", o.ChunkID,
			"document_id", o.DocumentID,
			"job_id", o.JobID,
			"job_status", o.JobStatus,
		)
	}
}
