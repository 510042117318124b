package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vgrishin/docingest/internal/core/domain"
	"github.com/vgrishin/docingest/internal/core/ports"
)

// ReadinessChecker advances a document to ready once every persisted chunk
// reached a ready embedding, then fires the downstream trigger. Safe to run
// redundantly from any stage: a document with zero chunks, missing chunks, or
// an already-terminal status is left untouched.
type ReadinessChecker struct {
	docs       ports.DocumentRepository
	chunks     ports.ChunkRepository
	dispatcher ports.StageDispatcher
	logger     *slog.Logger
}

func NewReadinessChecker(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	dispatcher ports.StageDispatcher,
	logger *slog.Logger,
) *ReadinessChecker {
	return &ReadinessChecker{
		docs:       docs,
		chunks:     chunks,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (rc *ReadinessChecker) Check(ctx context.Context, documentID string) (bool, error) {
	total, ready, err := rc.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 || ready < total {
		return false, nil
	}

	transitioned, err := rc.docs.UpdateStatus(ctx, documentID, domain.DocReady, "")
	if err != nil {
		return false, fmt.Errorf("advance document to ready: %w", err)
	}
	if !transitioned {
		// Another caller already advanced this document; the downstream
		// trigger has fired once and must not fire again.
		return true, nil
	}

	rc.logger.Info("document_ready",
		"document_id", documentID,
		"chunks", total,
	)
	rc.dispatcher.Dispatch(domain.StageBenchAssign, domain.StagePayload{DocumentID: documentID})
	return true, nil
}
