package ports

import (
	"context"
	"io"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
)

// DocumentRepository persists and reads document state. UpdateStatus reports
// whether the row actually moved, so callers can make side effects of a
// transition fire exactly once.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) (bool, error)
	MarkAggregated(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]domain.Document, error)
	ListIntermediate(ctx context.Context, limit int) ([]domain.Document, error)
	ListStuckIngested(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Document, error)
}

// ChunkRepository is the chunk store writer: idempotent upserts plus
// forward-only status transitions. Callers enforce the transition table.
type ChunkRepository interface {
	UpsertBatch(ctx context.Context, chunks []domain.Chunk) error
	GetByID(ctx context.Context, id string) (*domain.Chunk, error)
	ListByStatus(ctx context.Context, documentID string, status domain.EmbeddingStatus, limit int) ([]domain.Chunk, error)
	ListWithPlaceholder(ctx context.Context, documentID, token string) ([]domain.Chunk, error)
	UpdateStatus(ctx context.Context, id string, status domain.EmbeddingStatus, errMessage string) error
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	ReplaceContent(ctx context.Context, id, content, originalContent string, status domain.EmbeddingStatus) error
	CountByDocument(ctx context.Context, documentID string) (total int, ready int, err error)
	FindOrphanedChunks(ctx context.Context) ([]domain.OrphanedChunk, error)
}

// VisualJobRepository manages the visual-enrichment queue. Active listing
// must exclude rows with no chunk linkage.
type VisualJobRepository interface {
	CreateBatch(ctx context.Context, jobs []domain.VisualJob) error
	ListActivePending(ctx context.Context, limit int) ([]domain.VisualJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	SetResult(ctx context.Context, id, enrichmentText string) error
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ProcessingJobRepository manages batch-split extraction jobs.
type ProcessingJobRepository interface {
	CreateBatch(ctx context.Context, jobs []domain.ProcessingJob) error
	NextPending(ctx context.Context) (*domain.ProcessingJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	ListStuck(ctx context.Context, olderThan time.Duration) ([]domain.ProcessingJob, error)
	IncrementRetry(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	ResetForHealing(ctx context.Context, olderThan time.Duration) (int64, error)
	ListDocumentsAllComplete(ctx context.Context, limit int) ([]string, error)
	CountByDocument(ctx context.Context, documentID string) (total int, completed int, err error)
}

// Chunker splits extracted text into ordered overlapping segments.
type Chunker interface {
	Split(text string, headings []domain.HeadingLevel) ([]domain.Segment, error)
}

// PageCounter is implemented by extractors that can report a page count
// ahead of extraction, enabling batch splitting.
type PageCounter interface {
	PageCount(ctx context.Context, doc *domain.Document) (int, error)
}

// EmbeddingProvider turns text into a fixed-dimensionality vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// BatchItemFailure records one failed item of a batch embedding run without
// leaking its full content.
type BatchItemFailure struct {
	Index    int
	Preview  string
	Attempts int
	Error    string
}

// ChunkEmbedder embeds many texts at once. Vectors are positional, nil where
// the item failed; a batch as a whole never fails.
type ChunkEmbedder interface {
	EmbeddingProvider
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, []BatchItemFailure)
}

// VisionProvider describes an image element in natural language.
type VisionProvider interface {
	Describe(ctx context.Context, req domain.VisionRequest) (string, error)
}

// TableSummarizer produces a short natural-language summary for a markdown
// table; implementations fall back to the verbatim table when unavailable.
type TableSummarizer interface {
	Summarize(ctx context.Context, markdownTable string) (string, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor extracts plain text plus visual elements from a stored
// document, optionally bounded to a page range.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, pageFrom, pageTo int) (domain.Extraction, error)
}

// StageDispatcher chains pipeline stages fire-and-forget: invocation errors
// are logged by the dispatcher, never returned to the calling stage.
type StageDispatcher interface {
	Dispatch(stage string, payload domain.StagePayload)
}

// StageQueue publishes and consumes cross-process stage events.
type StageQueue interface {
	Publish(ctx context.Context, stage string, payload domain.StagePayload) error
	Subscribe(ctx context.Context, handler func(ctx context.Context, stage string, payload domain.StagePayload) error) error
}
