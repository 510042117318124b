package domain

import "time"

// StagePayload scopes a downstream stage invocation. EmittedAt is stamped by
// the queue on publish so consumers can measure delivery lag.
type StagePayload struct {
	DocumentID string    `json:"document_id,omitempty"`
	ChunkID    string    `json:"chunk_id,omitempty"`
	BatchSize  int       `json:"batch_size,omitempty"`
	EmittedAt  time.Time `json:"emitted_at,omitempty"`
}

// Stage names used for chaining and for queue subjects.
const (
	StageSplit       = "split"
	StageAggregate   = "aggregate"
	StageEmbed       = "embed"
	StageEnrich      = "enrich"
	StageReconcile   = "reconcile"
	StageJobs        = "jobs"
	StageBenchAssign = "benchmark-assign"
)

// Segment is one candidate chunk before persistence: overlapping text with
// its sequential index, rune span in the source, and heading context.
type Segment struct {
	Index     int
	Content   string
	SpanStart int
	SpanEnd   int
	Headings  []HeadingLevel
}

// VisionRequest carries everything the vision provider needs to describe one
// image element.
type VisionRequest struct {
	ImagePayload string
	ElementType  string
	Context      string
	PageNumber   int
}

// VisualElement is an image or table found during extraction, positioned by
// the chunk index it belongs to.
type VisualElement struct {
	ChunkIndex   int
	ImagePayload string
	ElementType  string
	PageNumber   int
}

// Extraction is the output of a text extractor for one document (or one page
// range of it): the text itself, heading context, and any visual elements.
type Extraction struct {
	Text     string
	Headings []HeadingLevel
	Visuals  []VisualElement
	Tables   []string
}
