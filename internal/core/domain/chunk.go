package domain

import "time"

type EmbeddingStatus string

const (
	EmbedPending           EmbeddingStatus = "pending"
	EmbedWaitingEnrichment EmbeddingStatus = "waiting_enrichment"
	EmbedProcessing        EmbeddingStatus = "processing"
	EmbedReady             EmbeddingStatus = "ready"
	EmbedFailed            EmbeddingStatus = "failed"
)

// embeddingTransitions encodes the forward-only chunk lifecycle. The only
// backward-looking edge is the enrichment rewrite, which re-queues a chunk as
// pending after its content has been replaced; that is modeled as an explicit
// edge from waiting_enrichment rather than a regression from a terminal state.
var embeddingTransitions = map[EmbeddingStatus][]EmbeddingStatus{
	EmbedPending:           {EmbedProcessing, EmbedFailed},
	EmbedWaitingEnrichment: {EmbedPending, EmbedProcessing, EmbedFailed},
	EmbedProcessing:        {EmbedReady, EmbedFailed},
	EmbedReady:             {},
	EmbedFailed:            {},
}

func (s EmbeddingStatus) CanTransition(to EmbeddingStatus) bool {
	if s == to {
		return true
	}
	for _, next := range embeddingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s EmbeddingStatus) Terminal() bool {
	return s == EmbedReady || s == EmbedFailed
}

// ChunkKind distinguishes the two chunk representations the pipeline supports:
// dedicated visual chunks carry their own image payload, legacy placeholder
// chunks embed a sentinel token inside ordinary text.
type ChunkKind string

const (
	ChunkText              ChunkKind = "text"
	ChunkVisual            ChunkKind = "visual"
	ChunkLegacyPlaceholder ChunkKind = "legacy_placeholder"
)

type HeadingLevel struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type Chunk struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	Index           int             `json:"index"`
	Content         string          `json:"content"`
	OriginalContent string          `json:"original_content,omitempty"`
	Headings        []HeadingLevel  `json:"heading_hierarchy,omitempty"`
	SpanStart       int             `json:"span_start"`
	SpanEnd         int             `json:"span_end"`
	Kind            ChunkKind       `json:"kind"`
	ImageRef        string          `json:"image_ref,omitempty"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
	Embedding       []float32       `json:"-"`
	SemanticSummary string          `json:"semantic_summary,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EmbeddingInput returns the text actually sent to the embedding provider:
// the semantic summary supersedes raw content for table/image placeholders.
func (c *Chunk) EmbeddingInput() string {
	if c.SemanticSummary != "" {
		return c.SemanticSummary
	}
	return c.Content
}

// OrphanedChunk is the result row of the diagnostic query that finds chunks
// still carrying an enrichment placeholder whose visual job is missing or
// already finished.
type OrphanedChunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id,omitempty"`
	JobStatus  string `json:"job_status,omitempty"`
}
