package domain

import (
	"fmt"
	"strings"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobFailed},
	JobProcessing: {JobCompleted, JobFailed, JobPending},
	JobCompleted:  {},
	// Failed jobs go back to pending only via the self-healing sweep.
	JobFailed: {JobPending},
}

func (s JobStatus) CanTransition(to JobStatus) bool {
	if s == to {
		return true
	}
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProcessingJob is one batch (page range) of a large document's extraction.
type ProcessingJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	BatchIndex int       `json:"batch_index"`
	Status     JobStatus `json:"status"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VisualJob links an image payload to the chunk awaiting its description.
// ChunkID is empty for legacy/orphaned rows, which are excluded from active
// processing so they cannot loop forever.
type VisualJob struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	ChunkID        string    `json:"chunk_id,omitempty"`
	ImagePayload   string    `json:"image_payload"`
	ElementType    string    `json:"element_type,omitempty"`
	Context        string    `json:"context,omitempty"`
	PageNumber     int       `json:"page_number,omitempty"`
	Status         JobStatus `json:"status"`
	EnrichmentText string    `json:"enrichment_text,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (j *VisualJob) Orphaned() bool {
	return strings.TrimSpace(j.ChunkID) == ""
}

// PlaceholderToken is the sentinel the legacy architecture embeds in chunk
// text while a visual element awaits its description.
func PlaceholderToken(jobID string) string {
	return fmt.Sprintf("[VISUAL_ENRICHMENT_PENDING: %s]", jobID)
}
