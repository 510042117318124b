package domain

import "time"

type DocumentStatus string

const (
	DocIngested   DocumentStatus = "ingested"
	DocDownloaded DocumentStatus = "downloaded"
	DocProcessing DocumentStatus = "processing"
	DocChunked    DocumentStatus = "chunked"
	DocReady      DocumentStatus = "ready"
	DocFailed     DocumentStatus = "failed"
)

// documentTransitions lists the allowed forward moves per status. Ready and
// failed are terminal; a re-run of a finished document creates a new row
// rather than regressing this one.
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocIngested:   {DocDownloaded, DocProcessing, DocFailed},
	DocDownloaded: {DocProcessing, DocFailed},
	DocProcessing: {DocChunked, DocReady, DocFailed},
	DocChunked:    {DocReady, DocFailed},
	DocReady:      {},
	DocFailed:     {},
}

func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	if s == to {
		return true
	}
	for _, next := range documentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no pipeline stage will touch the document again.
func (s DocumentStatus) Terminal() bool {
	return s == DocReady || s == DocFailed
}

type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Category    string         `json:"category,omitempty"`
	Status      DocumentStatus `json:"status"`
	Aggregated  bool           `json:"aggregated"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
