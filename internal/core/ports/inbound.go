package ports

import "context"

// StageRequest is the JSON body every externally-invoked pipeline stage
// accepts; all fields are optional scoping hints.
type StageRequest struct {
	DocumentID string `json:"documentId,omitempty"`
	BatchSize  int    `json:"batchSize,omitempty"`
}

// StageReport is the uniform stage response. Errors carries per-item detail,
// capped in size by the producing stage.
type StageReport struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors,omitempty"`
}

// PipelineStage is one externally-scheduled, stateless unit of work.
type PipelineStage interface {
	Run(ctx context.Context, req StageRequest) (StageReport, error)
}
