package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
)

type VisualJobRepository struct {
	db *sql.DB
}

func NewVisualJobRepository(db *sql.DB) *VisualJobRepository {
	return &VisualJobRepository{db: db}
}

const visualJobColumns = `id, document_id, chunk_id, image_payload, element_type, doc_context, page_number, status, enrichment_text, error_message, created_at, updated_at`

func (r *VisualJobRepository) CreateBatch(ctx context.Context, jobs []domain.VisualJob) error {
	if len(jobs) == 0 {
		return nil
	}
	const query = `
INSERT INTO visual_jobs (` + visualJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING
`
	for _, j := range jobs {
		_, err := r.db.ExecContext(ctx, query,
			j.ID, j.DocumentID, nullIfEmpty(j.ChunkID), j.ImagePayload,
			nullIfEmpty(j.ElementType), nullIfEmpty(j.Context), j.PageNumber,
			string(j.Status), nullIfEmpty(j.EnrichmentText), nullIfEmpty(j.Error),
			j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert visual job %s: %w", j.ID, err)
		}
	}
	return nil
}

// ListActivePending returns pending jobs that have a chunk linkage. Rows
// with a null chunk_id are orphans and are excluded here permanently, so
// they can never enter a reprocessing loop.
func (r *VisualJobRepository) ListActivePending(ctx context.Context, limit int) ([]domain.VisualJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+visualJobColumns+`
FROM visual_jobs
WHERE status = 'pending' AND chunk_id IS NOT NULL
ORDER BY created_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending visual jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.VisualJob, 0)
	for rows.Next() {
		job, err := scanVisualJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visual job: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visual jobs: %w", err)
	}
	return out, nil
}

func (r *VisualJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE visual_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update visual job status: %w", err)
	}
	return nil
}

func (r *VisualJobRepository) SetResult(ctx context.Context, id, enrichmentText string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE visual_jobs
SET enrichment_text = $2, status = 'completed', error_message = '', updated_at = $3
WHERE id = $1
`, id, enrichmentText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set visual job result: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set visual job result rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "set visual job result", fmt.Errorf("id=%s", id))
	}
	return nil
}

// ResetStuck moves jobs abandoned in processing back to pending. This
// recovers crashed workers, not logical failures.
func (r *VisualJobRepository) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, `
UPDATE visual_jobs
SET status = 'pending', updated_at = $2
WHERE status = 'processing' AND updated_at < $1
`, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset stuck visual jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stuck visual jobs rows affected: %w", err)
	}
	return rows, nil
}

func scanVisualJob(row rowScanner) (*domain.VisualJob, error) {
	var j domain.VisualJob
	var status string
	var chunkID, elementType, docContext, enrichmentText, errMessage sql.NullString
	var pageNumber sql.NullInt64

	err := row.Scan(
		&j.ID, &j.DocumentID, &chunkID, &j.ImagePayload, &elementType,
		&docContext, &pageNumber, &status, &enrichmentText, &errMessage,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ChunkID = chunkID.String
	j.ElementType = elementType.String
	j.Context = docContext.String
	j.EnrichmentText = enrichmentText.String
	j.Error = errMessage.String
	j.PageNumber = int(pageNumber.Int64)
	j.Status = domain.JobStatus(status)
	return &j, nil
}
