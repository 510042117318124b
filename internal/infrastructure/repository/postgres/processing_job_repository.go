package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
)

type ProcessingJobRepository struct {
	db *sql.DB
}

func NewProcessingJobRepository(db *sql.DB) *ProcessingJobRepository {
	return &ProcessingJobRepository{db: db}
}

const processingJobColumns = `id, document_id, batch_index, status, retry_count, error_message, created_at, updated_at`

func (r *ProcessingJobRepository) CreateBatch(ctx context.Context, jobs []domain.ProcessingJob) error {
	if len(jobs) == 0 {
		return nil
	}
	const query = `
INSERT INTO processing_jobs (` + processingJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (document_id, batch_index) DO NOTHING
`
	for _, j := range jobs {
		_, err := r.db.ExecContext(ctx, query,
			j.ID, j.DocumentID, j.BatchIndex, string(j.Status), j.RetryCount,
			nullIfEmpty(j.Error), j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert processing job %s: %w", j.ID, err)
		}
	}
	return nil
}

// NextPending returns exactly one pending job, ordered by document then
// batch index so batches of one document run in sequence. Nil means the
// queue is drained.
func (r *ProcessingJobRepository) NextPending(ctx context.Context) (*domain.ProcessingJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+processingJobColumns+`
FROM processing_jobs
WHERE status = 'pending'
ORDER BY document_id, batch_index
LIMIT 1
`)

	job, err := scanProcessingJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

func (r *ProcessingJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update processing job status: %w", err)
	}
	return nil
}

func (r *ProcessingJobRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]domain.ProcessingJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, `
SELECT `+processingJobColumns+`
FROM processing_jobs
WHERE status = 'processing' AND updated_at < $1
ORDER BY updated_at
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck processing jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProcessingJob, 0)
	for rows.Next() {
		job, err := scanProcessingJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan processing job: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing jobs: %w", err)
	}
	return out, nil
}

// IncrementRetry bumps retry_count and moves the job to the given status in
// one statement, so a crashed sweep cannot double-count.
func (r *ProcessingJobRepository) IncrementRetry(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET retry_count = retry_count + 1, status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment job retry: %w", err)
	}
	return nil
}

// ResetForHealing gives terminally-failed jobs one more full attempt cycle:
// back to pending with retry_count zeroed and the error cleared.
func (r *ProcessingJobRepository) ResetForHealing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, `
UPDATE processing_jobs
SET status = 'pending', retry_count = 0, error_message = '', updated_at = $2
WHERE status = 'failed' AND updated_at < $1
`, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset failed jobs for healing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset failed jobs rows affected: %w", err)
	}
	return rows, nil
}

// ListDocumentsAllComplete returns ids of documents whose batches are all
// complete but whose document row has not been aggregated yet.
func (r *ProcessingJobRepository) ListDocumentsAllComplete(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT j.document_id
FROM processing_jobs j
JOIN documents d ON d.id = j.document_id
WHERE d.aggregated = FALSE AND d.status NOT IN ('ready', 'failed')
GROUP BY j.document_id
HAVING COUNT(*) FILTER (WHERE j.status <> 'completed') = 0
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list aggregation candidates: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregation candidate: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregation candidates: %w", err)
	}
	return out, nil
}

func (r *ProcessingJobRepository) CountByDocument(ctx context.Context, documentID string) (int, int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
FROM processing_jobs
WHERE document_id = $1
`, documentID)

	var total, completed int
	if err := row.Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("count processing jobs: %w", err)
	}
	return total, completed, nil
}

func scanProcessingJob(row rowScanner) (*domain.ProcessingJob, error) {
	var j domain.ProcessingJob
	var status string
	var errMessage sql.NullString

	err := row.Scan(
		&j.ID, &j.DocumentID, &j.BatchIndex, &status, &j.RetryCount,
		&errMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Error = errMessage.String
	j.Status = domain.JobStatus(status)
	return &j, nil
}
