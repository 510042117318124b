package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vgrishin/docingest/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, name, mime_type, storage_path, category, status, aggregated, error_message, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.Name, doc.MimeType, doc.StoragePath, doc.Category,
		string(doc.Status), doc.Aggregated, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// UpdateStatus advances a document's status. The transition table is
// enforced in the WHERE clause so concurrent workers cannot regress a row
// that already moved forward. Returns whether the row transitioned; an
// already-target or terminal row is a no-op, not an error.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status <> $2 AND status NOT IN ('ready', 'failed')
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update document status rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *DocumentRepository) MarkAggregated(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET aggregated = TRUE, updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document aggregated: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1
ORDER BY created_at
LIMIT $2
`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	return collectDocuments(rows)
}

// ListIntermediate returns documents that are neither ready nor failed,
// the candidates for the reconciliation sweep.
func (r *DocumentRepository) ListIntermediate(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status NOT IN ('ready', 'failed')
ORDER BY created_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list intermediate documents: %w", err)
	}
	return collectDocuments(rows)
}

// ListStuckIngested finds documents whose batch splitting never started.
func (r *DocumentRepository) ListStuckIngested(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = 'ingested' AND updated_at < $1
ORDER BY updated_at
LIMIT $2
`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck ingested documents: %w", err)
	}
	return collectDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var category, errMessage sql.NullString

	err := row.Scan(
		&doc.ID, &doc.Name, &doc.MimeType, &doc.StoragePath, &category,
		&status, &doc.Aggregated, &errMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Category = category.String
	doc.Error = errMessage.String
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
