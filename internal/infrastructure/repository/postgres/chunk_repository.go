package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/vgrishin/docingest/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const chunkColumns = `id, document_id, chunk_index, content, original_content, heading_hierarchy, span_start, span_end, kind, image_ref, embedding_status, embedding, semantic_summary, error_message, created_at, updated_at`

// UpsertBatch writes chunk rows idempotently, keyed on (document_id,
// chunk_index) so a re-run of the chunking stage overwrites instead of
// duplicating.
func (r *ChunkRepository) UpsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
INSERT INTO chunks (` + chunkColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (document_id, chunk_index) DO UPDATE SET
	content = EXCLUDED.content,
	original_content = EXCLUDED.original_content,
	heading_hierarchy = EXCLUDED.heading_hierarchy,
	span_start = EXCLUDED.span_start,
	span_end = EXCLUDED.span_end,
	kind = EXCLUDED.kind,
	image_ref = EXCLUDED.image_ref,
	embedding_status = EXCLUDED.embedding_status,
	semantic_summary = EXCLUDED.semantic_summary,
	updated_at = EXCLUDED.updated_at
`
	for _, c := range chunks {
		headingsJSON, err := json.Marshal(c.Headings)
		if err != nil {
			return fmt.Errorf("marshal heading hierarchy: %w", err)
		}
		var embedding any
		if len(c.Embedding) > 0 {
			embedding = pgvector.NewVector(c.Embedding)
		}
		_, err = tx.ExecContext(ctx, query,
			c.ID, c.DocumentID, c.Index, c.Content, nullIfEmpty(c.OriginalContent),
			headingsJSON, c.SpanStart, c.SpanEnd, string(c.Kind), nullIfEmpty(c.ImageRef),
			string(c.EmbeddingStatus), embedding, nullIfEmpty(c.SemanticSummary),
			nullIfEmpty(c.Error), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk upsert tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE id = $1
`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return chunk, nil
}

// ListByStatus returns chunks in the given embedding status; documentID may
// be empty to scan across documents.
func (r *ChunkRepository) ListByStatus(ctx context.Context, documentID string, status domain.EmbeddingStatus, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if documentID == "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE embedding_status = $1
ORDER BY document_id, chunk_index
LIMIT $2
`, string(status), limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE document_id = $1 AND embedding_status = $2
ORDER BY chunk_index
LIMIT $3
`, documentID, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list chunks by status: %w", err)
	}
	return collectChunks(rows)
}

// ListWithPlaceholder finds legacy chunks of a document whose text still
// contains the given enrichment placeholder token.
func (r *ChunkRepository) ListWithPlaceholder(ctx context.Context, documentID, token string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE document_id = $1 AND content LIKE '%' || $2 || '%'
ORDER BY chunk_index
`, documentID, token)
	if err != nil {
		return nil, fmt.Errorf("list chunks with placeholder: %w", err)
	}
	return collectChunks(rows)
}

// UpdateStatus moves a chunk's embedding status forward. Terminal rows are
// excluded in SQL so a racing worker cannot regress ready or failed.
func (r *ChunkRepository) UpdateStatus(ctx context.Context, id string, status domain.EmbeddingStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET embedding_status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND embedding_status NOT IN ('ready', 'failed')
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update chunk status: %w", err)
	}
	return nil
}

// SetEmbedding stores a validated vector and marks the chunk ready in one
// statement, so a ready chunk always has its embedding present.
func (r *ChunkRepository) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET embedding = $2, embedding_status = 'ready', error_message = '', updated_at = $3
WHERE id = $1 AND embedding_status = 'processing'
`, id, pgvector.NewVector(embedding), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set chunk embedding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set chunk embedding rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrTransition, "set chunk embedding", fmt.Errorf("chunk %s not in processing", id))
	}
	return nil
}

// ReplaceContent rewrites a chunk after visual enrichment, preserving the
// pre-enrichment text and re-queueing the chunk for embedding.
func (r *ChunkRepository) ReplaceContent(ctx context.Context, id, content, originalContent string, status domain.EmbeddingStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET content = $2, original_content = $3, embedding_status = $4, updated_at = $5
WHERE id = $1
`, id, content, nullIfEmpty(originalContent), string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace chunk content: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace chunk content rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrChunkNotFound, "replace chunk content", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE embedding_status = 'ready')
FROM chunks
WHERE document_id = $1
`, documentID)

	var total, ready int
	if err := row.Scan(&total, &ready); err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return total, ready, nil
}

// FindOrphanedChunks surfaces chunks still containing an enrichment
// placeholder whose visual job row is gone or already finished. The chunk
// content keeps the job id inside the placeholder token, so a left join on
// the embedded id is enough.
func (r *ChunkRepository) FindOrphanedChunks(ctx context.Context) ([]domain.OrphanedChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, COALESCE(j.id, ''), COALESCE(j.status, '')
FROM chunks c
LEFT JOIN visual_jobs j ON j.chunk_id = c.id
WHERE c.content LIKE '%[VISUAL_ENRICHMENT_PENDING:%'
  AND (j.id IS NULL OR j.status IN ('completed', 'failed'))
`)
	if err != nil {
		return nil, fmt.Errorf("find orphaned chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OrphanedChunk, 0)
	for rows.Next() {
		var oc domain.OrphanedChunk
		if err := rows.Scan(&oc.ChunkID, &oc.DocumentID, &oc.JobID, &oc.JobStatus); err != nil {
			return nil, fmt.Errorf("scan orphaned chunk: %w", err)
		}
		out = append(out, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphaned chunks: %w", err)
	}
	return out, nil
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var kind, status string
	var originalContent, imageRef, semanticSummary, errMessage sql.NullString
	var headingsRaw []byte
	var embedding sql.Null[pgvector.Vector]

	err := row.Scan(
		&c.ID, &c.DocumentID, &c.Index, &c.Content, &originalContent,
		&headingsRaw, &c.SpanStart, &c.SpanEnd, &kind, &imageRef,
		&status, &embedding, &semanticSummary, &errMessage, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headingsRaw) > 0 {
		if err := json.Unmarshal(headingsRaw, &c.Headings); err != nil {
			return nil, fmt.Errorf("unmarshal heading hierarchy: %w", err)
		}
	}
	c.OriginalContent = originalContent.String
	c.ImageRef = imageRef.String
	c.SemanticSummary = semanticSummary.String
	c.Error = errMessage.String
	c.Kind = domain.ChunkKind(kind)
	c.EmbeddingStatus = domain.EmbeddingStatus(status)
	if embedding.Valid {
		c.Embedding = embedding.V.Slice()
	}
	return &c, nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	defer rows.Close()

	out := make([]domain.Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
