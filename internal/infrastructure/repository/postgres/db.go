package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all pipeline tables. Bootstrap DDL is serialized
// across api/worker startups via an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB, embeddingDims int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	category TEXT,
	status TEXT NOT NULL,
	aggregated BOOLEAN NOT NULL DEFAULT FALSE,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	original_content TEXT,
	heading_hierarchy JSONB,
	span_start INT NOT NULL DEFAULT 0,
	span_end INT NOT NULL DEFAULT 0,
	kind TEXT NOT NULL DEFAULT 'text',
	image_ref TEXT,
	embedding_status TEXT NOT NULL,
	embedding vector(%d),
	semantic_summary TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document_status ON chunks(document_id, embedding_status);

CREATE TABLE IF NOT EXISTS visual_jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_id TEXT,
	image_payload TEXT NOT NULL,
	element_type TEXT,
	doc_context TEXT,
	page_number INT,
	status TEXT NOT NULL,
	enrichment_text TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visual_jobs_status ON visual_jobs(status);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	batch_index INT NOT NULL,
	status TEXT NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, batch_index)
);

CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs(status);
`, embeddingDims)

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
