package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey = int64(2026101801)

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

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	fragment_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_hash ON documents(tenant_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS fragments (
	tenant_id TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	section_title TEXT NOT NULL DEFAULT '',
	page_number INTEGER NOT NULL DEFAULT 0,
	char_count INTEGER NOT NULL,
	word_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(document_id, chunk_index);

CREATE TABLE IF NOT EXISTS conversations (
	tenant_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, conversation_id)
);

CREATE TABLE IF NOT EXISTS conversation_messages (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_messages_recent
	ON conversation_messages(tenant_id, conversation_id, created_at DESC);

CREATE TABLE IF NOT EXISTS query_logs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	rewritten_query TEXT NOT NULL DEFAULT '',
	query_type TEXT NOT NULL,
	top_k INTEGER NOT NULL,
	source_count INTEGER NOT NULL,
	avg_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	has_answer BOOLEAN NOT NULL,
	response_time_ms BIGINT NOT NULL,
	cited_documents JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE query_logs ADD COLUMN IF NOT EXISTS cited_documents JSONB NOT NULL DEFAULT '[]'::jsonb;

CREATE INDEX IF NOT EXISTS idx_query_logs_tenant_created ON query_logs(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS feedbacks (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	rating SMALLINT NOT NULL CHECK (rating IN (1, 5)),
	comment TEXT,
	fragment_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	avg_score DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedbacks_tenant_created ON feedbacks(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tenant_settings (
	tenant_id TEXT PRIMARY KEY,
	custom_prompt TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates every table the service needs.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
