package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, tenant_id, filename, mime_type, storage_path, content_hash, size_bytes, fragment_count, status, COALESCE(error_message, ''), created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, tenant_id, filename, mime_type, storage_path, content_hash, size_bytes, fragment_count, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.TenantID, doc.Filename, doc.MimeType, doc.StoragePath, doc.ContentHash, doc.SizeBytes,
		doc.FragmentCount, string(doc.Status), nullableString(doc.Error), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
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

// FindByContentHash returns the tenant's oldest document with identical bytes.
func (r *DocumentRepository) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE tenant_id = $1 AND content_hash = $2 AND status <> $3
ORDER BY created_at ASC
LIMIT 1
`, tenantID, contentHash, string(domain.StatusFailed))
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document by hash", fmt.Errorf("hash=%s", contentHash))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE tenant_id = $1
ORDER BY created_at DESC
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
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

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(result, "update document status", id)
}

func (r *DocumentRepository) SetFragmentCount(ctx context.Context, id string, count int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET fragment_count = $2, updated_at = $3
WHERE id = $1
`, id, count, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set fragment count: %w", err)
	}
	return requireAffected(result, "set fragment count", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(result, "delete document", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	if err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.ContentHash,
		&doc.SizeBytes, &doc.FragmentCount, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func requireAffected(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
