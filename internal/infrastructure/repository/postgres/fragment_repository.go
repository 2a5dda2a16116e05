package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// FragmentRepository keys fragments by (tenant_id, content_hash), so the same
// text indexed twice for one tenant is stored once.
type FragmentRepository struct {
	db *sql.DB
}

func NewFragmentRepository(db *sql.DB) *FragmentRepository {
	return &FragmentRepository{db: db}
}

const fragmentColumns = `tenant_id, content_hash, document_id, filename, chunk_index, text, section_title, page_number, char_count, word_count`

func (r *FragmentRepository) SaveNew(ctx context.Context, fragments []domain.Fragment) ([]domain.Fragment, error) {
	if len(fragments) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fragments tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	fresh := make([]domain.Fragment, 0, len(fragments))
	for _, f := range fragments {
		result, err := tx.ExecContext(ctx, `
INSERT INTO fragments (`+fragmentColumns+`, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (tenant_id, content_hash) DO NOTHING
`, f.TenantID, f.ContentHash, f.DocumentID, f.Filename, f.ChunkIndex, f.Text, f.SectionTitle,
			f.PageNumber, f.CharCount, f.WordCount, now)
		if err != nil {
			return nil, fmt.Errorf("insert fragment %d: %w", f.ChunkIndex, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert fragment rows affected: %w", err)
		}
		if affected > 0 {
			fresh = append(fresh, f)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit fragments tx: %w", err)
	}
	return fresh, nil
}

func (r *FragmentRepository) ListAll(ctx context.Context) ([]domain.Fragment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fragmentColumns+`
FROM fragments
ORDER BY document_id, chunk_index
`)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	return collectFragments(rows)
}

func (r *FragmentRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Fragment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fragmentColumns+`
FROM fragments
WHERE document_id = $1
ORDER BY chunk_index
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document fragments: %w", err)
	}
	return collectFragments(rows)
}

func (r *FragmentRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete fragments: %w", err)
	}
	return nil
}

func collectFragments(rows *sql.Rows) ([]domain.Fragment, error) {
	defer rows.Close()
	out := make([]domain.Fragment, 0)
	for rows.Next() {
		var f domain.Fragment
		if err := rows.Scan(
			&f.TenantID, &f.ContentHash, &f.DocumentID, &f.Filename, &f.ChunkIndex, &f.Text,
			&f.SectionTitle, &f.PageNumber, &f.CharCount, &f.WordCount,
		); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}
	return out, nil
}
