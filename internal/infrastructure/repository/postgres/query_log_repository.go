package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) RecordQuery(ctx context.Context, entry domain.QueryLog) error {
	cited, err := jsonList(entry.CitedDocumentIDs)
	if err != nil {
		return fmt.Errorf("encode cited documents: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_logs (
	id, tenant_id, user_id, conversation_id, question, rewritten_query, query_type, top_k, source_count,
	avg_score, min_score, max_score, has_answer, response_time_ms, cited_documents, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		entry.ID, entry.TenantID, entry.UserID, entry.ConversationID, entry.Question, entry.RewrittenQuery,
		string(entry.QueryType), entry.TopK, entry.SourceCount, entry.AvgScore, entry.MinScore, entry.MaxScore,
		entry.HasAnswer, entry.ResponseTime.Milliseconds(), cited, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// jsonList encodes ids as a JSON array; nil becomes [].
func jsonList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
