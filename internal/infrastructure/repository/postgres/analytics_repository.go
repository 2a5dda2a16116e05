package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// AnalyticsRepository aggregates query_logs for the analytics endpoints.
type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Overview leaves the feedback fields zero.
func (r *AnalyticsRepository) Overview(ctx context.Context, tenantID string, since time.Time) (domain.AnalyticsOverview, error) {
	var out domain.AnalyticsOverview
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(AVG(response_time_ms), 0),
	COALESCE(AVG(CASE WHEN has_answer THEN 100.0 ELSE 0 END), 0)
FROM query_logs
WHERE tenant_id = $1 AND created_at >= $2
`, tenantID, since).Scan(&out.TotalQueries, &out.AvgResponseTimeMS, &out.AnsweredRate)
	if err != nil {
		return domain.AnalyticsOverview{}, fmt.Errorf("query log overview: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(fragment_count), 0)
FROM documents
WHERE tenant_id = $1
`, tenantID).Scan(&out.TotalDocuments, &out.TotalFragments)
	if err != nil {
		return domain.AnalyticsOverview{}, fmt.Errorf("document overview: %w", err)
	}
	return out, nil
}

// QueriesPerDay buckets by UTC day; days without questions are absent.
func (r *AnalyticsRepository) QueriesPerDay(ctx context.Context, tenantID string, since time.Time) ([]domain.DailyQueryCount, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
FROM query_logs
WHERE tenant_id = $1 AND created_at >= $2
GROUP BY day
ORDER BY day
`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("queries per day: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DailyQueryCount, 0)
	for rows.Next() {
		var c domain.DailyQueryCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return out, nil
}

// Performance averages scores only over questions that retrieved something.
func (r *AnalyticsRepository) Performance(ctx context.Context, tenantID string, since time.Time) (domain.PerformanceStats, error) {
	var out domain.PerformanceStats
	err := r.db.QueryRowContext(ctx, `
SELECT
	COALESCE(AVG(response_time_ms), 0),
	COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY response_time_ms), 0),
	COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY response_time_ms), 0),
	COALESCE(AVG(source_count), 0),
	COALESCE(AVG(avg_score) FILTER (WHERE source_count > 0), 0)
FROM query_logs
WHERE tenant_id = $1 AND created_at >= $2
`, tenantID, since).Scan(
		&out.AvgResponseTimeMS,
		&out.P50ResponseTimeMS,
		&out.P95ResponseTimeMS,
		&out.AvgSourcesRetrieved,
		&out.AvgScore,
	)
	if err != nil {
		return domain.PerformanceStats{}, fmt.Errorf("query performance: %w", err)
	}
	return out, nil
}

// TopDocuments ranks still-existing documents by how many answers cited them.
func (r *AnalyticsRepository) TopDocuments(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.TopDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT d.id, d.filename, COUNT(*) AS times_cited
FROM query_logs q
CROSS JOIN LATERAL jsonb_array_elements_text(q.cited_documents) AS c(document_id)
JOIN documents d ON d.id = c.document_id AND d.tenant_id = q.tenant_id
WHERE q.tenant_id = $1 AND q.created_at >= $2
GROUP BY d.id, d.filename
ORDER BY times_cited DESC, d.filename
LIMIT $3
`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TopDocument, 0, limit)
	for rows.Next() {
		var d domain.TopDocument
		if err := rows.Scan(&d.DocumentID, &d.Filename, &d.TimesCited); err != nil {
			return nil, fmt.Errorf("scan top document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top documents: %w", err)
	}
	return out, nil
}

// CommonQuestions groups questions case-insensitively, ignoring surrounding space.
func (r *AnalyticsRepository) CommonQuestions(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.CommonQuestion, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT lower(btrim(question)) AS normalized, COUNT(*) AS asked
FROM query_logs
WHERE tenant_id = $1 AND created_at >= $2
GROUP BY normalized
ORDER BY asked DESC, normalized
LIMIT $3
`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("common questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CommonQuestion, 0, limit)
	for rows.Next() {
		var q domain.CommonQuestion
		if err := rows.Scan(&q.Question, &q.Count); err != nil {
			return nil, fmt.Errorf("scan common question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate common questions: %w", err)
	}
	return out, nil
}
