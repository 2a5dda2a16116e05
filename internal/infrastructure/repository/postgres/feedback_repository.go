package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) SaveFeedback(ctx context.Context, feedback domain.Feedback) error {
	fragments, err := jsonList(feedback.FragmentIDs)
	if err != nil {
		return fmt.Errorf("encode feedback fragments: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO feedbacks (id, tenant_id, user_id, question, answer, rating, comment, fragment_ids, avg_score, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		feedback.ID, feedback.TenantID, feedback.UserID, feedback.Question, feedback.Answer, feedback.Rating,
		nullableString(feedback.Comment), fragments, feedback.AvgScore, feedback.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) FeedbackStats(ctx context.Context, tenantID string, since time.Time) (domain.FeedbackStats, error) {
	var stats domain.FeedbackStats
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE rating = $3),
	COUNT(*) FILTER (WHERE rating = $4)
FROM feedbacks
WHERE tenant_id = $1 AND created_at >= $2
`, tenantID, since, domain.RatingPositive, domain.RatingNegative).Scan(&stats.Total, &stats.Positive, &stats.Negative)
	if err != nil {
		return domain.FeedbackStats{}, fmt.Errorf("feedback stats: %w", err)
	}
	return stats, nil
}
