package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const (
	defaultAnalyticsDays  = 30
	maxAnalyticsDays      = 365
	defaultAnalyticsLimit = 10
	maxAnalyticsLimit     = 50
)

// AnalyticsUseCase reports usage from the query log and feedback store over a
// window of the last N days.
type AnalyticsUseCase struct {
	reader   ports.AnalyticsReader
	feedback ports.FeedbackStore
	now      func() time.Time
}

func NewAnalyticsUseCase(reader ports.AnalyticsReader, feedback ports.FeedbackStore) *AnalyticsUseCase {
	return &AnalyticsUseCase{reader: reader, feedback: feedback, now: time.Now}
}

func (uc *AnalyticsUseCase) Overview(ctx context.Context, tenantID string, days int) (domain.AnalyticsOverview, error) {
	since, err := uc.since(days)
	if err != nil {
		return domain.AnalyticsOverview{}, err
	}
	overview, err := uc.reader.Overview(ctx, tenantID, since)
	if err != nil {
		return domain.AnalyticsOverview{}, fmt.Errorf("analytics overview: %w", err)
	}
	stats, err := uc.feedback.FeedbackStats(ctx, tenantID, since)
	if err != nil {
		return domain.AnalyticsOverview{}, fmt.Errorf("analytics feedback: %w", err)
	}
	overview.TotalFeedbacks = stats.Total
	overview.SatisfactionRate = roundTo(satisfactionRate(stats), 1)
	overview.AvgResponseTimeMS = roundTo(overview.AvgResponseTimeMS, 1)
	overview.AnsweredRate = roundTo(overview.AnsweredRate, 1)
	return overview, nil
}

func (uc *AnalyticsUseCase) QueriesPerDay(ctx context.Context, tenantID string, days int) ([]domain.DailyQueryCount, error) {
	since, err := uc.since(days)
	if err != nil {
		return nil, err
	}
	counts, err := uc.reader.QueriesPerDay(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("analytics queries: %w", err)
	}
	if counts == nil {
		counts = []domain.DailyQueryCount{}
	}
	return counts, nil
}

func (uc *AnalyticsUseCase) Satisfaction(ctx context.Context, tenantID string, days int) (domain.FeedbackStats, error) {
	since, err := uc.since(days)
	if err != nil {
		return domain.FeedbackStats{}, err
	}
	stats, err := uc.feedback.FeedbackStats(ctx, tenantID, since)
	if err != nil {
		return domain.FeedbackStats{}, fmt.Errorf("analytics satisfaction: %w", err)
	}
	stats.SatisfactionRate = roundTo(satisfactionRate(stats), 1)
	return stats, nil
}

func (uc *AnalyticsUseCase) Performance(ctx context.Context, tenantID string, days int) (domain.PerformanceStats, error) {
	since, err := uc.since(days)
	if err != nil {
		return domain.PerformanceStats{}, err
	}
	perf, err := uc.reader.Performance(ctx, tenantID, since)
	if err != nil {
		return domain.PerformanceStats{}, fmt.Errorf("analytics performance: %w", err)
	}
	perf.AvgResponseTimeMS = roundTo(perf.AvgResponseTimeMS, 1)
	perf.P50ResponseTimeMS = roundTo(perf.P50ResponseTimeMS, 1)
	perf.P95ResponseTimeMS = roundTo(perf.P95ResponseTimeMS, 1)
	perf.AvgSourcesRetrieved = roundTo(perf.AvgSourcesRetrieved, 1)
	perf.AvgScore = roundTo(perf.AvgScore, 3)
	return perf, nil
}

func (uc *AnalyticsUseCase) TopDocuments(ctx context.Context, tenantID string, days, limit int) ([]domain.TopDocument, error) {
	since, err := uc.since(days)
	if err != nil {
		return nil, err
	}
	limit, err = analyticsLimit(limit)
	if err != nil {
		return nil, err
	}
	docs, err := uc.reader.TopDocuments(ctx, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics top documents: %w", err)
	}
	if docs == nil {
		docs = []domain.TopDocument{}
	}
	return docs, nil
}

func (uc *AnalyticsUseCase) CommonQuestions(ctx context.Context, tenantID string, days, limit int) ([]domain.CommonQuestion, error) {
	since, err := uc.since(days)
	if err != nil {
		return nil, err
	}
	limit, err = analyticsLimit(limit)
	if err != nil {
		return nil, err
	}
	questions, err := uc.reader.CommonQuestions(ctx, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics common questions: %w", err)
	}
	if questions == nil {
		questions = []domain.CommonQuestion{}
	}
	return questions, nil
}

// since converts a window in days (0 means the default) to its UTC start.
func (uc *AnalyticsUseCase) since(days int) (time.Time, error) {
	if days == 0 {
		days = defaultAnalyticsDays
	}
	if days < 1 || days > maxAnalyticsDays {
		return time.Time{}, domain.WrapError(domain.ErrInvalidInput, "analytics window",
			fmt.Errorf("days must be between 1 and %d", maxAnalyticsDays))
	}
	return uc.now().UTC().AddDate(0, 0, -days), nil
}

func analyticsLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultAnalyticsLimit, nil
	}
	if limit < 1 || limit > maxAnalyticsLimit {
		return 0, domain.WrapError(domain.ErrInvalidInput, "analytics limit",
			fmt.Errorf("limit must be between 1 and %d", maxAnalyticsLimit))
	}
	return limit, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
