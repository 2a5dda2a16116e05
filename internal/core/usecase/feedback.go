package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const maxFeedbackComment = 2000

// FeedbackUseCase records thumbs up/down ratings on answers.
type FeedbackUseCase struct {
	store  ports.FeedbackStore
	logger *slog.Logger
	now    func() time.Time
}

func NewFeedbackUseCase(store ports.FeedbackStore, logger *slog.Logger) *FeedbackUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackUseCase{store: store, logger: logger, now: time.Now}
}

// Submit validates and stores a rating. Only RatingNegative and RatingPositive
// are accepted.
func (uc *FeedbackUseCase) Submit(ctx context.Context, feedback domain.Feedback) (*domain.Feedback, error) {
	feedback.Question = strings.TrimSpace(feedback.Question)
	feedback.Answer = strings.TrimSpace(feedback.Answer)
	feedback.Comment = strings.TrimSpace(feedback.Comment)
	switch {
	case feedback.Rating != domain.RatingNegative && feedback.Rating != domain.RatingPositive:
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback",
			fmt.Errorf("rating must be %d (negative) or %d (positive)", domain.RatingNegative, domain.RatingPositive))
	case feedback.Question == "" || feedback.Answer == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", fmt.Errorf("question and answer are required"))
	case utf8.RuneCountInString(feedback.Comment) > maxFeedbackComment:
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", fmt.Errorf("comment exceeds %d characters", maxFeedbackComment))
	}

	feedback.ID = uuid.NewString()
	feedback.CreatedAt = uc.now().UTC()
	if err := uc.store.SaveFeedback(ctx, feedback); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	uc.logger.Info("feedback recorded", "tenant_id", feedback.TenantID, "rating", feedback.Rating)
	return &feedback, nil
}

// Stats counts every rating the tenant has given.
func (uc *FeedbackUseCase) Stats(ctx context.Context, tenantID string) (domain.FeedbackStats, error) {
	stats, err := uc.store.FeedbackStats(ctx, tenantID, time.Time{})
	if err != nil {
		return domain.FeedbackStats{}, fmt.Errorf("feedback stats: %w", err)
	}
	stats.SatisfactionRate = roundTo(satisfactionRate(stats), 2)
	return stats, nil
}

// satisfactionRate is the percentage of positive ratings; zero without ratings.
func satisfactionRate(stats domain.FeedbackStats) float64 {
	if stats.Total <= 0 {
		return 0
	}
	return float64(stats.Positive) * 100 / float64(stats.Total)
}
