package ports

import (
	"context"
	"io"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload and removal.
type DocumentIngestor interface {
	Upload(ctx context.Context, tenantID, filename, mimeType string, body io.Reader) (*domain.Document, error)
	Delete(ctx context.Context, tenantID, documentID string) error
}

// QueryService answers questions over a tenant's fragments.
type QueryService interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)
	Search(ctx context.Context, tenantID, query string, topK int) ([]domain.RankedCandidate, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	List(ctx context.Context, tenantID string) ([]domain.Document, error)
}

// FeedbackService records and summarises answer ratings.
type FeedbackService interface {
	Submit(ctx context.Context, feedback domain.Feedback) (*domain.Feedback, error)
	Stats(ctx context.Context, tenantID string) (domain.FeedbackStats, error)
}

// AnalyticsService reports usage over the last days days.
type AnalyticsService interface {
	Overview(ctx context.Context, tenantID string, days int) (domain.AnalyticsOverview, error)
	QueriesPerDay(ctx context.Context, tenantID string, days int) ([]domain.DailyQueryCount, error)
	Satisfaction(ctx context.Context, tenantID string, days int) (domain.FeedbackStats, error)
	Performance(ctx context.Context, tenantID string, days int) (domain.PerformanceStats, error)
	TopDocuments(ctx context.Context, tenantID string, days, limit int) ([]domain.TopDocument, error)
	CommonQuestions(ctx context.Context, tenantID string, days, limit int) ([]domain.CommonQuestion, error)
}

// TenantSettingsService reads and replaces a tenant's settings.
type TenantSettingsService interface {
	Get(ctx context.Context, tenantID string) (domain.TenantSettings, error)
	Update(ctx context.Context, settings domain.TenantSettings) (domain.TenantSettings, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
