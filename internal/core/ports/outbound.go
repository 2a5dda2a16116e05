package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByContentHash(ctx context.Context, tenantID, contentHash string) (*domain.Document, error)
	// ListByTenant returns the tenant's documents, newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetFragmentCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) error
}

// FragmentRepository persists fragments and suppresses exact duplicates per tenant.
type FragmentRepository interface {
	// SaveNew stores fragments whose content hash is not yet known for the tenant
	// and returns only those.
	SaveNew(ctx context.Context, fragments []domain.Fragment) ([]domain.Fragment, error)
	ListAll(ctx context.Context) ([]domain.Fragment, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.Fragment, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion and index events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexEvent(ctx context.Context, event domain.IndexEvent) error
	SubscribeIndexEvents(ctx context.Context, handler func(context.Context, domain.IndexEvent) error) error
}

// TextExtractor extracts plain text from a stored document. Paged formats
// emit <<<PAGE_N>>> markers before each page.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits extracted text into fragments. TenantID and DocumentID are left empty.
type Chunker interface {
	Chunk(text string) []domain.Fragment
}

// LexicalIndex is a keyword ranking index over fragment text.
type LexicalIndex interface {
	Index(ctx context.Context, fragments []domain.Fragment) error
	Add(ctx context.Context, fragments []domain.Fragment) error
	Remove(ctx context.Context, documentID string) error
	Search(ctx context.Context, query string, topK int, tenantID string) ([]domain.RankedCandidate, error)
	Len() int
}

// Embedder builds vectors for fragments and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes fragments and performs tenant-filtered similarity search.
type VectorStore interface {
	IndexFragments(ctx context.Context, fragments []domain.Fragment, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RankedCandidate, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}

// CrossEncoder scores (query, passage) pairs jointly. Scores are returned in passage order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// AnswerGenerator is the language model.
type AnswerGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateAnswer(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedAnswer, error)
}

// ConversationStore persists conversation messages. Conversations belong to the
// user who started them; EnsureConversation fails with
// domain.ErrConversationNotFound for any other user.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, tenantID, userID, conversationID string, limit int) ([]domain.ConversationMessage, error)
}

// QueryLogStore records answered questions.
type QueryLogStore interface {
	RecordQuery(ctx context.Context, entry domain.QueryLog) error
}

// FeedbackStore persists answer ratings.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, feedback domain.Feedback) error
	// FeedbackStats counts ratings created at or after since; a zero since
	// counts all of them. SatisfactionRate is left to the caller.
	FeedbackStats(ctx context.Context, tenantID string, since time.Time) (domain.FeedbackStats, error)
}

// AnalyticsReader aggregates query logs created at or after since.
type AnalyticsReader interface {
	Overview(ctx context.Context, tenantID string, since time.Time) (domain.AnalyticsOverview, error)
	QueriesPerDay(ctx context.Context, tenantID string, since time.Time) ([]domain.DailyQueryCount, error)
	Performance(ctx context.Context, tenantID string, since time.Time) (domain.PerformanceStats, error)
	TopDocuments(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.TopDocument, error)
	CommonQuestions(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.CommonQuestion, error)
}

// TenantSettingsStore persists per-tenant settings. A tenant without a row gets
// zero settings, not an error.
type TenantSettingsStore interface {
	GetTenantSettings(ctx context.Context, tenantID string) (domain.TenantSettings, error)
	SaveTenantSettings(ctx context.Context, settings domain.TenantSettings) error
}

// RewriteCache memoizes standalone rewrites of follow-up questions.
type RewriteCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CitationRecorder stores which fragments an answer cited. sources is the full
// numbered source list; only entries marked Cited are recorded, each under its
// 1-based position so the rank matches the [n] marker in the answer.
type CitationRecorder interface {
	RecordCitations(ctx context.Context, entry domain.QueryLog, sources []domain.RankedCandidate) error
}

// ProcessingObserver receives the fragment counts of each processed document.
type ProcessingObserver interface {
	ObserveProcessed(result domain.ProcessResult)
}

// RetrievalObserver receives heuristic outcomes for monitoring.
type RetrievalObserver interface {
	ObserveAnalysis(analysis domain.QueryAnalysis)
	ObserveRewrite(outcome string)
	ObserveRetrieval(stage string, count int)
	ObserveAnswer(hasAnswer bool, citations int)
}
