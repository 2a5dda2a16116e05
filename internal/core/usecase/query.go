package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

type QueryOptions struct {
	RewriteMaxTurns   int
	HistoryMessages   int
	ContextCharBudget int
	Weights           FusionWeights
	RRFK              int
}

// QueryDeps are the collaborators of QueryUseCase. Conversations, QueryLog,
// Citations, Tenants and Observer are optional.
type QueryDeps struct {
	Analyzer      *QueryAnalyzer
	Rewriter      *QueryRewriter
	Retriever     *HybridRetriever
	Generator     ports.AnswerGenerator
	Extractor     *CitationExtractor
	Conversations ports.ConversationStore
	QueryLog      ports.QueryLogStore
	Citations     ports.CitationRecorder
	Tenants       ports.TenantSettingsStore
	Observer      ports.RetrievalObserver
	Logger        *slog.Logger
}

type QueryUseCase struct {
	deps QueryDeps
	opts QueryOptions
	now  func() time.Time
}

func NewQueryUseCase(deps QueryDeps, opts QueryOptions) *QueryUseCase {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = NewQueryAnalyzer()
	}
	if deps.Extractor == nil {
		deps.Extractor = NewCitationExtractor(nil)
	}
	if opts.HistoryMessages <= 0 {
		opts.HistoryMessages = 10
	}
	if opts.Weights == (FusionWeights{}) {
		opts.Weights = DefaultFusionWeights()
	}
	return &QueryUseCase{deps: deps, opts: opts, now: time.Now}
}

// Search runs retrieval and ranking without generation.
func (uc *QueryUseCase) Search(ctx context.Context, tenantID, query string, topK int) ([]domain.RankedCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if topK <= 0 {
		analysis := uc.deps.Analyzer.Analyze(query)
		uc.observeAnalysis(analysis)
		topK = analysis.RecommendedK
	}
	candidates, err := uc.deps.Retriever.Search(ctx, tenantID, query, topK, uc.opts.Weights, uc.opts.RRFK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "retrieve fragments", err)
	}
	return candidates, nil
}

// Ask rewrites, retrieves, generates and marks which sources the answer cited.
func (uc *QueryUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	started := uc.now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}

	if err := uc.claimConversation(ctx, req); err != nil {
		return nil, err
	}
	history := uc.loadHistory(ctx, req)

	searchQuery := question
	if uc.deps.Rewriter != nil {
		var outcome string
		searchQuery, outcome = uc.deps.Rewriter.Rewrite(ctx, question, history, uc.opts.RewriteMaxTurns)
		if uc.deps.Observer != nil {
			uc.deps.Observer.ObserveRewrite(outcome)
		}
	}

	analysis := uc.deps.Analyzer.Analyze(searchQuery)
	uc.observeAnalysis(analysis)
	topK := req.TopK
	if topK <= 0 {
		topK = analysis.RecommendedK
	}
	uc.deps.Logger.Debug("query analyzed",
		"query_type", analysis.QueryType,
		"recommended_k", analysis.RecommendedK,
		"complexity", analysis.ComplexityScore,
		"top_k", topK,
	)

	candidates, err := uc.deps.Retriever.Search(ctx, req.TenantID, searchQuery, topK, uc.opts.Weights, uc.opts.RRFK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "retrieve fragments", err)
	}
	sources := fitContextBudget(candidates, uc.opts.ContextCharBudget)
	if len(sources) == 0 {
		uc.deps.Logger.Info("no fragments retrieved, generating without context", "tenant_id", req.TenantID)
	}

	generated, err := uc.deps.Generator.GenerateAnswer(ctx, domain.GenerationRequest{
		Question:     question,
		History:      history,
		Fragments:    sources,
		Instructions: uc.tenantInstructions(ctx, req.TenantID),
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "generate answer", err)
	}

	extraction := uc.deps.Extractor.Extract(generated.Answer)
	citations := MarkCited(sources, mergeCitations(extraction.CitedIndices, generated.Citations))
	hasAnswer := extraction.HasAnswer && generated.HasAnswer
	if uc.deps.Observer != nil {
		uc.deps.Observer.ObserveAnswer(hasAnswer, len(citations))
	}

	answer := &domain.Answer{
		Text:           generated.Answer,
		Sources:        sources,
		Citations:      citations,
		HasAnswer:      hasAnswer,
		ConversationID: req.ConversationID,
		RewrittenQuery: searchQuery,
		Analysis:       analysis,
	}
	uc.persist(ctx, req, answer, topK, uc.now().Sub(started))
	return answer, nil
}

// tenantInstructions returns the tenant's custom prompt, or "" for the built-in one.
func (uc *QueryUseCase) tenantInstructions(ctx context.Context, tenantID string) string {
	if uc.deps.Tenants == nil {
		return ""
	}
	settings, err := uc.deps.Tenants.GetTenantSettings(ctx, tenantID)
	if err != nil {
		uc.deps.Logger.Warn("load tenant settings failed, using default prompt", "tenant_id", tenantID, "error", err)
		return ""
	}
	return settings.CustomPrompt
}

// claimConversation rejects a conversation id owned by another user. Other store
// failures only cost the history and are logged.
func (uc *QueryUseCase) claimConversation(ctx context.Context, req domain.AskRequest) error {
	if uc.deps.Conversations == nil || req.ConversationID == "" {
		return nil
	}
	_, err := uc.deps.Conversations.EnsureConversation(ctx, req.TenantID, req.UserID, req.ConversationID)
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrConversationNotFound) {
		return err
	}
	uc.deps.Logger.Warn("ensure conversation failed", "conversation_id", req.ConversationID, "error", err)
	return nil
}

func (uc *QueryUseCase) loadHistory(ctx context.Context, req domain.AskRequest) []domain.ConversationTurn {
	if len(req.History) > 0 {
		return req.History
	}
	if uc.deps.Conversations == nil || req.ConversationID == "" {
		return nil
	}
	messages, err := uc.deps.Conversations.ListRecentMessages(ctx, req.TenantID, req.UserID, req.ConversationID, uc.opts.HistoryMessages)
	if err != nil {
		uc.deps.Logger.Warn("load conversation history failed", "conversation_id", req.ConversationID, "error", err)
		return nil
	}
	history := make([]domain.ConversationTurn, 0, len(messages))
	for _, m := range messages {
		history = append(history, domain.ConversationTurn{Role: m.Role, Content: m.Content})
	}
	return history
}

// persist stores the exchange and analytics. Failures are logged, the answer is
// already produced.
func (uc *QueryUseCase) persist(ctx context.Context, req domain.AskRequest, answer *domain.Answer, topK int, elapsed time.Duration) {
	logger := uc.deps.Logger
	if uc.deps.Conversations != nil {
		if answer.ConversationID == "" {
			answer.ConversationID = uuid.NewString()
		}
		if err := uc.appendExchange(ctx, req, answer); err != nil {
			logger.Error("persist conversation failed", "conversation_id", answer.ConversationID, "error", err)
		}
	}

	entry := buildQueryLog(req, answer, topK, elapsed)
	entry.CreatedAt = uc.now().UTC()
	if uc.deps.QueryLog != nil {
		if err := uc.deps.QueryLog.RecordQuery(ctx, entry); err != nil {
			logger.Warn("record query log failed", "error", err)
		}
	}
	if uc.deps.Citations != nil && len(answer.Citations) > 0 {
		if err := uc.deps.Citations.RecordCitations(ctx, entry, answer.Sources); err != nil {
			logger.Warn("record citations failed", "error", err)
		}
	}
	logger.Info("question answered",
		"tenant_id", req.TenantID,
		"query_type", answer.Analysis.QueryType,
		"sources", len(answer.Sources),
		"citations", len(answer.Citations),
		"has_answer", answer.HasAnswer,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (uc *QueryUseCase) appendExchange(ctx context.Context, req domain.AskRequest, answer *domain.Answer) error {
	if _, err := uc.deps.Conversations.EnsureConversation(ctx, req.TenantID, req.UserID, answer.ConversationID); err != nil {
		return err
	}
	now := uc.now().UTC()
	for i, turn := range []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: req.Question},
		{Role: domain.RoleAssistant, Content: answer.Text},
	} {
		err := uc.deps.Conversations.AppendMessage(ctx, domain.ConversationMessage{
			ID:             uuid.NewString(),
			TenantID:       req.TenantID,
			UserID:         req.UserID,
			ConversationID: answer.ConversationID,
			Role:           turn.Role,
			Content:        turn.Content,
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (uc *QueryUseCase) observeAnalysis(analysis domain.QueryAnalysis) {
	if uc.deps.Observer != nil {
		uc.deps.Observer.ObserveAnalysis(analysis)
	}
}

func buildQueryLog(req domain.AskRequest, answer *domain.Answer, topK int, elapsed time.Duration) domain.QueryLog {
	entry := domain.QueryLog{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: answer.ConversationID,
		Question:       req.Question,
		RewrittenQuery: answer.RewrittenQuery,
		QueryType:      answer.Analysis.QueryType,
		TopK:           topK,
		SourceCount:    len(answer.Sources),
		HasAnswer:      answer.HasAnswer,
		ResponseTime:   elapsed,
	}
	if len(answer.Sources) == 0 {
		return entry
	}
	seen := map[string]bool{}
	for _, s := range answer.Sources {
		if s.Cited && !seen[s.DocumentID] {
			seen[s.DocumentID] = true
			entry.CitedDocumentIDs = append(entry.CitedDocumentIDs, s.DocumentID)
		}
	}
	entry.MinScore, entry.MaxScore = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, s := range answer.Sources {
		score := s.Score()
		sum += score
		entry.MinScore = math.Min(entry.MinScore, score)
		entry.MaxScore = math.Max(entry.MaxScore, score)
	}
	entry.AvgScore = sum / float64(len(answer.Sources))
	return entry
}

func mergeCitations(lists ...[]int) []int {
	seen := map[int]struct{}{}
	out := make([]int, 0)
	for _, list := range lists {
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
