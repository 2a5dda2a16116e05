package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type generatorFake struct {
	mu             sync.Mutex
	completion     string
	completeErr    error
	completeCalls  int
	lastUserPrompt string

	answer           domain.GeneratedAnswer
	answerErr        error
	answerCalls      int
	lastSources      []domain.RankedCandidate
	lastHistory      []domain.ConversationTurn
	lastInstructions string
}

func (f *generatorFake) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.lastUserPrompt = userPrompt
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completion, nil
}

func (f *generatorFake) GenerateAnswer(_ context.Context, req domain.GenerationRequest) (domain.GeneratedAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	f.lastSources = req.Fragments
	f.lastHistory = req.History
	f.lastInstructions = req.Instructions
	if f.answerErr != nil {
		return domain.GeneratedAnswer{}, f.answerErr
	}
	return f.answer, nil
}

type embedderFake struct {
	vectors [][]float32
	err     error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type vectorFake struct {
	hits       []domain.RankedCandidate
	searchErr  error
	indexErr   error
	deleteErr  error
	lastLimit  int
	lastFilter domain.SearchFilter
	indexed    []domain.Fragment
	deleted    []string
}

func (f *vectorFake) IndexFragments(_ context.Context, fragments []domain.Fragment, _ [][]float32) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, fragments...)
	return nil
}

func (f *vectorFake) Search(ctx context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.RankedCandidate, error) {
	f.lastLimit = limit
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.RankedCandidate, len(f.hits))
	copy(out, f.hits)
	return out, nil
}

func (f *vectorFake) DeleteDocument(_ context.Context, _, documentID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

type lexicalFake struct {
	mu        sync.Mutex
	hits      []domain.RankedCandidate
	err       error
	lastTopK  int
	indexed   []domain.Fragment
	added     []domain.Fragment
	removed   []string
	searches  int
	lastQuery string
}

func (f *lexicalFake) Index(_ context.Context, fragments []domain.Fragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = fragments
	return nil
}

func (f *lexicalFake) Add(_ context.Context, fragments []domain.Fragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, fragments...)
	return nil
}

func (f *lexicalFake) Remove(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *lexicalFake) Search(_ context.Context, query string, topK int, _ string) ([]domain.RankedCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	f.lastTopK = topK
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *lexicalFake) Len() int { return len(f.indexed) + len(f.added) }

// encoderFake scores passages from a lookup table, defaulting to 0.
type encoderFake struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *encoderFake) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = f.scores[p]
	}
	return out, nil
}

type conversationFake struct {
	messages []domain.ConversationMessage
	listErr  error
	ensured  []string
	appended []domain.ConversationMessage
	// owners maps conversation id to the user that started it.
	owners    map[string]string
	listUsers []string
}

func (f *conversationFake) EnsureConversation(_ context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	if owner, ok := f.owners[conversationID]; ok && owner != userID {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "ensure conversation", fmt.Errorf("id=%s", conversationID))
	}
	f.ensured = append(f.ensured, conversationID)
	return &domain.Conversation{TenantID: tenantID, UserID: userID, ConversationID: conversationID}, nil
}

func (f *conversationFake) AppendMessage(_ context.Context, message domain.ConversationMessage) error {
	f.appended = append(f.appended, message)
	return nil
}

func (f *conversationFake) ListRecentMessages(_ context.Context, _, userID, _ string, limit int) ([]domain.ConversationMessage, error) {
	f.listUsers = append(f.listUsers, userID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

type queryLogFake struct {
	entries []domain.QueryLog
}

func (f *queryLogFake) RecordQuery(_ context.Context, entry domain.QueryLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type citationRecorderFake struct {
	cited []domain.RankedCandidate
	ranks []int
}

func (f *citationRecorderFake) RecordCitations(_ context.Context, _ domain.QueryLog, sources []domain.RankedCandidate) error {
	for i, s := range sources {
		if s.Cited {
			f.cited = append(f.cited, s)
			f.ranks = append(f.ranks, i+1)
		}
	}
	return nil
}

type feedbackStoreFake struct {
	saved     []domain.Feedback
	stats     domain.FeedbackStats
	lastSince time.Time
	err       error
}

func (f *feedbackStoreFake) SaveFeedback(_ context.Context, feedback domain.Feedback) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, feedback)
	return nil
}

func (f *feedbackStoreFake) FeedbackStats(_ context.Context, _ string, since time.Time) (domain.FeedbackStats, error) {
	f.lastSince = since
	return f.stats, f.err
}

type analyticsReaderFake struct {
	overview  domain.AnalyticsOverview
	perf      domain.PerformanceStats
	daily     []domain.DailyQueryCount
	top       []domain.TopDocument
	questions []domain.CommonQuestion
	lastSince time.Time
	lastLimit int
}

func (f *analyticsReaderFake) Overview(_ context.Context, _ string, since time.Time) (domain.AnalyticsOverview, error) {
	f.lastSince = since
	return f.overview, nil
}

func (f *analyticsReaderFake) QueriesPerDay(_ context.Context, _ string, since time.Time) ([]domain.DailyQueryCount, error) {
	f.lastSince = since
	return f.daily, nil
}

func (f *analyticsReaderFake) Performance(_ context.Context, _ string, since time.Time) (domain.PerformanceStats, error) {
	f.lastSince = since
	return f.perf, nil
}

func (f *analyticsReaderFake) TopDocuments(_ context.Context, _ string, since time.Time, limit int) ([]domain.TopDocument, error) {
	f.lastSince, f.lastLimit = since, limit
	return f.top, nil
}

func (f *analyticsReaderFake) CommonQuestions(_ context.Context, _ string, since time.Time, limit int) ([]domain.CommonQuestion, error) {
	f.lastSince, f.lastLimit = since, limit
	return f.questions, nil
}

type tenantSettingsFake struct {
	settings map[string]domain.TenantSettings
	saved    []domain.TenantSettings
	err      error
}

func (f *tenantSettingsFake) GetTenantSettings(_ context.Context, tenantID string) (domain.TenantSettings, error) {
	if f.err != nil {
		return domain.TenantSettings{}, f.err
	}
	settings, ok := f.settings[tenantID]
	if !ok {
		return domain.TenantSettings{TenantID: tenantID}, nil
	}
	return settings, nil
}

func (f *tenantSettingsFake) SaveTenantSettings(_ context.Context, settings domain.TenantSettings) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, settings)
	if f.settings == nil {
		f.settings = map[string]domain.TenantSettings{}
	}
	f.settings[settings.TenantID] = settings
	return nil
}

type observerFake struct {
	analyses []domain.QueryAnalysis
	rewrites []string
	stages   map[string]int
	answers  int
}

func (f *observerFake) ObserveAnalysis(a domain.QueryAnalysis) { f.analyses = append(f.analyses, a) }
func (f *observerFake) ObserveRewrite(outcome string)          { f.rewrites = append(f.rewrites, outcome) }
func (f *observerFake) ObserveRetrieval(stage string, count int) {
	if f.stages == nil {
		f.stages = map[string]int{}
	}
	f.stages[stage] = count
}
func (f *observerFake) ObserveAnswer(bool, int) { f.answers++ }

type rewriteCacheFake struct {
	values map[string]string
	sets   int
}

func (f *rewriteCacheFake) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *rewriteCacheFake) Set(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	f.sets++
	return nil
}

type documentRepoFake struct {
	docs          map[string]*domain.Document
	created       []*domain.Document
	statusCalls   []statusCall
	failStatusErr error
	fragmentCount map[string]int
	deleted       []string
}

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

func newDocumentRepoFake(docs ...*domain.Document) *documentRepoFake {
	f := &documentRepoFake{docs: map[string]*domain.Document{}, fragmentCount: map[string]int{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.created = append(f.created, doc)
	f.docs[doc.ID] = doc
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentRepoFake) FindByContentHash(_ context.Context, tenantID, contentHash string) (*domain.Document, error) {
	for _, d := range f.docs {
		if d.TenantID == tenantID && d.ContentHash == contentHash {
			return d, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "find by hash", io.EOF)
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	return nil
}

func (f *documentRepoFake) ListByTenant(_ context.Context, tenantID string) ([]domain.Document, error) {
	out := make([]domain.Document, 0, len(f.docs))
	for _, d := range f.docs {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *documentRepoFake) SetFragmentCount(_ context.Context, id string, count int) error {
	f.fragmentCount[id] = count
	return nil
}

func (f *documentRepoFake) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.docs, id)
	return nil
}

// fragmentRepoFake dedups by (tenant, content hash).
type fragmentRepoFake struct {
	stored  []domain.Fragment
	saveErr error
	deleted []string
}

func (f *fragmentRepoFake) SaveNew(_ context.Context, fragments []domain.Fragment) ([]domain.Fragment, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	seen := map[string]bool{}
	for _, s := range f.stored {
		seen[s.TenantID+"|"+s.ContentHash] = true
	}
	fresh := make([]domain.Fragment, 0, len(fragments))
	for _, fr := range fragments {
		key := fr.TenantID + "|" + fr.ContentHash
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, fr)
	}
	f.stored = append(f.stored, fresh...)
	return fresh, nil
}

func (f *fragmentRepoFake) ListAll(context.Context) ([]domain.Fragment, error) {
	return f.stored, nil
}

func (f *fragmentRepoFake) ListByDocument(_ context.Context, documentID string) ([]domain.Fragment, error) {
	out := make([]domain.Fragment, 0)
	for _, s := range f.stored {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fragmentRepoFake) DeleteByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	kept := f.stored[:0]
	for _, s := range f.stored {
		if s.DocumentID != documentID {
			kept = append(kept, s)
		}
	}
	f.stored = kept
	return nil
}

type storageFake struct {
	saved   map[string][]byte
	deleted []string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = b
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.saved[key])), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	published []string
	events    []domain.IndexEvent
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func (f *queueFake) PublishIndexEvent(_ context.Context, event domain.IndexEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *queueFake) SubscribeIndexEvents(context.Context, func(context.Context, domain.IndexEvent) error) error {
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	fragments []domain.Fragment
}

func (f *chunkerFake) Chunk(string) []domain.Fragment {
	out := make([]domain.Fragment, len(f.fragments))
	copy(out, f.fragments)
	return out
}
