package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type queryHarness struct {
	vectors       *vectorFake
	generator     *generatorFake
	conversations *conversationFake
	queryLog      *queryLogFake
	citations     *citationRecorderFake
	tenants       *tenantSettingsFake
	observer      *observerFake
	uc            *QueryUseCase
}

func newQueryHarness(hits ...domain.RankedCandidate) *queryHarness {
	h := &queryHarness{
		vectors:       &vectorFake{hits: hits},
		generator:     &generatorFake{},
		conversations: &conversationFake{},
		queryLog:      &queryLogFake{},
		citations:     &citationRecorderFake{},
		tenants:       &tenantSettingsFake{settings: map[string]domain.TenantSettings{}},
		observer:      &observerFake{},
	}
	retriever := NewHybridRetriever(&embedderFake{}, h.vectors, nil, nil, RetrievalOptions{}, h.observer, nil)
	h.uc = NewQueryUseCase(QueryDeps{
		Rewriter:      NewQueryRewriter(h.generator, DefaultFollowUpCues(), nil),
		Retriever:     retriever,
		Generator:     h.generator,
		Conversations: h.conversations,
		QueryLog:      h.queryLog,
		Citations:     h.citations,
		Tenants:       h.tenants,
		Observer:      h.observer,
	}, QueryOptions{RewriteMaxTurns: 3, HistoryMessages: 10})
	return h
}

func TestAskMarksCitedSources(t *testing.T) {
	h := newQueryHarness(
		vectorHit("d1", 0, "Férias: 30 dias corridos.", 0.9),
		vectorHit("d1", 1, "O pedido deve ser feito com 30 dias de antecedência.", 0.8),
		vectorHit("d2", 0, "Horário de trabalho das 9h às 18h.", 0.4),
	)
	h.generator.answer = domain.GeneratedAnswer{
		Answer:    "São 30 dias corridos [1], solicitados com antecedência [2] [5].",
		Citations: []int{1},
		HasAnswer: true,
	}

	answer, err := h.uc.Ask(context.Background(), domain.AskRequest{
		TenantID: "acme",
		UserID:   "u1",
		Question: "Quantos dias de férias eu tenho por ano na empresa?",
		TopK:     3,
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(answer.Sources))
	}
	if len(answer.Citations) != 2 || answer.Citations[0] != 1 || answer.Citations[1] != 2 {
		t.Fatalf("unexpected citations: %v", answer.Citations)
	}
	if !answer.Sources[0].Cited || !answer.Sources[1].Cited || answer.Sources[2].Cited {
		t.Fatalf("unexpected cited flags: %v %v %v", answer.Sources[0].Cited, answer.Sources[1].Cited, answer.Sources[2].Cited)
	}
	if !answer.HasAnswer {
		t.Fatalf("expected has_answer=true")
	}
	if h.vectors.lastLimit != 3 || h.vectors.lastFilter.TenantID != "acme" {
		t.Fatalf("unexpected retrieval call: limit=%d filter=%+v", h.vectors.lastLimit, h.vectors.lastFilter)
	}
	if answer.ConversationID == "" {
		t.Fatalf("expected a conversation id to be assigned")
	}
	if len(h.conversations.appended) != 2 ||
		h.conversations.appended[0].Role != domain.RoleUser ||
		h.conversations.appended[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected persisted exchange: %+v", h.conversations.appended)
	}
	if len(h.queryLog.entries) != 1 {
		t.Fatalf("expected one query log entry, got %d", len(h.queryLog.entries))
	}
	entry := h.queryLog.entries[0]
	if entry.SourceCount != 3 || entry.MaxScore != 0.9 || entry.MinScore != 0.4 || !entry.HasAnswer {
		t.Fatalf("unexpected query log entry: %+v", entry)
	}
	if len(entry.CitedDocumentIDs) != 1 || entry.CitedDocumentIDs[0] != "d1" {
		t.Fatalf("expected cited documents [d1], got %v", entry.CitedDocumentIDs)
	}
	if len(h.citations.cited) != 2 || h.citations.ranks[0] != 1 || h.citations.ranks[1] != 2 {
		t.Fatalf("expected sources [1] and [2] recorded, got %d ranks=%v", len(h.citations.cited), h.citations.ranks)
	}
	if h.observer.answers != 1 || len(h.observer.rewrites) != 1 || h.observer.rewrites[0] != RewriteSkippedNoHistory {
		t.Fatalf("unexpected observations: %+v", h.observer)
	}
}

func TestAskPassesTenantInstructions(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "Férias: 30 dias corridos.", 0.9))
	h.tenants.settings["acme"] = domain.TenantSettings{TenantID: "acme", CustomPrompt: "Responda como a equipe de RH da Acme."}
	h.generator.answer = domain.GeneratedAnswer{Answer: "São 30 dias [1].", HasAnswer: true}

	if _, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Quantos dias de férias?"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if h.generator.lastInstructions != "Responda como a equipe de RH da Acme." {
		t.Fatalf("unexpected instructions %q", h.generator.lastInstructions)
	}

	h.tenants.err = errors.New("postgres down")
	if _, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Quantos dias de férias?"}); err != nil {
		t.Fatalf("settings failure must not fail the question: %v", err)
	}
	if h.generator.lastInstructions != "" {
		t.Fatalf("expected default instructions after settings failure, got %q", h.generator.lastInstructions)
	}
}

func TestAskAbstentionClearsHasAnswer(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "Política de reembolso.", 0.5))
	h.generator.answer = domain.GeneratedAnswer{
		Answer:    "Não encontrei essa informação nos documentos.",
		HasAnswer: true,
	}

	answer, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Qual é a política de home office da empresa?"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.HasAnswer {
		t.Fatalf("expected abstention to clear has_answer")
	}
	if len(h.citations.cited) != 0 {
		t.Fatalf("no citations expected")
	}
}

func TestAskRewritesFollowUpWithStoredHistory(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "Prazo de reembolso: 15 dias.", 0.7))
	h.conversations.messages = []domain.ConversationMessage{
		{Role: domain.RoleUser, Content: "Como funciona o reembolso de despesas?"},
		{Role: domain.RoleAssistant, Content: "Envie as notas pelo portal [1]."},
	}
	h.generator.completion = "Qual é o prazo do reembolso de despesas?"
	h.generator.answer = domain.GeneratedAnswer{Answer: "O prazo é de 15 dias [1].", HasAnswer: true}

	answer, err := h.uc.Ask(context.Background(), domain.AskRequest{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Question:       "e o prazo?",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer.RewrittenQuery != "Qual é o prazo do reembolso de despesas?" {
		t.Fatalf("unexpected rewritten query %q", answer.RewrittenQuery)
	}
	if answer.ConversationID != "conv-1" {
		t.Fatalf("conversation id must be preserved, got %q", answer.ConversationID)
	}
	if len(h.generator.lastHistory) != 2 {
		t.Fatalf("expected stored history passed to the generator, got %d turns", len(h.generator.lastHistory))
	}
	if h.observer.rewrites[0] != RewriteAccepted {
		t.Fatalf("unexpected rewrite outcome %q", h.observer.rewrites[0])
	}
}

func TestAskRejectsAnotherUsersConversation(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "Prazo de reembolso: 15 dias.", 0.7))
	h.conversations.owners = map[string]string{"conv-1": "alice"}
	h.conversations.messages = []domain.ConversationMessage{
		{Role: domain.RoleUser, UserID: "alice", Content: "Qual é o meu salário?"},
	}
	h.generator.answer = domain.GeneratedAnswer{Answer: "ok [1]", HasAnswer: true}

	_, err := h.uc.Ask(context.Background(), domain.AskRequest{
		TenantID:       "acme",
		UserID:         "bob",
		ConversationID: "conv-1",
		Question:       "e o prazo?",
	})
	if !domain.IsKind(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected conversation not found, got %v", err)
	}
	if len(h.conversations.listUsers) != 0 || h.generator.answerCalls != 0 || h.generator.completeCalls != 0 {
		t.Fatalf("foreign history must not reach the model")
	}
	if len(h.conversations.appended) != 0 || len(h.queryLog.entries) != 0 {
		t.Fatalf("nothing may be persisted for a rejected conversation")
	}
}

func TestAskLoadsHistoryForRequestingUser(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "texto", 0.7))
	h.conversations.owners = map[string]string{"conv-1": "alice"}
	h.generator.answer = domain.GeneratedAnswer{Answer: "ok [1]", HasAnswer: true}

	_, err := h.uc.Ask(context.Background(), domain.AskRequest{
		TenantID:       "acme",
		UserID:         "alice",
		ConversationID: "conv-1",
		Question:       "Qual o horário de trabalho?",
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(h.conversations.listUsers) != 1 || h.conversations.listUsers[0] != "alice" {
		t.Fatalf("history must be scoped to the requesting user, got %v", h.conversations.listUsers)
	}
}

func TestAskRequestHistoryTakesPrecedence(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "texto", 0.7))
	h.conversations.listErr = errors.New("must not be called")
	h.generator.completion = "pergunta reescrita completa"
	h.generator.answer = domain.GeneratedAnswer{Answer: "ok [1]", HasAnswer: true}

	_, err := h.uc.Ask(context.Background(), domain.AskRequest{
		TenantID:       "acme",
		ConversationID: "conv-1",
		Question:       "e isso?",
		History:        []domain.ConversationTurn{{Role: domain.RoleUser, Content: "primeira pergunta"}},
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(h.generator.lastHistory) != 1 {
		t.Fatalf("expected request history, got %d turns", len(h.generator.lastHistory))
	}
}

func TestAskErrorKinds(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		h := newQueryHarness()
		_, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "   "})
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
	t.Run("retrieval failure", func(t *testing.T) {
		h := newQueryHarness()
		h.vectors.searchErr = errors.New("qdrant unavailable")
		_, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Qual o horário de trabalho?"})
		if !domain.IsKind(err, domain.ErrRetrieval) {
			t.Fatalf("expected retrieval error, got %v", err)
		}
		if h.generator.answerCalls != 0 {
			t.Fatalf("generator must not run after retrieval failure")
		}
	})
	t.Run("generation failure", func(t *testing.T) {
		h := newQueryHarness(vectorHit("d1", 0, "texto", 0.7))
		h.generator.answerErr = errors.New("ollama timeout")
		_, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Qual o horário de trabalho?"})
		if !domain.IsKind(err, domain.ErrGeneration) {
			t.Fatalf("expected generation error, got %v", err)
		}
		if len(h.queryLog.entries) != 0 {
			t.Fatalf("failed questions must not be logged")
		}
	})
}

func TestAskRespectsContextBudget(t *testing.T) {
	h := newQueryHarness(
		vectorHit("d1", 0, "aaaaaaaaaa", 0.9),
		vectorHit("d1", 1, "bbbbbbbbbb", 0.8),
		vectorHit("d1", 2, "cccccccccc", 0.7),
	)
	h.uc.opts.ContextCharBudget = 25
	h.generator.answer = domain.GeneratedAnswer{Answer: "resposta [1]", HasAnswer: true}

	answer, err := h.uc.Ask(context.Background(), domain.AskRequest{TenantID: "acme", Question: "Qual o conteúdo dos blocos?", TopK: 3})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(answer.Sources) != 2 || len(h.generator.lastSources) != 2 {
		t.Fatalf("expected budget to keep 2 sources, got %d", len(answer.Sources))
	}
}

func TestSearchUsesRecommendedK(t *testing.T) {
	h := newQueryHarness(vectorHit("d1", 0, "texto", 0.7))
	query := "Como solicitar acesso ao sistema de ponto?"
	want := NewQueryAnalyzer().Analyze(query).RecommendedK

	got, err := h.uc.Search(context.Background(), "acme", query, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || h.vectors.lastLimit != want {
		t.Fatalf("expected limit %d, got %d", want, h.vectors.lastLimit)
	}

	if _, err := h.uc.Search(context.Background(), "acme", "", 3); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty query, got %v", err)
	}
}
