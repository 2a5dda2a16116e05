package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

func history(n int) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, 0, n)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		out = append(out, domain.ConversationTurn{Role: role, Content: "turn " + string(rune('a'+i))})
	}
	return out
}

func TestRewriterEmptyHistoryReturnsInputWithoutCall(t *testing.T) {
	gen := &generatorFake{completion: "should not be used"}
	r := NewQueryRewriter(gen, DefaultFollowUpCues(), nil)

	got, outcome := r.Rewrite(context.Background(), "e o prazo?", nil, 3)
	if got != "e o prazo?" || outcome != RewriteSkippedNoHistory {
		t.Fatalf("unexpected rewrite %q (%s)", got, outcome)
	}
	if gen.completeCalls != 0 {
		t.Fatalf("expected zero generator calls, got %d", gen.completeCalls)
	}
}

func TestRewriterStandaloneQuestionSkipsModel(t *testing.T) {
	gen := &generatorFake{completion: "rewritten question"}
	r := NewQueryRewriter(gen, DefaultFollowUpCues(), nil)

	q := "Qual é o prazo para solicitar reembolso de despesas de viagem nacionais?"
	got, outcome := r.Rewrite(context.Background(), q, history(2), 3)
	if got != q || outcome != RewriteSkippedStandalone {
		t.Fatalf("unexpected rewrite %q (%s)", got, outcome)
	}
	if gen.completeCalls != 0 {
		t.Fatalf("expected zero generator calls, got %d", gen.completeCalls)
	}
}

func TestRewriterFollowUpUsesRecentTurns(t *testing.T) {
	gen := &generatorFake{completion: "  Qual é o prazo de reembolso de viagens internacionais?  "}
	r := NewQueryRewriter(gen, DefaultFollowUpCues(), nil)

	got, outcome := r.Rewrite(context.Background(), "e para viagens internacionais?", history(10), 2)
	if got != "Qual é o prazo de reembolso de viagens internacionais?" || outcome != RewriteAccepted {
		t.Fatalf("unexpected rewrite %q (%s)", got, outcome)
	}
	if gen.completeCalls != 1 {
		t.Fatalf("expected one generator call, got %d", gen.completeCalls)
	}
	// maxTurns=2 keeps the last four messages.
	if strings.Contains(gen.lastUserPrompt, "turn f") || !strings.Contains(gen.lastUserPrompt, "turn g") {
		t.Fatalf("unexpected transcript window: %s", gen.lastUserPrompt)
	}
	if !strings.Contains(gen.lastUserPrompt, "USER: turn g") || !strings.Contains(gen.lastUserPrompt, "ASSISTANT: turn j") {
		t.Fatalf("expected role-labelled transcript: %s", gen.lastUserPrompt)
	}
}

func TestRewriterFallsBack(t *testing.T) {
	cases := []struct {
		name    string
		gen     *generatorFake
		outcome string
	}{
		{name: "error", gen: &generatorFake{completeErr: errors.New("model down")}, outcome: RewriteFailed},
		{name: "too short", gen: &generatorFake{completion: " ok? "}, outcome: RewriteRejected},
		{name: "empty", gen: &generatorFake{completion: ""}, outcome: RewriteRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewQueryRewriter(tc.gen, DefaultFollowUpCues(), nil)
			got, outcome := r.Rewrite(context.Background(), "e isso?", history(2), 3)
			if got != "e isso?" || outcome != tc.outcome {
				t.Fatalf("expected fallback to original, got %q (%s)", got, outcome)
			}
		})
	}
}

func TestRewriterCachesAcceptedRewrites(t *testing.T) {
	gen := &generatorFake{completion: "Qual o prazo de férias?"}
	cache := &rewriteCacheFake{}
	r := NewQueryRewriter(gen, DefaultFollowUpCues(), nil).WithCache(cache)

	first, _ := r.Rewrite(context.Background(), "e o prazo?", history(2), 3)
	second, outcome := r.Rewrite(context.Background(), "e o prazo?", history(2), 3)
	if first != second || outcome != RewriteCached {
		t.Fatalf("expected cached rewrite, got %q (%s)", second, outcome)
	}
	if gen.completeCalls != 1 || cache.sets != 1 {
		t.Fatalf("expected one model call and one cache set, got %d/%d", gen.completeCalls, cache.sets)
	}
}

func TestIsFollowUp(t *testing.T) {
	r := NewQueryRewriter(&generatorFake{}, DefaultFollowUpCues(), nil)
	cases := map[string]bool{
		"e o prazo?": true,
		"E quanto tempo leva para aprovar o pedido de férias anual?":             true,
		"Quanto tempo leva para aprovar isso depois que o gestor assinar?":       true,
		"A mesma regra vale para os estagiários contratados neste semestre?":     true,
		"Quanto tempo leva para aprovar o pedido de férias anual?":               false,
		"How long does the approval of the annual vacation request usually take": false,
		"Does that rule apply to interns hired during the current semester":      true,
	}
	for q, want := range cases {
		if got := r.IsFollowUp(q); got != want {
			t.Fatalf("IsFollowUp(%q) = %v, want %v", q, got, want)
		}
	}
}
