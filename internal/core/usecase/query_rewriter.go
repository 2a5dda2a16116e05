package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const (
	defaultRewriteMaxTurns = 3
	minRewriteRunes        = 6
)

const (
	RewriteSkippedNoHistory   = "no_history"
	RewriteSkippedStandalone  = "standalone"
	RewriteAccepted           = "accepted"
	RewriteCached             = "cached"
	RewriteRejected           = "rejected"
	RewriteFailed             = "failed"
	rewriteSystemPrompt       = "You rewrite follow-up questions into standalone questions. Answer with the rewritten question only, in the same language as the conversation."
	rewriteUserPromptTemplate = `Conversation:
%s

Follow-up question: %s

Rewrite the follow-up question so it can be understood without the conversation. Keep every name, number and detail it refers to.`
)

// FollowUpCues are the word lists that mark a question as depending on earlier turns.
type FollowUpCues struct {
	Pronouns      []string `yaml:"pronouns"`
	LeadingWords  []string `yaml:"leading_words"`
	BackReference []string `yaml:"back_reference"`
}

func DefaultFollowUpCues() FollowUpCues {
	return FollowUpCues{
		Pronouns: []string{
			"ele", "ela", "isso", "este", "esta", "esse", "essa", "aquele", "aquela",
			"it", "this", "that", "these", "those", "he", "she", "they", "them",
		},
		LeadingWords:  []string{"e", "and"},
		BackReference: []string{"também", "mesmo", "mesma", "aqui", "lá", "also", "same", "here", "there"},
	}
}

// QueryRewriter turns follow-up questions into standalone search queries.
// It never fails: any problem falls back to the original question.
type QueryRewriter struct {
	generator ports.AnswerGenerator
	cache     ports.RewriteCache
	logger    *slog.Logger

	pronouns      map[string]struct{}
	leadingWords  map[string]struct{}
	backReference map[string]struct{}
}

func NewQueryRewriter(generator ports.AnswerGenerator, cues FollowUpCues, logger *slog.Logger) *QueryRewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRewriter{
		generator:     generator,
		logger:        logger,
		pronouns:      wordSet(cues.Pronouns...),
		leadingWords:  wordSet(cues.LeadingWords...),
		backReference: wordSet(cues.BackReference...),
	}
}

// WithCache memoizes accepted rewrites.
func (r *QueryRewriter) WithCache(cache ports.RewriteCache) *QueryRewriter {
	r.cache = cache
	return r
}

// Rewrite returns the standalone query and the outcome label.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string, history []domain.ConversationTurn, maxTurns int) (string, string) {
	if len(history) == 0 {
		return query, RewriteSkippedNoHistory
	}
	if !r.IsFollowUp(query) {
		return query, RewriteSkippedStandalone
	}
	if maxTurns <= 0 {
		maxTurns = defaultRewriteMaxTurns
	}
	if limit := maxTurns * 2; len(history) > limit {
		history = history[len(history)-limit:]
	}
	transcript := renderTranscript(history)

	key := rewriteCacheKey(transcript, query)
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("rewrite cache get failed", "error", err)
		} else if ok {
			return cached, RewriteCached
		}
	}

	rewritten, err := r.generator.Complete(ctx, rewriteSystemPrompt, fmt.Sprintf(rewriteUserPromptTemplate, transcript, query))
	if err != nil {
		r.logger.Warn("query rewrite failed, using original query", "error", err)
		return query, RewriteFailed
	}
	rewritten = strings.TrimSpace(rewritten)
	if utf8.RuneCountInString(rewritten) < minRewriteRunes {
		r.logger.Debug("query rewrite rejected", "rewritten", rewritten)
		return query, RewriteRejected
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, rewritten); err != nil {
			r.logger.Warn("rewrite cache set failed", "error", err)
		}
	}
	r.logger.Debug("query rewritten", "original", query, "rewritten", rewritten)
	return rewritten, RewriteAccepted
}

// IsFollowUp reports whether query likely refers back to earlier turns.
func (r *QueryRewriter) IsFollowUp(query string) bool {
	if len(strings.Fields(query)) <= 5 {
		return true
	}
	tokens := words(query)
	if len(tokens) > 0 {
		if _, ok := r.leadingWords[tokens[0]]; ok {
			return true
		}
	}
	return containsAny(tokens, r.pronouns) || containsAny(tokens, r.backReference)
}

func renderTranscript(history []domain.ConversationTurn) string {
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Content)
	}
	return b.String()
}

func rewriteCacheKey(transcript, query string) string {
	sum := sha256.Sum256([]byte(transcript + "\x00" + query))
	return "rewrite:" + hex.EncodeToString(sum[:])
}
