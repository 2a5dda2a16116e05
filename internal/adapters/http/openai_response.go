package httpadapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
}

func buildChatCompletionResponse(completionID string, created int64, modelID, promptText string, answer *domain.Answer) chatCompletionResponse {
	return chatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   modelID,
		Choices: []chatCompletionChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    roleAssistant,
					Content: answer.Text,
				},
				FinishReason: "stop",
			},
		},
		Usage: estimateUsage(promptText, answer.Text),
		Debug: &debugInfo{
			Mode:           "rag",
			RewrittenQuery: answer.RewrittenQuery,
			HasAnswer:      answer.HasAnswer,
			Sources:        toDebugSources(answer.Sources),
		},
	}
}

// estimateUsage counts whitespace-separated words; the model's tokenizer is not available here.
func estimateUsage(prompt string, completion string) *usage {
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(completion))
	return &usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

func toDebugSources(sources []domain.RankedCandidate) []debugSource {
	out := make([]debugSource, 0, len(sources))
	for i, s := range sources {
		out = append(out, debugSource{
			Index:        i + 1,
			DocumentID:   s.DocumentID,
			Filename:     s.Filename,
			SectionTitle: s.SectionTitle,
			PageNumber:   s.PageNumber,
			Score:        s.Score(),
			Cited:        s.Cited,
		})
	}
	return out
}
