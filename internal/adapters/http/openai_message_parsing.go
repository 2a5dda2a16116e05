package httpadapter

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// latestUserMessage returns the index and text of the last user message with content.
func latestUserMessage(messages []chatMessage) (int, string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != roleUser {
			continue
		}
		if text := extractMessageText(messages[i]); text != "" {
			return i, text, true
		}
	}
	return -1, "", false
}

// historyBefore converts the user/assistant turns preceding index into
// conversation history, keeping at most limit turns.
func historyBefore(messages []chatMessage, index, limit int) []domain.ConversationTurn {
	if index <= 0 || limit <= 0 {
		return nil
	}
	turns := make([]domain.ConversationTurn, 0, index)
	for _, msg := range messages[:index] {
		if msg.Role != roleUser && msg.Role != roleAssistant {
			continue
		}
		text := extractMessageText(msg)
		if text == "" {
			continue
		}
		turns = append(turns, domain.ConversationTurn{Role: msg.Role, Content: text})
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

func extractMessageText(message chatMessage) string {
	if message.Content == nil {
		return ""
	}

	switch content := message.Content.(type) {
	case string:
		return strings.TrimSpace(content)
	case []interface{}:
		parts := make([]string, 0, len(content))
		for _, item := range content {
			switch typed := item.(type) {
			case string:
				if segment := strings.TrimSpace(typed); segment != "" {
					parts = append(parts, segment)
				}
			case map[string]interface{}:
				if text, ok := typed["text"].(string); ok {
					if segment := strings.TrimSpace(text); segment != "" {
						parts = append(parts, segment)
					}
				}
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	default:
		payload, err := json.Marshal(content)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(payload))
	}
}
