package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelListResponse{
		Object: "list",
		Data: []modelObject{
			{
				ID:      rt.modelID,
				Object:  "model",
				OwnedBy: "company-rag",
				Created: time.Now().Unix(),
			},
		},
	})
}

// chatCompletions answers the last user message over the tenant's documents.
// Earlier user/assistant messages become the conversation history.
func (rt *Router) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messages are required"})
		return
	}
	if req.Stream != nil && *req.Stream {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "streaming is not supported"})
		return
	}

	index, question, ok := latestUserMessage(req.Messages)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one user message with text content is required"})
		return
	}

	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = rt.modelID
	}

	id := identityFromContext(r.Context())
	if user := strings.TrimSpace(req.User); user != "" {
		id.UserID = user
	}

	start := time.Now()
	answer, err := rt.querySvc.Ask(r.Context(), domain.AskRequest{
		TenantID: id.TenantID,
		UserID:   id.UserID,
		Question: question,
		History:  historyBefore(req.Messages, index, rt.contextMessages),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	rt.observeAnswer(r, "chat_completions", answer, time.Since(start))

	writeJSON(w, http.StatusOK, buildChatCompletionResponse(newCompletionID(), time.Now().Unix(), modelID, question, answer))
}
