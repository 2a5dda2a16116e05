package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ConversationMessage struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
