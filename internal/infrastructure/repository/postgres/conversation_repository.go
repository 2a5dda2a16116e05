package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureConversation creates the conversation or touches it when userID already
// owns it. A conversation owned by another user is reported as not found.
func (r *ConversationRepository) EnsureConversation(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
INSERT INTO conversations (tenant_id, conversation_id, user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (tenant_id, conversation_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
WHERE conversations.user_id = EXCLUDED.user_id
RETURNING tenant_id, conversation_id, user_id, created_at, updated_at
`, tenantID, conversationID, userID, now)

	var conv domain.Conversation
	if err := row.Scan(
		&conv.TenantID,
		&conv.ConversationID,
		&conv.UserID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrConversationNotFound, "ensure conversation", fmt.Errorf("id=%s", conversationID))
		}
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, message domain.ConversationMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_messages (id, tenant_id, conversation_id, user_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, message.ID, message.TenantID, message.ConversationID, message.UserID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListRecentMessages returns at most limit messages of userID's conversation in
// chronological order.
func (r *ConversationRepository) ListRecentMessages(ctx context.Context, tenantID, userID, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, conversation_id, user_id, role, content, created_at
FROM conversation_messages
WHERE tenant_id = $1 AND conversation_id = $2 AND user_id = $3
ORDER BY created_at DESC
LIMIT $4
`, tenantID, conversationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationMessage, 0, limit)
	for rows.Next() {
		var msg domain.ConversationMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TenantID,
			&msg.ConversationID,
			&msg.UserID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
