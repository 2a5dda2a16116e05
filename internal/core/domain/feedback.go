package domain

import "time"

const (
	RatingNegative = 1
	RatingPositive = 5
)

// Feedback is a user's thumbs up or down on one answer.
type Feedback struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	FragmentIDs []string  `json:"fragment_ids,omitempty"`
	AvgScore    *float64  `json:"avg_score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type FeedbackStats struct {
	Total            int     `json:"total_feedbacks"`
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

// TenantSettings holds per-tenant answer customisation. An empty CustomPrompt
// keeps the built-in instructions.
type TenantSettings struct {
	TenantID     string    `json:"tenant_id"`
	CustomPrompt string    `json:"custom_prompt"`
	UpdatedAt    time.Time `json:"updated_at"`
}
