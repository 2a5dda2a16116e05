package httpadapter

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
	User     string        `json:"user,omitempty"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type debugSource struct {
	Index        int     `json:"index"`
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	SectionTitle string  `json:"section_title,omitempty"`
	PageNumber   int     `json:"page_number,omitempty"`
	Score        float64 `json:"score"`
	Cited        bool    `json:"cited"`
}

type debugInfo struct {
	Mode           string        `json:"mode"`
	RewrittenQuery string        `json:"rewritten_query,omitempty"`
	HasAnswer      bool          `json:"has_answer"`
	Sources        []debugSource `json:"sources,omitempty"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *usage                 `json:"usage,omitempty"`
	Debug   *debugInfo             `json:"debug,omitempty"`
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
