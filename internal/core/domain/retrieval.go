package domain

import "time"

type CandidateSource string

const (
	SourceVector  CandidateSource = "vector"
	SourceLexical CandidateSource = "lexical"
	SourceHybrid  CandidateSource = "hybrid"
)

type SearchFilter struct {
	TenantID string
}

// RankedCandidate is a fragment scored for one query. It never outlives the request.
type RankedCandidate struct {
	Fragment
	PointID      string          `json:"point_id,omitempty"`
	VectorScore  *float64        `json:"vector_score,omitempty"`
	LexicalScore *float64        `json:"lexical_score,omitempty"`
	FusedScore   float64         `json:"fused_score"`
	RerankScore  *float64        `json:"rerank_score,omitempty"`
	Source       CandidateSource `json:"source"`
	Cited        bool            `json:"cited"`
}

// Score returns the most specific score the candidate carries.
func (c RankedCandidate) Score() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.FusedScore
}

type QueryType string

const (
	QueryTypeSimple     QueryType = "simple"
	QueryTypeComplex    QueryType = "complex"
	QueryTypeProcedural QueryType = "procedural"
	QueryTypeGeneral    QueryType = "general"
)

type QueryAnalysis struct {
	QueryType       QueryType `json:"query_type"`
	RecommendedK    int       `json:"recommended_k"`
	ComplexityScore float64   `json:"complexity_score"`
}

type AnswerExtraction struct {
	CitedIndices []int `json:"cited_indices"`
	HasAnswer    bool  `json:"has_answer"`
}

// GeneratedAnswer is the structured output of the language model.
type GeneratedAnswer struct {
	Answer    string `json:"answer"`
	Citations []int  `json:"citations"`
	HasAnswer bool   `json:"has_answer"`
}

// GenerationRequest is everything the language model sees for one answer.
type GenerationRequest struct {
	Question  string
	History   []ConversationTurn
	Fragments []RankedCandidate
	// Instructions replace the built-in answering instructions when set. The
	// output format contract is always kept.
	Instructions string
}

type AskRequest struct {
	TenantID       string
	UserID         string
	ConversationID string
	Question       string
	// History, when set, is used instead of the stored conversation.
	History []ConversationTurn
	// TopK <= 0 means "use the analyzer's recommendation".
	TopK int
}

type Answer struct {
	Text           string            `json:"text"`
	Sources        []RankedCandidate `json:"sources"`
	Citations      []int             `json:"citations"`
	HasAnswer      bool              `json:"has_answer"`
	ConversationID string            `json:"conversation_id,omitempty"`
	RewrittenQuery string            `json:"rewritten_query"`
	Analysis       QueryAnalysis     `json:"analysis"`
}

// QueryLog is one answered question, kept for analytics.
type QueryLog struct {
	ID             string
	TenantID       string
	UserID         string
	ConversationID string
	Question       string
	RewrittenQuery string
	QueryType      QueryType
	TopK           int
	SourceCount    int
	AvgScore       float64
	MinScore       float64
	MaxScore       float64
	HasAnswer      bool
	ResponseTime   time.Duration
	// CitedDocumentIDs lists each cited document once, in source order.
	CitedDocumentIDs []string
	CreatedAt        time.Time
}
