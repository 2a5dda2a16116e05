package domain

// AnalyticsOverview summarises a tenant's usage over a time window.
type AnalyticsOverview struct {
	TotalQueries      int     `json:"total_queries"`
	TotalFeedbacks    int     `json:"total_feedbacks"`
	SatisfactionRate  float64 `json:"satisfaction_rate"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
	AnsweredRate      float64 `json:"answered_rate"`
	TotalDocuments    int     `json:"total_documents"`
	TotalFragments    int     `json:"total_fragments"`
}

type DailyQueryCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type PerformanceStats struct {
	AvgResponseTimeMS   float64 `json:"avg_response_time_ms"`
	P50ResponseTimeMS   float64 `json:"p50_response_time_ms"`
	P95ResponseTimeMS   float64 `json:"p95_response_time_ms"`
	AvgSourcesRetrieved float64 `json:"avg_sources_retrieved"`
	AvgScore            float64 `json:"avg_score"`
}

// TopDocument counts how many answers cited a document.
type TopDocument struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	TimesCited int    `json:"times_cited"`
}

type CommonQuestion struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}
