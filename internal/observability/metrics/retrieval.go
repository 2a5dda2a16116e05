package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const namespace = "rag"

// RetrievalMetrics records heuristic outcomes of the query pipeline.
type RetrievalMetrics struct {
	service string

	queryTypeTotal  *prometheus.CounterVec
	complexity      *prometheus.HistogramVec
	rewriteTotal    *prometheus.CounterVec
	stageCandidates *prometheus.HistogramVec
	answersTotal    *prometheus.CounterVec
	citations       *prometheus.HistogramVec
	breakerOpen     *prometheus.GaugeVec
}

func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	queryTypeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "query_type_total",
			Help:      "Analyzed queries by detected type.",
		},
		[]string{"service", "query_type", "recommended_k"},
	)
	complexity := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "query_complexity",
			Help:      "Distribution of query complexity scores.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	rewriteTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "rewrite_total",
			Help:      "Query rewrite outcomes.",
		},
		[]string{"service", "outcome"},
	)
	stageCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_candidates",
			Help:      "Candidates produced by each retrieval stage.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "stage"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "total",
			Help:      "Generated answers by abstention flag.",
		},
		[]string{"service", "has_answer"},
	)
	citations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "citations",
			Help:      "Distribution of citations per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)

	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of a collaborator call is open.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(queryTypeTotal, complexity, rewriteTotal, stageCandidates, answersTotal, citations, breakerOpen)

	return &RetrievalMetrics{
		service:         service,
		queryTypeTotal:  queryTypeTotal,
		complexity:      complexity,
		rewriteTotal:    rewriteTotal,
		stageCandidates: stageCandidates,
		answersTotal:    answersTotal,
		citations:       citations,
		breakerOpen:     breakerOpen,
	}
}

func (m *RetrievalMetrics) ObserveAnalysis(analysis domain.QueryAnalysis) {
	queryType := string(analysis.QueryType)
	if queryType == "" {
		queryType = "unknown"
	}
	m.queryTypeTotal.WithLabelValues(m.service, queryType, strconv.Itoa(analysis.RecommendedK)).Inc()
	m.complexity.WithLabelValues(m.service).Observe(analysis.ComplexityScore)
}

func (m *RetrievalMetrics) ObserveRewrite(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.rewriteTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *RetrievalMetrics) ObserveRetrieval(stage string, count int) {
	if count < 0 {
		return
	}
	m.stageCandidates.WithLabelValues(m.service, stage).Observe(float64(count))
}

func (m *RetrievalMetrics) ObserveAnswer(hasAnswer bool, citations int) {
	m.answersTotal.WithLabelValues(m.service, strconv.FormatBool(hasAnswer)).Inc()
	m.citations.WithLabelValues(m.service).Observe(float64(citations))
}

// ObserveBreakerState matches resilience.Config.OnBreakerStateChange.
func (m *RetrievalMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(open)
}
