package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

func TestRetrievalMetricsSharesHTTPRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	retrieval := NewRetrievalMetrics("api", httpMetrics.Registry())

	retrieval.ObserveAnalysis(domain.QueryAnalysis{QueryType: domain.QueryTypeProcedural, RecommendedK: 5, ComplexityScore: 0.4})
	retrieval.ObserveRewrite("accepted")
	retrieval.ObserveRewrite("accepted")
	retrieval.ObserveRetrieval("fused", 12)
	retrieval.ObserveAnswer(false, 0)

	if got := testutil.ToFloat64(retrieval.rewriteTotal.WithLabelValues("api", "accepted")); got != 2 {
		t.Fatalf("expected 2 accepted rewrites, got %v", got)
	}
	if got := testutil.ToFloat64(retrieval.queryTypeTotal.WithLabelValues("api", "procedural", "5")); got != 1 {
		t.Fatalf("expected one procedural query, got %v", got)
	}
	if got := testutil.ToFloat64(retrieval.answersTotal.WithLabelValues("api", "false")); got != 1 {
		t.Fatalf("expected one abstention, got %v", got)
	}

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "rag_retrieval_rewrite_total") {
		t.Fatalf("expected retrieval metrics on the shared endpoint")
	}
}

func TestObserveBreakerState(t *testing.T) {
	retrieval := NewRetrievalMetrics("api", NewHTTPServerMetrics("api").Registry())

	retrieval.ObserveBreakerState("qdrant.search", "open")
	if got := testutil.ToFloat64(retrieval.breakerOpen.WithLabelValues("api", "qdrant.search")); got != 1 {
		t.Fatalf("expected open breaker gauge 1, got %v", got)
	}
	retrieval.ObserveBreakerState("qdrant.search", "half-open")
	if got := testutil.ToFloat64(retrieval.breakerOpen.WithLabelValues("api", "qdrant.search")); got != 0 {
		t.Fatalf("expected gauge reset on half-open, got %v", got)
	}
}

func TestMiddlewareNormalizesDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/def", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/{document_id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 normalized requests, got %v", got)
	}
}

func TestRecordRAGObservation(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRAGObservation("api", "ask", 3, 20*time.Millisecond)
	m.RecordRAGObservation("api", "ask", 0, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ragRetrievalHitTotal.WithLabelValues("api", "ask")); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.ragNoContextTotal.WithLabelValues("api", "ask")); got != 1 {
		t.Fatalf("expected 1 no-context, got %v", got)
	}
}

func TestWorkerMetricsFinishDocument(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartDocument()
	m.FinishDocument(time.Second, nil)
	m.StartDocument()
	m.FinishDocument(time.Second, io.EOF)
	m.ObserveQueueLag(-time.Second)

	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed document, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsInFlight); got != 0 {
		t.Fatalf("expected no in-flight documents, got %v", got)
	}
	if got := testutil.CollectAndCount(m.queueLag); got != 1 {
		t.Fatalf("expected the lag histogram registered, got %d series", got)
	}
}

func TestWorkerMetricsObserveProcessed(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.ObserveProcessed(domain.ProcessResult{DocumentID: "a", Chunks: 4, Indexed: 3, Duplicates: 1})
	m.ObserveProcessed(domain.ProcessResult{DocumentID: "b", Chunks: 2, Duplicates: 2})
	m.ObserveProcessed(domain.ProcessResult{DocumentID: "c"})

	for outcome, want := range map[string]float64{OutcomeIndexed: 1, OutcomeDuplicate: 1, OutcomeEmpty: 1} {
		if got := testutil.ToFloat64(m.outcomes.WithLabelValues(outcome)); got != want {
			t.Fatalf("outcome %s: expected %v, got %v", outcome, want, got)
		}
	}
	if got := testutil.ToFloat64(m.fragments.WithLabelValues(OutcomeIndexed)); got != 3 {
		t.Fatalf("expected 3 indexed fragments, got %v", got)
	}
	if got := testutil.ToFloat64(m.fragments.WithLabelValues(OutcomeDuplicate)); got != 3 {
		t.Fatalf("expected 3 duplicate fragments, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `rag_ingest_documents_total{outcome="empty",service="worker"} 1`) {
		t.Fatalf("expected empty documents on the worker endpoint, got:\n%s", body)
	}
}
