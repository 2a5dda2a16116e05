package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/core/domain"
)

type feedbackFake struct {
	submitted []domain.Feedback
	err       error
}

func (f *feedbackFake) Submit(_ context.Context, feedback domain.Feedback) (*domain.Feedback, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, feedback)
	feedback.ID = "fb-1"
	return &feedback, nil
}

func (f *feedbackFake) Stats(context.Context, string) (domain.FeedbackStats, error) {
	return domain.FeedbackStats{Total: 4, Positive: 3, Negative: 1, SatisfactionRate: 75}, f.err
}

type analyticsFake struct {
	tenant string
	days   int
	limit  int
}

func (f *analyticsFake) Overview(_ context.Context, tenantID string, days int) (domain.AnalyticsOverview, error) {
	f.tenant, f.days = tenantID, days
	return domain.AnalyticsOverview{TotalQueries: 9, SatisfactionRate: 50}, nil
}

func (f *analyticsFake) QueriesPerDay(_ context.Context, tenantID string, days int) ([]domain.DailyQueryCount, error) {
	f.tenant, f.days = tenantID, days
	return []domain.DailyQueryCount{{Date: "2026-06-01", Count: 3}}, nil
}

func (f *analyticsFake) Satisfaction(_ context.Context, tenantID string, days int) (domain.FeedbackStats, error) {
	f.tenant, f.days = tenantID, days
	return domain.FeedbackStats{Positive: 1}, nil
}

func (f *analyticsFake) Performance(_ context.Context, tenantID string, days int) (domain.PerformanceStats, error) {
	f.tenant, f.days = tenantID, days
	return domain.PerformanceStats{P95ResponseTimeMS: 1800}, nil
}

func (f *analyticsFake) TopDocuments(_ context.Context, tenantID string, days, limit int) ([]domain.TopDocument, error) {
	f.tenant, f.days, f.limit = tenantID, days, limit
	return []domain.TopDocument{{DocumentID: "doc-1", Filename: "rh.pdf", TimesCited: 4}}, nil
}

func (f *analyticsFake) CommonQuestions(_ context.Context, tenantID string, days, limit int) ([]domain.CommonQuestion, error) {
	f.tenant, f.days, f.limit = tenantID, days, limit
	return []domain.CommonQuestion{{Question: "férias?", Count: 2}}, nil
}

type tenantSettingsFake struct {
	settings domain.TenantSettings
}

func (f *tenantSettingsFake) Get(_ context.Context, tenantID string) (domain.TenantSettings, error) {
	out := f.settings
	out.TenantID = tenantID
	return out, nil
}

func (f *tenantSettingsFake) Update(_ context.Context, settings domain.TenantSettings) (domain.TenantSettings, error) {
	f.settings = settings
	return settings, nil
}

func doRequest(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Tenant-ID", "acme")
	req.Header.Set("X-User-ID", "u1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestListDocumentsScopesToTenant(t *testing.T) {
	docs := docsFake{list: []domain.Document{
		{ID: "doc-1", TenantID: "acme", Filename: "rh.pdf"},
		{ID: "doc-2", TenantID: "globex", Filename: "ti.pdf"},
	}}
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docs).Handler()

	res := doRequest(t, handler, http.MethodGet, "/v1/documents", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Documents) != 1 || body.Documents[0].ID != "doc-1" {
		t.Fatalf("unexpected documents %+v", body.Documents)
	}
}

func TestSubmitFeedback(t *testing.T) {
	feedback := &feedbackFake{}
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithFeedback(feedback)).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/feedback", map[string]any{
		"question":     "Quantos dias de férias?",
		"answer":       "São 30 dias [1].",
		"rating":       5,
		"fragment_ids": []string{"doc-1#0"},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if len(feedback.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(feedback.submitted))
	}
	got := feedback.submitted[0]
	if got.TenantID != "acme" || got.UserID != "u1" || got.Rating != domain.RatingPositive || got.FragmentIDs[0] != "doc-1#0" {
		t.Fatalf("unexpected feedback %+v", got)
	}
}

func TestSubmitFeedbackRejectsOtherRatings(t *testing.T) {
	feedback := &feedbackFake{}
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithFeedback(feedback)).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/feedback", map[string]any{
		"question": "q",
		"answer":   "a",
		"rating":   3,
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
	if len(feedback.submitted) != 0 {
		t.Fatalf("invalid rating must not reach the service")
	}
}

func TestFeedbackStats(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithFeedback(&feedbackFake{})).Handler()

	res := doRequest(t, handler, http.MethodGet, "/v1/feedback/stats", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var stats domain.FeedbackStats
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 4 || stats.SatisfactionRate != 75 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAnalyticsRoutesBindWindow(t *testing.T) {
	analytics := &analyticsFake{}
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithAnalytics(analytics)).Handler()

	for _, path := range []string{
		"/v1/analytics/overview?days=7",
		"/v1/analytics/queries?days=7",
		"/v1/analytics/satisfaction?days=7",
		"/v1/analytics/performance?days=7",
	} {
		analytics.days = 0
		res := doRequest(t, handler, http.MethodGet, path, nil)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, res.Code, res.Body.String())
		}
		if analytics.days != 7 || analytics.tenant != "acme" {
			t.Fatalf("%s: unexpected binding days=%d tenant=%q", path, analytics.days, analytics.tenant)
		}
	}

	res := doRequest(t, handler, http.MethodGet, "/v1/analytics/top-documents?limit=5", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if analytics.days != 30 || analytics.limit != 5 {
		t.Fatalf("absent days must take the documented default, got days=%d limit=%d", analytics.days, analytics.limit)
	}
	var docs []domain.TopDocument
	if err := json.NewDecoder(res.Body).Decode(&docs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(docs) != 1 || docs[0].TimesCited != 4 {
		t.Fatalf("unexpected top documents %+v", docs)
	}
}

func TestAnalyticsRejectsOutOfRangeWindow(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithAnalytics(&analyticsFake{})).Handler()

	for _, path := range []string{
		"/v1/analytics/overview?days=0",
		"/v1/analytics/overview?days=400",
		"/v1/analytics/common-questions?limit=51",
		"/v1/analytics/queries?days=abc",
	} {
		res := doRequest(t, handler, http.MethodGet, path, nil)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", path, res.Code, res.Body.String())
		}
	}
}

func TestInsightRoutesAbsentWithoutServices(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}).Handler()

	for _, path := range []string{"/v1/feedback/stats", "/v1/analytics/overview", "/v1/tenant/settings"} {
		res := doRequest(t, handler, http.MethodGet, path, nil)
		if res.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 without a service, got %d", path, res.Code)
		}
	}
}

func TestTenantSettingsRoundTrip(t *testing.T) {
	tenants := &tenantSettingsFake{}
	handler := NewRouter(config.Config{}, &ingestFake{}, &queryFake{}, docsFake{}, WithTenantSettings(tenants)).Handler()

	res := doRequest(t, handler, http.MethodPut, "/v1/tenant/settings", map[string]any{"custom_prompt": "Responda como o RH da Acme."})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if tenants.settings.TenantID != "acme" || tenants.settings.CustomPrompt != "Responda como o RH da Acme." {
		t.Fatalf("unexpected stored settings %+v", tenants.settings)
	}

	res = doRequest(t, handler, http.MethodGet, "/v1/tenant/settings", nil)
	var got domain.TenantSettings
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.CustomPrompt != "Responda como o RH da Acme." {
		t.Fatalf("unexpected settings %+v", got)
	}
}
