package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// registerInsights mounts feedback, analytics and tenant settings routes for the
// services that were configured.
func (rt *Router) registerInsights(api *http.ServeMux) {
	if rt.feedback != nil {
		api.HandleFunc("POST /v1/feedback", rt.submitFeedback)
		api.HandleFunc("GET /v1/feedback/stats", rt.feedbackStats)
	}
	if rt.analytics != nil {
		api.HandleFunc("GET /v1/analytics/overview", rt.analyticsOverview)
		api.HandleFunc("GET /v1/analytics/queries", rt.analyticsQueries)
		api.HandleFunc("GET /v1/analytics/satisfaction", rt.analyticsSatisfaction)
		api.HandleFunc("GET /v1/analytics/performance", rt.analyticsPerformance)
		api.HandleFunc("GET /v1/analytics/top-documents", rt.analyticsTopDocuments)
		api.HandleFunc("GET /v1/analytics/common-questions", rt.analyticsCommonQuestions)
	}
	if rt.tenants != nil {
		api.HandleFunc("GET /v1/tenant/settings", rt.getTenantSettings)
		api.HandleFunc("PUT /v1/tenant/settings", rt.updateTenantSettings)
	}
}

type feedbackRequest struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Rating      int      `json:"rating"`
	Comment     string   `json:"comment"`
	FragmentIDs []string `json:"fragment_ids"`
	AvgScore    *float64 `json:"avg_score"`
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	id := identityFromContext(r.Context())
	feedback, err := rt.feedback.Submit(r.Context(), domain.Feedback{
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		Question:    req.Question,
		Answer:      req.Answer,
		Rating:      req.Rating,
		Comment:     req.Comment,
		FragmentIDs: req.FragmentIDs,
		AvgScore:    req.AvgScore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, feedback)
}

func (rt *Router) feedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.feedback.Stats(r.Context(), identityFromContext(r.Context()).TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) analyticsOverview(w http.ResponseWriter, r *http.Request) {
	days, _, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.Overview(r.Context(), identityFromContext(r.Context()).TenantID, days)
	respondAnalytics(w, out, err)
}

func (rt *Router) analyticsQueries(w http.ResponseWriter, r *http.Request) {
	days, _, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.QueriesPerDay(r.Context(), identityFromContext(r.Context()).TenantID, days)
	respondAnalytics(w, out, err)
}

func (rt *Router) analyticsSatisfaction(w http.ResponseWriter, r *http.Request) {
	days, _, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.Satisfaction(r.Context(), identityFromContext(r.Context()).TenantID, days)
	respondAnalytics(w, out, err)
}

func (rt *Router) analyticsPerformance(w http.ResponseWriter, r *http.Request) {
	days, _, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.Performance(r.Context(), identityFromContext(r.Context()).TenantID, days)
	respondAnalytics(w, out, err)
}

func (rt *Router) analyticsTopDocuments(w http.ResponseWriter, r *http.Request) {
	days, limit, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.TopDocuments(r.Context(), identityFromContext(r.Context()).TenantID, days, limit)
	respondAnalytics(w, out, err)
}

func (rt *Router) analyticsCommonQuestions(w http.ResponseWriter, r *http.Request) {
	days, limit, err := bindAnalyticsWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := rt.analytics.CommonQuestions(r.Context(), identityFromContext(r.Context()).TenantID, days, limit)
	respondAnalytics(w, out, err)
}

// bindAnalyticsWindow reads the days and limit query parameters. The request
// validator fills documented defaults; zero is left for the service otherwise.
func bindAnalyticsWindow(r *http.Request) (days, limit int, err error) {
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "days", query, &days); err != nil {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "bind days", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "bind limit", err)
	}
	return days, limit, nil
}

func respondAnalytics(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type tenantSettingsRequest struct {
	CustomPrompt string `json:"custom_prompt"`
}

func (rt *Router) getTenantSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := rt.tenants.Get(r.Context(), identityFromContext(r.Context()).TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (rt *Router) updateTenantSettings(w http.ResponseWriter, r *http.Request) {
	var req tenantSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	settings, err := rt.tenants.Update(r.Context(), domain.TenantSettings{
		TenantID:     identityFromContext(r.Context()).TenantID,
		CustomPrompt: req.CustomPrompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
