package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/company-rag/internal/config"
	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
	"github.com/kirillkom/company-rag/internal/observability/metrics"
)

const backpressureWait = 2 * time.Second

type Router struct {
	ingestUC    ports.DocumentIngestor
	querySvc    ports.QueryService
	docs        ports.DocumentReader
	feedback    ports.FeedbackService
	analytics   ports.AnalyticsService
	tenants     ports.TenantSettingsService
	httpMetrics *metrics.HTTPServerMetrics
	validator   *requestValidator
	logger      *slog.Logger

	modelID         string
	contextMessages int
	maxUploadBytes  int64
	jwtSecret       []byte
	rateLimitRPS    float64
	rateLimitBurst  int
	maxInFlight     int
}

type RouterOption func(*Router)

// WithMetrics shares an existing metrics registry, e.g. one that retrieval
// metrics are registered on too.
func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		if m != nil {
			rt.httpMetrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithFeedback enables /v1/feedback.
func WithFeedback(svc ports.FeedbackService) RouterOption {
	return func(rt *Router) { rt.feedback = svc }
}

// WithAnalytics enables /v1/analytics/*.
func WithAnalytics(svc ports.AnalyticsService) RouterOption {
	return func(rt *Router) { rt.analytics = svc }
}

// WithTenantSettings enables /v1/tenant/settings.
func WithTenantSettings(svc ports.TenantSettingsService) RouterOption {
	return func(rt *Router) { rt.tenants = svc }
}

func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	querySvc ports.QueryService,
	docs ports.DocumentReader,
	opts ...RouterOption,
) *Router {
	validator, err := newRequestValidator()
	if err != nil {
		panic(fmt.Sprintf("httpadapter: embedded openapi spec: %v", err))
	}

	rt := &Router{
		ingestUC:        ingestUC,
		querySvc:        querySvc,
		docs:            docs,
		validator:       validator,
		logger:          slog.Default(),
		modelID:         cfg.OpenAICompatModelID,
		contextMessages: cfg.OpenAICompatContextMessages,
		maxUploadBytes:  cfg.MaxUploadBytes,
		jwtSecret:       []byte(cfg.AuthJWTSecret),
		rateLimitRPS:    cfg.RateLimitRPS,
		rateLimitBurst:  cfg.RateLimitBurst,
		maxInFlight:     cfg.MaxInFlight,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.httpMetrics == nil {
		rt.httpMetrics = metrics.NewHTTPServerMetrics("api")
	}
	if rt.modelID == "" {
		rt.modelID = "company-rag-v1"
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("POST /v1/search", rt.search)
	api.HandleFunc("POST /v1/ask", rt.ask)
	api.HandleFunc("GET /v1/models", rt.listModels)
	api.HandleFunc("POST /v1/chat/completions", rt.chatCompletions)
	rt.registerInsights(api)

	var apiHandler http.Handler = rt.validator.middleware(api)
	apiHandler = authMiddleware(rt.jwtSecret, apiHandler)
	apiHandler = backpressureWithRecorder(apiHandler, rt.maxInFlight, backpressureWait, rt.httpMetrics)
	apiHandler = rateLimitMiddleware(apiHandler, rt.rateLimitRPS, rt.rateLimitBurst, rt.httpMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.httpMetrics.Handler())
	mux.Handle("/v1/", apiHandler)

	return requestIDMiddleware(accessLogMiddleware(rt.logger, rt.httpMetrics.Middleware("api", mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	id := identityFromContext(r.Context())
	doc, err := rt.ingestUC.Upload(
		r.Context(),
		id.TenantID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.docs.List(r.Context(), identityFromContext(r.Context()).TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := bindDocumentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), identityFromContext(r.Context()).TenantID, documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := bindDocumentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rt.ingestUC.Delete(r.Context(), identityFromContext(r.Context()).TenantID, documentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bindDocumentID(r *http.Request) (string, error) {
	var documentID string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &documentID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind document id", err)
	}
	if strings.TrimSpace(documentID) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind document id", fmt.Errorf("document id is required"))
	}
	return documentID, nil
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Query   string                   `json:"query"`
	Results []domain.RankedCandidate `json:"results"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	results, err := rt.querySvc.Search(r.Context(), identityFromContext(r.Context()).TenantID, req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []domain.RankedCandidate{}
	}
	rt.httpMetrics.RecordRAGObservation("api", "search", len(results), time.Since(start))
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

type askRequest struct {
	Question       string                    `json:"question"`
	ConversationID string                    `json:"conversation_id"`
	TopK           int                       `json:"top_k"`
	History        []domain.ConversationTurn `json:"history"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	id := identityFromContext(r.Context())
	start := time.Now()
	answer, err := rt.querySvc.Ask(r.Context(), domain.AskRequest{
		TenantID:       id.TenantID,
		UserID:         id.UserID,
		ConversationID: strings.TrimSpace(req.ConversationID),
		Question:       req.Question,
		History:        req.History,
		TopK:           req.TopK,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	rt.observeAnswer(r, "ask", answer, time.Since(start))
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) observeAnswer(r *http.Request, endpoint string, answer *domain.Answer, elapsed time.Duration) {
	rt.httpMetrics.RecordRAGObservation("api", endpoint, len(answer.Sources), elapsed)
	rt.logger.Info("rag_answer",
		"request_id", requestIDFromContext(r.Context()),
		"endpoint", endpoint,
		"query_type", answer.Analysis.QueryType,
		"sources", len(answer.Sources),
		"citations", len(answer.Citations),
		"has_answer", answer.HasAnswer,
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
