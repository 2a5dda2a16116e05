package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithExecutor routes every call through a breaker/retry executor.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator implements ports.AnswerGenerator on /api/generate.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"system": systemPrompt,
		"prompt": userPrompt,
		"stream": false,
	})
}

// GenerateAnswer asks for a JSON object {answer, citations, has_answer}. A model
// that ignores the format still yields its raw text as the answer.
func (g *Generator) GenerateAnswer(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedAnswer, error) {
	raw, err := g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"system": answerSystemPrompt(req.Instructions),
		"prompt": buildAnswerPrompt(req.Question, req.History, req.Fragments),
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return domain.GeneratedAnswer{}, err
	}
	return parseGeneratedAnswer(raw), nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func parseGeneratedAnswer(raw string) domain.GeneratedAnswer {
	var payload struct {
		Answer    string `json:"answer"`
		Citations []int  `json:"citations"`
		HasAnswer *bool  `json:"has_answer"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return domain.GeneratedAnswer{Answer: raw, Citations: []int{}, HasAnswer: true}
	}
	out := domain.GeneratedAnswer{
		Answer:    strings.TrimSpace(payload.Answer),
		Citations: payload.Citations,
		HasAnswer: true,
	}
	if payload.HasAnswer != nil {
		out.HasAnswer = *payload.HasAnswer
	}
	// An empty answer is an abstention whatever has_answer says.
	if out.Answer == "" {
		out.Answer = abstentionText
		out.HasAnswer = false
	}
	if out.Citations == nil {
		out.Citations = []int{}
	}
	return out
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
