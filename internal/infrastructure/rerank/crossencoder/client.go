// Package crossencoder calls a text-embeddings-inference style /rerank endpoint.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns relevance scores aligned with passages.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(rerankRequest{Query: query, Texts: passages, Model: c.model, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	results, err := resilience.Call(ctx, c.executor, "crossencoder.rerank", func(callCtx context.Context) ([]rerankResult, error) {
		return c.post(callCtx, body)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.WrapTemporary("crossencoder rerank", err, resilience.ClassifyHTTP)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank result missing passage %d", i)
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]rerankResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossencoder rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    "crossencoder",
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	var out []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return out, nil
}
