package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
)

// Client implements ports.VectorStore on the Qdrant REST API.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// PointID is stable per fragment so re-indexing a document overwrites its points.
func PointID(f domain.Fragment) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%s/%d", f.TenantID, f.DocumentID, f.ChunkIndex))).String()
}

func (c *Client) IndexFragments(ctx context.Context, fragments []domain.Fragment, vectors [][]float32) error {
	if len(fragments) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(fragments) != len(vectors) {
		return fmt.Errorf("fragments/vectors mismatch: %d/%d", len(fragments), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(fragments))
	for i, f := range fragments {
		points = append(points, point{
			ID:     PointID(f),
			Vector: vectors[i],
			Payload: map[string]any{
				"tenant_id":     f.TenantID,
				"doc_id":        f.DocumentID,
				"filename":      f.Filename,
				"chunk_index":   f.ChunkIndex,
				"text":          f.Text,
				"section_title": f.SectionTitle,
				"page_number":   f.PageNumber,
				"content_hash":  f.ContentHash,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, "upsert", http.MethodPut, url, map[string]any{"points": points}, nil)
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RankedCandidate, error) {
	reqBody := map[string]any{
		"query":        queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter.TenantID != "" {
		reqBody["filter"] = mustMatch(map[string]string{"tenant_id": filter.TenantID})
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	if err := c.do(ctx, "search", http.MethodPost, url, reqBody, &queryResp); err != nil {
		return nil, err
	}

	out := make([]domain.RankedCandidate, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		score := p.Score
		out = append(out, domain.RankedCandidate{
			Fragment: domain.Fragment{
				TenantID:     getStringPayload(p.Payload, "tenant_id"),
				DocumentID:   getStringPayload(p.Payload, "doc_id"),
				Filename:     getStringPayload(p.Payload, "filename"),
				ChunkIndex:   getIntPayload(p.Payload, "chunk_index"),
				Text:         getStringPayload(p.Payload, "text"),
				SectionTitle: getStringPayload(p.Payload, "section_title"),
				PageNumber:   getIntPayload(p.Payload, "page_number"),
				ContentHash:  getStringPayload(p.Payload, "content_hash"),
			},
			PointID:     fmt.Sprintf("%v", p.ID),
			VectorScore: &score,
			FusedScore:  score,
			Source:      domain.SourceVector,
		})
	}
	return out, nil
}

// DeleteDocument removes every point of a document within the tenant.
func (c *Client) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	match := map[string]string{"doc_id": documentID}
	if tenantID != "" {
		match["tenant_id"] = tenantID
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.do(ctx, "delete", http.MethodPost, url, map[string]any{"filter": mustMatch(match)}, nil)
	var statusErr *resilience.HTTPStatusError
	if err != nil && asStatus(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		// Collection not created yet: nothing to delete.
		return nil
	}
	return err
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, "ensure collection", http.MethodPut, url, reqBody, nil)
	var statusErr *resilience.HTTPStatusError
	// 409 if already exists (depends on version/config).
	if err != nil && !(asStatus(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return err
	}
	if err := c.ensurePayloadIndex(ctx, "tenant_id"); err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensurePayloadIndex(ctx context.Context, field string) error {
	url := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	return c.do(ctx, "ensure payload index", http.MethodPut, url, map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}, nil)
}

func (c *Client) do(ctx context.Context, operation, method, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Service:    "qdrant",
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(msg),
			}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "qdrant."+operation, call, resilience.ClassifyHTTP)
	}
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTP)
}
