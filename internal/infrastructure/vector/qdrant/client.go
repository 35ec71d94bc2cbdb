package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-assistant/internal/core/domain"
	"github.com/kirillkom/graphrag-assistant/internal/infrastructure/resilience"
)

// textPayloadKeys are tried in order to find the passage text of a point.
var textPayloadKeys = []string{"text", "content", "chunk"}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.ContextItem, error) {
	if limit <= 0 {
		limit = 10
	}
	body, err := json.Marshal(map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	hits, err := resilience.Call(ctx, c.executor, "qdrant.search", func(ctx context.Context) ([]searchHit, error) {
		return c.search(ctx, body)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ContextItem, 0, len(hits))
	for _, hit := range hits {
		text := passageText(hit.Payload)
		if text == "" {
			continue
		}
		out = append(out, domain.ContextItem{
			ID:     fmt.Sprintf("%v", hit.ID),
			Source: domain.SourceVector,
			Text:   text,
			Score:  hit.Score,
			Depth:  -1,
		})
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, body []byte) ([]searchHit, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("qdrant", "search", resp)
	}

	var searchResp struct {
		Result []searchHit `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return searchResp.Result, nil
}

func passageText(payload map[string]any) string {
	for _, key := range textPayloadKeys {
		if s := strings.TrimSpace(getStringPayload(payload, key)); s != "" {
			return s
		}
	}
	return ""
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
