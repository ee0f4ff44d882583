// Package cohere scores (query, document) pairs with Cohere's rerank API.
// It backs the cross-relevance selection strategy.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultModel is the rerank model used unless overridden.
const DefaultModel = "rerank-english-v3.0"

const apiURL = "https://api.cohere.ai/v1/rerank"

// maxDocuments is Cohere's per-request document limit.
const maxDocuments = 1000

// Client calls the Cohere rerank endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the rerank model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the client at a different endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a Client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: apiURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// ScorePairs returns one raw relevance score per document, in document
// order. The API responds ranked; scores are mapped back by index.
func (c *Client) ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if len(documents) > maxDocuments {
		documents = documents[:maxDocuments]
	}

	payload, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: documents,
		Model:     c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cohere: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cohere: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("cohere: decode response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, r := range parsed.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}
