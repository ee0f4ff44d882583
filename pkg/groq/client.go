// Package groq generates grounded answers through Groq's OpenAI-compatible
// chat API. The model is strictly instructed to answer only from the
// supplied context chunks, and generation is pinned to temperature zero so
// grounding checks are reproducible.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultModel is the chat model used unless overridden.
const DefaultModel = "llama-3.1-8b-instant"

// Default request rate against the Groq API. Groq's free tier allows 30
// requests per minute; half that leaves headroom for retries.
const (
	DefaultRPS   = 0.25
	DefaultBurst = 3
)

// NotInContextAnswer is the exact sentence the model emits when the context
// does not contain the answer.
const NotInContextAnswer = "The answer is not available in the provided document."

const systemPrompt = "You are a strict, grounded policy assistant. " +
	"Answer only from the provided context. Never invent information."

const promptTemplate = `You are an Information Security Policy Assistant.

Your ONLY job is to answer the user's question using the context below.
Do NOT use any outside knowledge. Do NOT make up information.

If the answer is not found in the context, respond with exactly:
"%s"

Context:
%s

Question:
%s

Answer:`

const apiURL = "https://api.groq.com/openai/v1/chat/completions"

// Client is a Groq chat completions client.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the client at a different endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithRateLimit caps outgoing requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New creates a Client. The API key must be non-empty; callers validate it
// at startup so a missing key aborts before serving.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: apiURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate produces an answer constrained to the given context chunks. The
// chunks are joined with a "---" separator so the model sees them as
// distinct spans of the source document, and their order is the citation
// order the caller derived upstream.
func (c *Client) Generate(ctx context.Context, query string, contextChunks []string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("groq: rate limit wait: %w", err)
		}
	}

	contextText := strings.Join(contextChunks, "\n\n---\n\n")
	prompt := fmt.Sprintf(promptTemplate, NotInContextAnswer, contextText, query)

	payload, _ := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("groq: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("groq: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
