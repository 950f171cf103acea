package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Message roles understood by OpenAI-compatible endpoints
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Summary request parameters
const (
	summarySystemPrompt = "You produce concise, accurate conversation summaries."
	summaryTemperature  = 0.3
	summaryMaxTokens    = 200
)

// Client LLM client for an OpenAI-compatible chat completions endpoint
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client

	summaryTemperature float64
	summaryMaxTokens   int
}

// Message message structure
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage token accounting reported by the service
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse chat response
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// chatRequest chat request
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// chatResponse API response
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// CallOption overrides a request parameter for a single call
type CallOption func(*chatRequest)

// WithTemperature overrides the sampling temperature
func WithTemperature(t float64) CallOption {
	return func(r *chatRequest) { r.Temperature = t }
}

// WithMaxTokens overrides the output token budget
func WithMaxTokens(n int) CallOption {
	return func(r *chatRequest) { r.MaxTokens = n }
}

// WithModel overrides the model name
func WithModel(model string) CallOption {
	return func(r *chatRequest) { r.Model = model }
}

// New creates a new LLM client
func New(apiKey, baseURL, model string, temperature float64, maxTokens int) *Client {
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		summaryTemperature: summaryTemperature,
		summaryMaxTokens:   summaryMaxTokens,
	}
}

// SetSummaryParams changes the temperature and output budget used by
// Summarize. Non-positive values keep the current setting.
func (c *Client) SetSummaryParams(temperature float64, maxTokens int) {
	if temperature > 0 {
		c.summaryTemperature = temperature
	}
	if maxTokens > 0 {
		c.summaryMaxTokens = maxTokens
	}
}

// SetTimeout changes the HTTP client timeout
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete sends a non-streaming chat completion request
func (c *Client) Complete(ctx context.Context, messages []Message, opts ...CallOption) (*ChatResponse, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, opt := range opts {
		opt(&reqBody)
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned error (status %d): %s", resp.StatusCode, apiErrorMessage(body))
	}

	return c.handleResponse(resp.Body)
}

// Summarize condenses a conversation digest with the dedicated summary
// instruction, low temperature and a short output budget.
func (c *Client) Summarize(ctx context.Context, digest string) (string, error) {
	resp, err := c.Complete(ctx, []Message{
		{Role: RoleSystem, Content: summarySystemPrompt},
		{Role: RoleUser, Content: digest},
	}, WithTemperature(c.summaryTemperature), WithMaxTokens(c.summaryMaxTokens))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// apiErrorMessage extracts error.message (or a bare string error) from
// an error body, falling back to the raw text
func apiErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		e := gjson.GetBytes(body, "error")
		if msg := e.Get("message").String(); msg != "" {
			return msg
		}
		if e.Type == gjson.String {
			return e.String()
		}
	}
	return strings.TrimSpace(string(body))
}

// handleResponse handles normal response
func (c *Client) handleResponse(body io.Reader) (*ChatResponse, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("API returned empty response")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}, nil
}
