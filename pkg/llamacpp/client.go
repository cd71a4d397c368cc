package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/document-verifier/pkg/types"
)

// Name identifies this backend in errors and logs
const Name = "llamacpp"

const (
	defaultURL       = "http://localhost:8080"
	defaultMaxTokens = 1000
	defaultTimeout   = 5 * time.Minute
)

// Config holds settings for an OpenAI-compatible chat completion server
type Config struct {
	URL       string
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	baseURL    string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Name returns the backend name
func (c *Client) Name() string {
	return Name
}

func (c *Client) Complete(ctx context.Context, req types.AnalysisRequest) (string, error) {
	content := []ContentPart{
		{
			Type: "text",
			Text: req.Instructions,
		},
		{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:" + req.Image.MediaType + ";base64," + req.Image.Data,
			},
		},
	}

	chatReq := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		MaxTokens: c.maxTokens,
		Stream:    false,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", chatReq)
	if err != nil {
		return "", err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", types.NewServiceError(Name, http.StatusOK, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", types.NewMalformedResponseError(string(respBody), "no choices in response", nil)
	}

	choice := resp.Choices[0]
	text := messageText(choice.Message)
	if text == "" {
		return "", types.NewMalformedResponseError(string(respBody), "no text content in response", nil)
	}
	if choice.FinishReason == "length" {
		return "", types.NewMalformedResponseError(text, "output truncated (finish_reason: length)", nil)
	}

	return text, nil
}

// messageText extracts text from the message (handles both string and array formats)
func messageText(msg Message) string {
	switch content := msg.Content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewServiceError(Name, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewServiceError(Name, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := types.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
		return nil, types.NewRateLimitError(Name, fmt.Errorf("server returned status %d", resp.StatusCode), retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewServiceError(Name, resp.StatusCode, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body)))
	}

	return body, nil
}
