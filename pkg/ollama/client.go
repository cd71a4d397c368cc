package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/document-verifier/pkg/types"
)

// Name identifies this backend in errors and logs
const Name = "ollama"

const (
	defaultModel   = "qwen2.5vl:7b"
	defaultTimeout = 300 * time.Second
)

// Config holds settings for a local Ollama server
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new Ollama client
func NewClient(cfg Config) (*Client, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", cfg.URL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the backend name
func (c *Client) Name() string {
	return Name
}

// Complete runs one non-streaming chat request with the image attached
func (c *Client) Complete(ctx context.Context, req types.AnalysisRequest) (string, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(req.Image.Data)
	if err != nil {
		return "", types.NewInvalidImageError("payload is not valid base64", err)
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: req.Instructions,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0},
	}

	var responseContent string
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			if statusErr.StatusCode == http.StatusTooManyRequests {
				return "", types.NewRateLimitError(Name, err, 0)
			}
			return "", types.NewServiceError(Name, statusErr.StatusCode, err)
		}
		return "", types.NewServiceError(Name, 0, fmt.Errorf("ollama chat error: %w", err))
	}

	if responseContent == "" {
		return "", types.NewMalformedResponseError("", "empty response from ollama", nil)
	}

	return responseContent, nil
}
