package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/menta2k/document-verifier/pkg/anthropic"
	"github.com/menta2k/document-verifier/pkg/llamacpp"
	"github.com/menta2k/document-verifier/pkg/ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// Backends lists the supported reasoning-service backends
var Backends = []string{anthropic.Name, ollama.Name, llamacpp.Name}

// Config selects and configures one backend
type Config struct {
	Backend   string
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// New creates the VisionClient for cfg.Backend
func New(cfg Config) (VisionClient, error) {
	var (
		vc  VisionClient
		err error
	)

	switch strings.ToLower(cfg.Backend) {
	case anthropic.Name:
		vc, err = anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Endpoint:  cfg.URL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case ollama.Name:
		url := cfg.URL
		if url == "" {
			url = defaultOllamaURL
		}
		vc, err = ollama.NewClient(ollama.Config{
			URL:     url,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case llamacpp.Name:
		vc, err = llamacpp.NewClient(llamacpp.Config{
			URL:       cfg.URL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown backend: %s (use one of %s)", cfg.Backend, strings.Join(Backends, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
	}
	return vc, nil
}
