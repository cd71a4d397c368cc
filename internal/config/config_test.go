package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/document-verifier/pkg/encoder"
)

// clearEnv blanks variables that would leak into Load from the host; viper ignores empty values
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DOCVERIFY_BACKEND_API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Backend.Name)
	assert.Equal(t, 1000, cfg.Backend.MaxTokens)
	assert.Equal(t, 120*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "png", cfg.Encoder.Format)
	assert.Equal(t, 1, cfg.Retry.MaxAttempts)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 150*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Backend.APIKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCVERIFY_BACKEND_NAME", "ollama")
	t.Setenv("DOCVERIFY_BACKEND_MODEL", "qwen2.5vl:7b")
	t.Setenv("DOCVERIFY_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("DOCVERIFY_SERVER_REQUEST_TIMEOUT", "10s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Backend.Name)
	assert.Equal(t, "qwen2.5vl:7b", cfg.Backend.Model)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.Backend.APIKey)

	t.Setenv("DOCVERIFY_BACKEND_API_KEY", "sk-prefixed")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.Backend.APIKey)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "docverify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  name: llamacpp
  url: http://gpu-box:8080
encoder:
  format: webp
  max_dimension: 1600
log:
  format: json
`), 0o644))

	t.Setenv("DOCVERIFY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llamacpp", cfg.Backend.Name)
	assert.Equal(t, "http://gpu-box:8080", cfg.Backend.URL)
	assert.Equal(t, 1600, cfg.Encoder.MaxDimension)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)

	encCfg, err := cfg.EncoderConfig()
	require.NoError(t, err)
	assert.Equal(t, encoder.FormatWebP, encCfg.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "anthropic with key", modify: func(c *Config) { c.Backend.APIKey = "sk" }},
		{name: "ollama needs no key", modify: func(c *Config) { c.Backend.Name = "ollama" }},
		{name: "missing key", modify: func(c *Config) {}, wantErr: "api_key is required"},
		{name: "unknown backend", modify: func(c *Config) { c.Backend.Name = "gpt" }, wantErr: "backend.name"},
		{name: "bad encoder", modify: func(c *Config) { c.Backend.Name = "ollama"; c.Encoder.Format = "jpeg" }, wantErr: "encoder.format"},
		{name: "zero attempts", modify: func(c *Config) { c.Backend.Name = "ollama"; c.Retry.MaxAttempts = 0 }, wantErr: "retry.max_attempts"},
		{name: "zero timeout", modify: func(c *Config) { c.Backend.Name = "ollama"; c.Backend.Timeout = 0 }, wantErr: "backend.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{Name: "ollama", URL: "http://h:1", Model: "m", MaxTokens: 10, Timeout: time.Second},
		Image:   ImageConfig{MinSize: 64, MaxBytes: 1024},
		Retry:   RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute},
	}

	cc := cfg.ClientConfig()
	assert.Equal(t, "ollama", cc.Backend)
	assert.Equal(t, "http://h:1", cc.URL)

	pc := cfg.ProcessingConfig()
	assert.Equal(t, 64, pc.MinImageSize)
	assert.Equal(t, int64(1024), pc.MaxBytes)

	rc := cfg.RetryPolicyConfig()
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, time.Minute, rc.MaxDelay)
}
