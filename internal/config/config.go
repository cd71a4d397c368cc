package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/document-verifier/pkg/client"
	"github.com/menta2k/document-verifier/pkg/encoder"
	"github.com/menta2k/document-verifier/pkg/processing"
	"github.com/menta2k/document-verifier/pkg/retrypolicy"
)

// EnvPrefix is prepended to every environment variable, e.g. DOCVERIFY_BACKEND_NAME
const EnvPrefix = "DOCVERIFY"

// Config holds the application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Image   ImageConfig   `mapstructure:"image"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// BackendConfig selects the reasoning service
type BackendConfig struct {
	Name      string        `mapstructure:"name"`
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EncoderConfig holds image encoding settings
type EncoderConfig struct {
	Format       string `mapstructure:"format"`
	MaxDimension int    `mapstructure:"max_dimension"`
}

// ImageConfig holds image loading limits
type ImageConfig struct {
	MinSize  int   `mapstructure:"min_size"`
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// RetryConfig holds caller-side retry settings. One attempt means no retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Mode           string        `mapstructure:"mode"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.name", "anthropic")
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.model", "")
	v.SetDefault("backend.max_tokens", 1000)
	v.SetDefault("backend.timeout", "120s")

	v.SetDefault("encoder.format", "png")
	v.SetDefault("encoder.max_dimension", 0)

	v.SetDefault("image.min_size", 0)
	v.SetDefault("image.max_bytes", processing.DefaultMaxBytes)

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "90s")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.request_timeout", "150s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional file and environment
// variables with the DOCVERIFY_ prefix, in increasing precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// ANTHROPIC_API_KEY is honoured when the prefixed variable is unset
	if err := v.BindEnv("backend.api_key", EnvPrefix+"_BACKEND_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	backend := strings.ToLower(c.Backend.Name)
	known := false
	for _, b := range client.Backends {
		if backend == b {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("backend.name must be one of %s", strings.Join(client.Backends, ", "))
	}

	if backend == "anthropic" && c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required for the anthropic backend (set %s_BACKEND_API_KEY or ANTHROPIC_API_KEY)", EnvPrefix)
	}

	if c.Backend.MaxTokens < 1 {
		return fmt.Errorf("backend.max_tokens must be positive")
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}

	if _, err := encoder.ParseFormat(c.Encoder.Format); err != nil {
		return fmt.Errorf("encoder.format: %w", err)
	}

	if c.Encoder.MaxDimension < 0 {
		return fmt.Errorf("encoder.max_dimension cannot be negative")
	}

	if c.Image.MaxBytes < 1 {
		return fmt.Errorf("image.max_bytes must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}

	return nil
}

// ClientConfig returns the settings for client.New
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Backend:   c.Backend.Name,
		URL:       c.Backend.URL,
		APIKey:    c.Backend.APIKey,
		Model:     c.Backend.Model,
		MaxTokens: c.Backend.MaxTokens,
		Timeout:   c.Backend.Timeout,
	}
}

// EncoderConfig returns the settings for encoder.NewWithConfig
func (c *Config) EncoderConfig() (encoder.Config, error) {
	format, err := encoder.ParseFormat(c.Encoder.Format)
	if err != nil {
		return encoder.Config{}, err
	}
	return encoder.Config{Format: format, MaxDimension: c.Encoder.MaxDimension}, nil
}

// ProcessingConfig returns the settings for processing.NewProcessorWithConfig
func (c *Config) ProcessingConfig() processing.Config {
	return processing.Config{
		MinImageSize: c.Image.MinSize,
		MaxBytes:     c.Image.MaxBytes,
	}
}

// RetryPolicyConfig returns the settings for retrypolicy.New
func (c *Config) RetryPolicyConfig() retrypolicy.Config {
	return retrypolicy.Config{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}
