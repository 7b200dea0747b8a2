// Package llm is a provider-agnostic client for hosted language-model
// inference. The ingestion pipeline uses it for two capabilities only:
// structured extraction of article records from raw payloads, and sentiment
// scoring of a single headline and body. Both are JSON-mode completions.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies an inference backend.
type Provider string

const (
	OpenAI Provider = "openai"
	Claude Provider = "claude"
	Ollama Provider = "ollama"
)

// Config holds the settings for one client.
type Config struct {
	Provider    Provider      `yaml:"provider" env:"LLM_PROVIDER"`
	Model       string        `yaml:"model" env:"LLM_MODEL"`
	APIKey      string        `yaml:"api_key" env:"LLM_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL"`
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    OpenAI,
		Model:       "gpt-4o-mini",
		MaxRetries:  3,
		Timeout:     60 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// Client is the unified interface to an inference backend.
type Client interface {
	// Generate sends a prompt and returns the raw completion.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GenerateJSON sends a prompt in JSON mode and unmarshals the
	// completion into out.
	GenerateJSON(ctx context.Context, req *Request, out any) error

	// Provider returns the backend this client talks to.
	Provider() Provider

	// Close releases any resources held by the client.
	Close() error
}

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request holds the parameters for one generation call.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
}

// Response holds the result of one generation call.
type Response struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	LatencyMs int64  `json:"latency_ms"`
}

// NewClient creates a client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	switch cfg.Provider {
	case OpenAI:
		return newOpenAIClient(cfg)
	case Claude:
		return newClaudeClient(cfg)
	case Ollama:
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
