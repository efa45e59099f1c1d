package llm

import (
	"context"
	"time"

	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/util"
)

// Provider defines the interface for text-inference providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one system+user exchange and returns the reply text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single provider call
type CompletionRequest struct {
	System    string
	Prompt    string
	Model     string // Overrides the configured model when set
	MaxTokens int    // Overrides the configured limit when set

	// JSONOutput asks the provider to constrain the reply to a JSON object
	// where the API supports it
	JSONOutput bool
}

// CompletionResponse is the provider's reply
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey resolved from the environment
	APIKey string

	// BaseURL for custom endpoints (OpenAI-compatible gateways, Ollama)
	BaseURL string

	// Timeout for API requests in seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for sampling
	Temperature float32

	Proxy util.ProxyConfig
}

// ConfigFromModel converts model.LLMConfig plus the resolved credential
func ConfigFromModel(cfg model.LLMConfig, apiKey string) Config {
	return Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      apiKey,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxTokens:   cfg.MaxTokens,
		Temperature: 0.2,
		Proxy: util.ProxyConfig{
			HTTPProxy:  cfg.HTTPProxy,
			HTTPSProxy: cfg.HTTPSProxy,
			NoProxy:    cfg.NoProxy,
		},
	}
}

// timeout returns the HTTP timeout, falling back to def
func (c Config) timeout(def time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return def
}

// modelFor picks the request model, then the configured one, then def
func (c Config) modelFor(req CompletionRequest, def string) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return def
}

// maxTokensFor picks the request limit, then the configured one, then 4096
func (c Config) maxTokensFor(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 4096
}
