package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, anthropic, gemini, ollama)", config.Provider)
	}
}

// DefaultEndpoint returns the API base URL a provider talks to. It keys the
// per-endpoint rate limiter.
func DefaultEndpoint(config Config) string {
	if config.BaseURL != "" {
		return config.BaseURL
	}
	switch strings.ToLower(config.Provider) {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic", "claude":
		return anthropicBaseURL
	case "gemini", "google":
		return "https://generativelanguage.googleapis.com"
	case "ollama":
		return ollamaBaseURL
	}
	return config.Provider
}
