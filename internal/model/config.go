package model

import "strings"

// Config is the complete loreguard configuration.
// Precedence: CLI flags > LOREGUARD_* environment > config file > DefaultConfig.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Analysis     AnalysisConfig     `yaml:"analysis" mapstructure:"analysis"`
	Normalizer   NormalizerConfig   `yaml:"normalizer" mapstructure:"normalizer"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// LLMConfig selects and configures the external analysis service
type LLMConfig struct {
	Provider  string      `yaml:"provider" mapstructure:"provider"`       // openai, anthropic, gemini, ollama
	Model     string      `yaml:"model" mapstructure:"model"`             // Provider-specific model name
	BaseURL   string      `yaml:"base_url" mapstructure:"base_url"`       // Custom endpoint (OpenAI-compatible gateway, Ollama)
	APIKeyEnv string      `yaml:"api_key_env" mapstructure:"api_key_env"` // Environment variable holding the credential
	Timeout   int         `yaml:"timeout" mapstructure:"timeout"`         // Transport timeout, seconds
	MaxTokens int         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Retry     RetryConfig `yaml:"retry" mapstructure:"retry"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RetryConfig controls retries of rate-limited calls.
// MaxAttempts of 1 disables retrying.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// AnalysisConfig shapes requests and paces the pipeline phases
type AnalysisConfig struct {
	StoryCharLimit    int     `yaml:"story_char_limit" mapstructure:"story_char_limit"`
	TruncationMarker  string  `yaml:"truncation_marker" mapstructure:"truncation_marker"`
	ChunkWords        int     `yaml:"chunk_words" mapstructure:"chunk_words"`
	MaxEmbeddedChunks int     `yaml:"max_embedded_chunks" mapstructure:"max_embedded_chunks"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"`             // Seconds for the model call; 0 = no deadline
	MetricsNoise      float64 `yaml:"metrics_noise" mapstructure:"metrics_noise"` // Relative sigma applied to the placeholder metrics; 0 = fixed baseline
}

// NormalizerConfig holds the tunable heuristics of the result normalizer
type NormalizerConfig struct {
	DefaultClaimConfidence   float64 `yaml:"default_claim_confidence" mapstructure:"default_claim_confidence"`
	PreferExplicitConfidence bool    `yaml:"prefer_explicit_confidence" mapstructure:"prefer_explicit_confidence"`
	ConfidenceFromEvidence   bool    `yaml:"confidence_from_evidence" mapstructure:"confidence_from_evidence"`
	RelatedClaimsFallback    int     `yaml:"related_claims_fallback" mapstructure:"related_claims_fallback"`
	FallbackConfidence       float64 `yaml:"fallback_confidence" mapstructure:"fallback_confidence"`
}

// CacheConfig controls the model reply cache
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	MemoryTTLMins int    `yaml:"memory_ttl_minutes" mapstructure:"memory_ttl_minutes"`
	DiskTTLHours  int    `yaml:"disk_ttl_hours" mapstructure:"disk_ttl_hours"`
}

// FetchConfig controls loading narratives from URLs
type FetchConfig struct {
	Timeout       int    `yaml:"timeout" mapstructure:"timeout"` // Seconds
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// RateLimitingConfig paces calls to the model endpoint
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig bounds batch processing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// StorageConfig configures the optional SQLite job archive
type StorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Empty disables the archive
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
	IncludeLogs   bool `yaml:"include_logs" mapstructure:"include_logs"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			Timeout:   120,
			MaxTokens: 4096,
			Retry: RetryConfig{
				MaxAttempts: 1,
				BaseDelayMS: 1000,
				MaxDelayMS:  30000,
			},
		},
		Analysis: AnalysisConfig{
			StoryCharLimit:    50000,
			TruncationMarker:  "\n\n[...truncated for context limits...]",
			ChunkWords:        2000,
			MaxEmbeddedChunks: 5,
			Timeout:           0,
			MetricsNoise:      0.02,
		},
		Normalizer: NormalizerConfig{
			DefaultClaimConfidence:   0.7,
			PreferExplicitConfidence: true,
			ConfidenceFromEvidence:   true,
			RelatedClaimsFallback:    2,
			FallbackConfidence:       0.5,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Dir:           ".loreguard-cache",
			MemoryTTLMins: 60,
			DiskTTLHours:  24 * 7,
		},
		Fetch: FetchConfig{
			Timeout:       30,
			UserAgent:     "Loreguard/0.1 (+https://github.com/ppiankov/loreguard)",
			MaxBodyBytes:  20_000_000,
			RespectRobots: true,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1,
			BurstSize:         2,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 2,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:*", "https://*"},
			MaxBodyBytes:   50_000_000,
		},
		Output: OutputConfig{
			IncludeFooter: true,
			IncludeLogs:   true,
		},
	}
}

// DefaultAPIKeyEnv returns the conventional credential variable for a provider.
// Providers that need no credential return "".
func DefaultAPIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	}
	return ""
}

// CredentialEnv returns the environment variable that must hold the credential
func (c LLMConfig) CredentialEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	return DefaultAPIKeyEnv(c.Provider)
}
