package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/loreguard/internal/cache"
	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/worker"
)

// AnalysisRequest is the payload of one consistency analysis
type AnalysisRequest struct {
	StoryContent     string      `json:"storyContent"`
	BackstoryContent string      `json:"backstoryContent"`
	Track            model.Track `json:"track"`
	StoryID          string      `json:"storyId"`
}

// Reply is the raw model output plus call metadata
type Reply struct {
	Raw        string
	Provider   string
	Model      string
	TokensUsed int
	Truncated  bool // The story was cut to the character limit
	Cached     bool
}

type cachedReply struct {
	Raw        string `json:"raw"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Client performs consistency analyses against the configured provider.
// It is safe for concurrent use.
type Client struct {
	cfg      model.LLMConfig
	analysis model.AnalysisConfig
	retry    RetryPolicy

	limiter *worker.Limiter
	cache   cache.Cache
	logger  *zap.Logger
	getenv  func(string) string

	mu       sync.Mutex
	provider Provider
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithProvider injects a provider instead of building one from config
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.provider = p
	}
}

// WithLimiter paces provider calls per endpoint
func WithLimiter(l *worker.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithCache enables the reply cache
func WithCache(rc cache.Cache) ClientOption {
	return func(c *Client) {
		c.cache = rc
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithGetenv overrides how credentials are read from the environment
func WithGetenv(fn func(string) string) ClientOption {
	return func(c *Client) {
		c.getenv = fn
	}
}

// NewClient creates an analysis client. No network activity happens until
// the first Analyze call.
func NewClient(cfg model.LLMConfig, analysis model.AnalysisConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:      cfg,
		analysis: analysis,
		retry:    RetryPolicyFromConfig(cfg.Retry),
		logger:   zap.NewNop(),
		getenv:   os.Getenv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProviderName returns the configured provider name
func (c *Client) ProviderName() string {
	return strings.ToLower(c.cfg.Provider)
}

// Ping resolves the provider and reports whether it is reachable
func (c *Client) Ping(ctx context.Context) error {
	provider, err := c.resolveProvider()
	if err != nil {
		return err
	}
	if !provider.IsAvailable(ctx) {
		return model.ErrTransport(fmt.Sprintf("%s is not reachable", provider.Name()))
	}
	return nil
}

// ShapeRequest applies the story character limit. The backstory is never
// truncated. The second return reports whether the story was cut.
func (c *Client) ShapeRequest(req AnalysisRequest) (AnalysisRequest, bool) {
	story, truncated := TruncateStory(req.StoryContent, c.analysis.StoryCharLimit, c.analysis.TruncationMarker)
	req.StoryContent = story
	if req.Track == "" {
		req.Track = model.TrackA
	}
	if req.StoryID == "" {
		req.StoryID = model.DefaultStoryID
	}
	return req, truncated
}

// Analyze sends the shaped request and returns the raw reply. Every failure
// is a *model.AnalysisError; a missing credential fails before any network
// call.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*Reply, error) {
	if strings.TrimSpace(req.StoryContent) == "" || strings.TrimSpace(req.BackstoryContent) == "" {
		return nil, model.ErrValidation("Both story and backstory content are required")
	}

	provider, err := c.resolveProvider()
	if err != nil {
		return nil, err
	}

	shaped, truncated := c.ShapeRequest(req)
	completion := CompletionRequest{
		System:     SystemPrompt,
		Prompt:     BuildUserPrompt(shaped),
		JSONOutput: true,
	}

	key := cache.CacheKey(provider.Name(), c.cfg.Model, string(shaped.Track), PromptVersion, shaped.StoryContent, shaped.BackstoryContent)
	if reply, ok := c.cached(key); ok {
		reply.Provider = provider.Name()
		reply.Truncated = truncated
		return reply, nil
	}

	c.logger.Debug("Requesting analysis",
		zap.String("provider", provider.Name()),
		zap.String("story_id", shaped.StoryID),
		zap.Int("story_chars", len(shaped.StoryContent)),
		zap.Int("backstory_chars", len(shaped.BackstoryContent)),
		zap.Bool("truncated", truncated))

	var resp *CompletionResponse
	err = c.retry.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.call(ctx, provider, completion)
		if callErr != nil && model.IsRetryable(callErr) {
			c.logger.Warn("Analysis call throttled", zap.String("provider", provider.Name()), zap.Error(callErr))
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		Raw:        resp.Text,
		Provider:   provider.Name(),
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Truncated:  truncated,
	}
	c.store(key, reply)

	return reply, nil
}

// call performs one rate-limited provider call
func (c *Client) call(ctx context.Context, provider Provider, req CompletionRequest) (*CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, DefaultEndpoint(ConfigFromModel(c.cfg, ""))); err != nil {
			return nil, model.ErrTransport("rate limiter wait aborted").WithCause(err)
		}
	}

	if c.analysis.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.analysis.Timeout)*time.Second)
		defer cancel()
	}

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, Classify(provider.Name(), err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, model.ErrTransport("No response from AI model")
	}
	return resp, nil
}

// resolveProvider checks the credential and builds the provider once
func (c *Client) resolveProvider() (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}

	var apiKey string
	if env := c.cfg.CredentialEnv(); env != "" {
		apiKey = c.getenv(env)
		if apiKey == "" {
			return nil, model.ErrAuthConfig(fmt.Sprintf("%s is not configured", env))
		}
	}

	provider, err := NewProvider(ConfigFromModel(c.cfg, apiKey))
	if err != nil {
		return nil, model.ErrAuthConfig("invalid provider configuration").WithCause(err)
	}
	c.provider = provider
	return provider, nil
}

func (c *Client) cached(key string) (*Reply, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	var entry cachedReply
	if err := json.Unmarshal(data, &entry); err != nil || entry.Raw == "" {
		_ = c.cache.Delete(key)
		return nil, false
	}
	c.logger.Debug("Analysis served from cache", zap.String("key", key))
	return &Reply{Raw: entry.Raw, Model: entry.Model, TokensUsed: entry.TokensUsed, Cached: true}, true
}

func (c *Client) store(key string, reply *Reply) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(cachedReply{Raw: reply.Raw, Model: reply.Model, TokensUsed: reply.TokensUsed})
	if err != nil {
		return
	}
	if err := c.cache.Set(key, data, 0); err != nil {
		c.logger.Warn("Failed to cache analysis reply", zap.Error(err))
	}
}
