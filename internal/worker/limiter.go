package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/loreguard/internal/model"
)

// Limiter implements per-endpoint rate limiting. Endpoints are keyed by
// host when given as URLs, or by the raw string otherwise (e.g. "gemini").
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// LimiterFromConfig creates a limiter from the rate limiting section.
// A non-positive rate disables limiting.
func LimiterFromConfig(cfg model.RateLimitingConfig) *Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		return NewLimiter(float64(rate.Inf), cfg.BurstSize)
	}
	return NewLimiter(rps, cfg.BurstSize)
}

// Wait blocks until the endpoint may be called or ctx is done
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	return l.getLimiter(endpointKey(endpoint)).Wait(ctx)
}

// Allow checks if a request is allowed without waiting
func (l *Limiter) Allow(endpoint string) bool {
	return l.getLimiter(endpointKey(endpoint)).Allow()
}

// getLimiter returns the rate limiter for an endpoint key
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter

	return limiter
}

// endpointKey reduces a URL to its host; anything without a host is used as is
func endpointKey(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}
	return parsed.Host
}

// WaitWithDelay waits for rate limit and adds an additional delay
func (l *Limiter) WaitWithDelay(ctx context.Context, endpoint string, additionalDelay time.Duration) error {
	if err := l.Wait(ctx, endpoint); err != nil {
		return err
	}

	if additionalDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(additionalDelay):
		}
	}

	return nil
}
