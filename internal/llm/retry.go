package llm

import (
	"context"
	"math"
	"time"

	"github.com/ppiankov/loreguard/internal/model"
)

// RetryPolicy retries retryable failures (rate limits) with exponential
// backoff. MaxAttempts counts the first call; 1 disables retrying.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// RetryPolicyFromConfig converts the llm.retry section
func RetryPolicyFromConfig(cfg model.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		Multiplier:  2,
	}
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are used up. The last error is returned unchanged so callers keep
// its classification.
func (p RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !model.IsRetryable(err) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(p.delay(attempt)):
		}
	}

	return lastErr
}

// delay computes baseDelay * multiplier^(attempt-1), capped at MaxDelay
func (p RetryPolicy) delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
