package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/loreguard/internal/model"
)

func TestRetryPolicy_DefaultDoesNotRetry(t *testing.T) {
	policy := RetryPolicyFromConfig(model.DefaultConfig().LLM.Retry)

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return model.ErrRateLimit("Rate limit exceeded. Please try again in a moment.")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestRetryPolicy_RetriesRateLimitOnly(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return model.ErrRateLimit("throttled")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return model.ErrQuota("AI credits exhausted. Please add credits to continue.")
	})
	assert.Equal(t, 1, calls, "quota exhaustion must not be retried")
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
}

func TestRetryPolicy_ExhaustedKeepsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2}

	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		return model.ErrRateLimit("throttled")
	})

	assert.Equal(t, model.ErrKindRateLimit, model.KindOf(err))
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := policy.Execute(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return model.ErrRateLimit("throttled")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, model.ErrKindRateLimit, model.KindOf(err))
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, policy.delay(1))
	assert.Equal(t, 200*time.Millisecond, policy.delay(2))
	assert.Equal(t, 300*time.Millisecond, policy.delay(3))
}

func TestRetryPolicyFromConfig_DoublesDelay(t *testing.T) {
	policy := RetryPolicyFromConfig(model.RetryConfig{MaxAttempts: 4, BaseDelayMS: 100, MaxDelayMS: 1000})

	assert.Equal(t, 100*time.Millisecond, policy.delay(1))
	assert.Equal(t, 200*time.Millisecond, policy.delay(2))
	assert.Equal(t, 400*time.Millisecond, policy.delay(3))
	assert.Equal(t, 800*time.Millisecond, policy.delay(4))
	assert.Equal(t, time.Second, policy.delay(5))
}
