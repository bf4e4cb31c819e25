package textgen_test

import (
	"context"
	"testing"
	"time"

	"github.com/irfan-workspace/kakistorychannel/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() textgen.RetryConfig {
	return textgen.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func TestRetrying_SuccessFirstAttempt(t *testing.T) {
	provider := textgen.NewScriptedProvider(
		textgen.ScriptedResult{Text: "hello"},
	)
	r := textgen.NewRetrying(provider, fastRetry())

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, provider.Calls())
}

func TestRetrying_RateLimitedThenSuccess(t *testing.T) {
	provider := textgen.NewScriptedProvider(
		textgen.ScriptedResult{Err: textgen.ErrRateLimited},
		textgen.ScriptedResult{Err: textgen.ErrRateLimited},
		textgen.ScriptedResult{Text: "third time lucky"},
	)
	r := textgen.NewRetrying(provider, fastRetry())

	var retries int
	r.OnRetry = func(_ uint, err error) {
		retries++
		assert.ErrorIs(t, err, textgen.ErrRateLimited)
	}

	out, err := r.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, 2, retries)
}

func TestRetrying_ExhaustedWrapsUnavailable(t *testing.T) {
	provider := textgen.NewFailingProvider(textgen.ErrServerError)
	r := textgen.NewRetrying(provider, fastRetry())

	_, err := r.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, textgen.ErrUnavailable)
	assert.Equal(t, 3, provider.Calls(), "attempts must not exceed the configured maximum")
}

func TestRetrying_BadRequestNotRetried(t *testing.T) {
	provider := textgen.NewFailingProvider(textgen.ErrBadRequest)
	r := textgen.NewRetrying(provider, fastRetry())

	_, err := r.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, textgen.ErrBadRequest)
	assert.NotErrorIs(t, err, textgen.ErrUnavailable)
	assert.Equal(t, 1, provider.Calls())
}

func TestRetrying_ContextCancelStops(t *testing.T) {
	provider := textgen.NewFailingProvider(textgen.ErrServerError)
	cfg := fastRetry()
	cfg.BaseDelay = 50 * time.Millisecond
	r := textgen.NewRetrying(provider, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.LessOrEqual(t, provider.Calls(), 2)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, textgen.IsRetryable(textgen.ErrRateLimited))
	assert.True(t, textgen.IsRetryable(textgen.ErrServerError))
	assert.True(t, textgen.IsRetryable(textgen.ErrNetwork))
	assert.False(t, textgen.IsRetryable(textgen.ErrBadRequest))
	assert.False(t, textgen.IsRetryable(context.Canceled))
}
