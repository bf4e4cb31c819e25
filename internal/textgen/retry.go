package textgen

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig bounds the retry policy around a provider call.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, first try included.
	MaxAttempts uint
	// BaseDelay seeds the exponential backoff: base * 2^attempt.
	BaseDelay time.Duration
	// MaxJitter is added uniformly at random on top of each backoff delay.
	MaxJitter time.Duration
}

// Retrying decorates a Provider with exponential backoff plus jitter on
// retryable failures. Non-retryable failures (client errors) surface
// immediately. It issues one call at a time; the generation worker's
// sequential loop is its only caller.
type Retrying struct {
	provider Provider
	cfg      RetryConfig

	// OnRetry, when set, is invoked before each re-attempt with the attempt
	// number (0-based) and the error that caused it.
	OnRetry func(attempt uint, err error)
}

// NewRetrying wraps provider with the given retry policy.
func NewRetrying(provider Provider, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = 100 * time.Millisecond
	}
	return &Retrying{provider: provider, cfg: cfg}
}

func (r *Retrying) Name() string { return r.provider.Name() }

// Generate calls the wrapped provider, retrying rate-limit, server, and
// network failures up to MaxAttempts with non-decreasing backoff. When
// retries are exhausted the last error is wrapped in ErrUnavailable.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := retry.Do(
		func() error {
			text, err := r.provider.Generate(ctx, prompt)
			if err != nil {
				return err
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.MaxAttempts),
		retry.Delay(r.cfg.BaseDelay),
		retry.MaxJitter(r.cfg.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			if r.OnRetry != nil {
				r.OnRetry(n, err)
			}
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if IsRetryable(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out, nil
}

var _ Provider = (*Retrying)(nil)
