package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/openai/openai-go"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

// RetryConfig configures [NewRetryMiddleware]. Zero fields take defaults.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (default 3).
	MaxRetries int

	// InitialBackoff is the wait before the first retry (default 1s).
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff (default 30s).
	MaxBackoff time.Duration

	// BackoffFactor multiplies the backoff per attempt (default 2.0).
	BackoffFactor float64

	// JitterFraction adds up to this fraction of random jitter (default 0.1).
	JitterFraction float64

	// RetryableFunc decides whether an error is transient. Defaults to
	// [IsRetryable].
	RetryableFunc func(error) bool
}

var retryableStatusCodes = []int{429, 500, 502, 503, 504, 529}

// IsRetryable reports whether err looks transient: an OpenRouter API error or
// an Ollama [utils.StatusError] with a retryable status. Circuit-open errors
// and context errors are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return slices.Contains(retryableStatusCodes, apiErr.StatusCode)
	}
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) {
		return slices.Contains(retryableStatusCodes, statusErr.Code)
	}
	return false
}

func applyRetryDefaults(config *RetryConfig) {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = IsRetryable
	}
}

// computeBackoff returns the wait before retry number attempt (0-based).
func computeBackoff(config RetryConfig, attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter
	return time.Duration(base + jitter)
}

// NewRetryMiddleware retries transient failures with exponential backoff.
// The wait between attempts honours context cancellation.
func NewRetryMiddleware(config RetryConfig) dispatch.Middleware {
	applyRetryDefaults(&config)

	return func(next dispatch.SendFunc) dispatch.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			var lastErr error

			for attempt := 0; attempt <= config.MaxRetries; attempt++ {
				if attempt > 0 {
					backoff := computeBackoff(config, attempt-1)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(backoff):
					}
				}

				response, err := next(ctx, request)
				if err == nil {
					return response, nil
				}

				lastErr = err

				if !config.RetryableFunc(err) {
					return nil, err
				}
			}

			return nil, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
		}
	}
}
