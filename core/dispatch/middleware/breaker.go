package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/providers/ai"
)

const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures [NewCircuitBreakerMiddleware].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts periodically while closed.
	Interval time.Duration `yaml:"interval"`
	// OnBreaker, when set, receives every breaker the middleware creates.
	OnBreaker func(*gobreaker.CircuitBreaker[*ai.ChatResponse])
}

// NewCircuitBreakerMiddleware opens the circuit after MaxFailures
// consecutive failures and then fails fast with ErrCircuitOpen. A new
// breaker is created for every chain the middleware wraps, so the local and
// remote paths trip independently. Context cancellations are not counted.
func NewCircuitBreakerMiddleware(cfg CircuitBreakerConfig, logger *slog.Logger) dispatch.Middleware {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	var chains atomic.Int32
	return func(next dispatch.SendFunc) dispatch.SendFunc {
		cb := gobreaker.NewCircuitBreaker[*ai.ChatResponse](gobreaker.Settings{
			Name:        fmt.Sprintf("dispatch-%d", chains.Add(1)),
			MaxRequests: 1,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			IsExcluded: func(err error) bool {
				return errors.Is(err, context.Canceled)
			},
		})
		if cfg.OnBreaker != nil {
			cfg.OnBreaker(cb)
		}

		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			resp, err := cb.Execute(func() (*ai.ChatResponse, error) {
				return next(ctx, request)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
			}
			return resp, err
		}
	}
}
