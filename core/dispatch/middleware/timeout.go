package middleware

import (
	"context"
	"time"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/providers/ai"
)

// NewTimeoutMiddleware bounds each call that passes through it. Placed after
// the retry middleware it bounds every attempt separately. A shorter deadline
// already on the context wins.
func NewTimeoutMiddleware(timeout time.Duration) dispatch.Middleware {
	return func(next dispatch.SendFunc) dispatch.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, request)
		}
	}
}
