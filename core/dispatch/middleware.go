package dispatch

import (
	"context"

	"github.com/leofalp/mule/providers/ai"
)

// SendFunc sends one chat request and returns the completed response. It is
// the unit threaded through the middleware chain.
type SendFunc func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error)

// Middleware wraps a SendFunc. Middlewares are applied outermost-first: the
// first middleware in a slice runs first on the way in.
type Middleware func(next SendFunc) SendFunc

// Chain builds the send chain for provider. Every call to Chain invokes each
// middleware again, so stateful middleware (such as a circuit breaker) gets
// independent state per chain.
func Chain(provider ai.Provider, middlewares ...Middleware) SendFunc {
	var chain SendFunc = func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return provider.SendMessage(ctx, request)
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			chain = middlewares[i](chain)
		}
	}
	return chain
}
