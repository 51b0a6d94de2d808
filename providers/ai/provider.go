package ai

import "context"

// Provider is the interface every inference backend implements. A call is a
// single request/response cycle: no streaming, no retries inside the
// provider. Resilience policies belong to the dispatch middleware chain.
type Provider interface {
	// SendMessage sends a chat request and returns the completed response.
	// Returns an error if the call fails, the context is cancelled, or the
	// response lacks the expected content field.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// Name identifies the provider in logs and span attributes.
	Name() string
}
