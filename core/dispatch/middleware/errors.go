package middleware

import "errors"

var (
	// ErrRetryExhausted is returned by the retry middleware when every attempt
	// failed. It wraps the last provider error.
	ErrRetryExhausted = errors.New("dispatch: all retry attempts exhausted")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls. It
	// wraps the underlying gobreaker error.
	ErrCircuitOpen = errors.New("dispatch: circuit open")
)
