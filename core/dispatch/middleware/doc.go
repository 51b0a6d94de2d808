// Package middleware provides [dispatch.Middleware] implementations for the
// dispatcher. Each one is built by a New* function and passed to
// [dispatch.WithMiddleware].
//
//   - [NewLoggingMiddleware]: structured slog entries around every call, with
//     three verbosity levels.
//   - [NewCircuitBreakerMiddleware]: fails fast with [ErrCircuitOpen] after
//     consecutive provider failures. Each dispatch path gets its own breaker.
//   - [NewRetryMiddleware]: exponential backoff with jitter on transient
//     429/5xx failures. Not installed by default: a dispatch is a single call.
//   - [NewTimeoutMiddleware]: a per-attempt deadline, useful inside retry.
//
// Usage:
//
//	d := dispatch.New(local, remote,
//	    dispatch.WithTimeout(2*time.Minute),
//	    dispatch.WithMiddleware(
//	        middleware.NewLoggingMiddleware(logger, middleware.LogLevelStandard),
//	        middleware.NewCircuitBreakerMiddleware(middleware.CircuitBreakerConfig{}, logger),
//	    ),
//	)
//
// Middlewares execute outermost-first: the first entry runs first on the way
// in and last on the way out.
package middleware
