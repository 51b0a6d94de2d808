// Package dispatch sends an agent's chat history to the selected inference
// backend and appends the response.
//
// # Provider selection
//
// The backend is chosen per call from the [Selection] carried by the context:
//
//	ctx = dispatch.WithSelection(ctx, dispatch.Remote)
//
// Set it once at the root of a run; every nested invocation inherits it and
// nothing mutates it afterwards. Without a selection the Local path is used.
//
// # Failure containment
//
// [Dispatcher.Dispatch] never returns an error. On success it appends a
// system message with the response; on failure it logs and returns the
// history unchanged, so callers detect failure by the missing response
// ([ai.ChatHistory.Response]). [Dispatcher.Send] exposes the raw error for
// callers that need it.
//
// # Middleware
//
// Each path gets its own [Middleware] chain, built once in [New]. The
// dispatch/middleware package provides logging, circuit breaker, retry and
// per-attempt timeout middleware. The overall dispatch timeout is always
// applied by the Dispatcher itself.
package dispatch
