// Package observability defines the tracing and metrics interfaces and the
// semantic conventions used throughout mule.
//
// The central entry point is [Provider], which composes [Tracer] and
// [Metrics] into a single injectable dependency. The active [Span] travels
// through a [context.Context] via [ContextWithSpan] and [SpanFromContext], so
// lower layers such as HTTP helpers can add events without knowing which
// component started the span. [StartSpan] and the metric helpers accept a nil
// provider and degrade to no-ops.
//
// Implementations live in the slogobs (log-backed) and otelobs
// (OpenTelemetry-backed) subpackages.
package observability
