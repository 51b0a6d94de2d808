// Package utils provides shared low-level helpers used throughout the mule
// internals: a synchronous JSON POST helper for inference and embedding
// endpoints, tolerant parsing of model output into Go types, string helpers
// for log previews and paragraph splitting, and a lap stopwatch.
//
// Key entry points: [DoPostSync] for synchronous JSON round-trips,
// [ParseStringAs] for structured model output, and [Stopwatch] for timing
// runs and benches.
package utils
