// Package fetch is the HTTP collaborator of the grounding pipeline.
//
// [Fetcher.Do] reports why a request failed; [Fetcher.Get] is the boundary
// used by callers that must never fail and returns the zero [Response] on
// any error or non-200 status. Successful GET bodies can be cached through
// the [Cache] interface (see providers/cache/rediscache).
package fetch
