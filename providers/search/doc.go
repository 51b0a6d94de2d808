// Package search provides web search backends used by the grounding pipeline.
//
// Every backend implements [Searcher] and returns plain {Title, URL} hits in
// engine order. [DuckDuckGo] scrapes the keyless HTML endpoint, [Brave] calls
// the Brave Search API, and [RateLimited] wraps either one with a token bucket
// so bursts of grounding calls do not trip the engine's abuse protection.
package search
