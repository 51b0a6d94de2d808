package search

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Searcher.
type RateLimited struct {
	next    Searcher
	limiter *rate.Limiter
}

var _ Searcher = (*RateLimited)(nil)

// NewRateLimited allows perSecond queries per second with the given burst.
// A non-positive rate disables limiting.
func NewRateLimited(next Searcher, perSecond float64, burst int) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Search waits for a token, honoring ctx, then delegates.
func (r *RateLimited) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search: rate limit: %w", err)
	}
	return r.next.Search(ctx, query, max)
}
