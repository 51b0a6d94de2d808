package search

import (
	"context"
	"errors"
	"strings"
)

// Result is a single search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Searcher returns up to max results for query, in engine ranking order.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

var (
	// ErrEmptyQuery is returned when the query is blank.
	ErrEmptyQuery = errors.New("search: empty query")
	// ErrMissingAPIKey is returned by keyed backends without credentials.
	ErrMissingAPIKey = errors.New("search: missing API key")
)

func validate(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	return query, nil
}

// dedupe drops repeated URLs and truncates to max, keeping order.
func dedupe(results []Result, max int) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
