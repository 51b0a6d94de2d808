package grounding

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leofalp/mule/core/extract"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/fetch"
	"github.com/leofalp/mule/providers/observability"
	"github.com/leofalp/mule/providers/search"
)

const (
	// DefaultMinWords is the word floor below which a page is treated as
	// boilerplate or paywall.
	DefaultMinWords = 100
	// DefaultMaxConcurrency caps simultaneous page fetches.
	DefaultMaxConcurrency = 8
	// DefaultSearchTimeout bounds the search call.
	DefaultSearchTimeout = 20 * time.Second
)

// PageFetcher fetches a page and reports failure as a Response that is not OK.
type PageFetcher interface {
	Get(ctx context.Context, url string) fetch.Response
}

// Pipeline runs grounding queries. It is safe for concurrent use.
type Pipeline struct {
	searcher       search.Searcher
	fetcher        PageFetcher
	extractor      *extract.Extractor
	blocklist      []string
	minWords       int
	maxConcurrency int
	searchTimeout  time.Duration
	logger         *slog.Logger
	observer       observability.Provider
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBlocklist replaces the default blocklist.
func WithBlocklist(hosts []string) Option {
	return func(p *Pipeline) {
		p.blocklist = hosts
	}
}

// WithMinWords sets the word floor.
func WithMinWords(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.minWords = n
		}
	}
}

// WithMaxConcurrency caps simultaneous fetches. Values below 1 are ignored.
func WithMaxConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithSearchTimeout bounds the search call. Zero disables the bound.
func WithSearchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.searchTimeout = d
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver sets the tracing and metrics provider. When unset, the one
// carried by the context is used.
func WithObserver(observer observability.Provider) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// New builds a Pipeline on the given collaborators.
func New(searcher search.Searcher, fetcher PageFetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:       searcher,
		fetcher:        fetcher,
		extractor:      extract.New(),
		blocklist:      DefaultBlocklist(),
		minWords:       DefaultMinWords,
		maxConcurrency: DefaultMaxConcurrency,
		searchTimeout:  DefaultSearchTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ground returns at most n documents for query, in search order, each with
// at least the configured number of words. Failures along the way shrink the
// result rather than failing it.
func (p *Pipeline) Ground(ctx context.Context, query string, n int, allowed extract.TagSet) []extract.Document {
	query = strings.TrimSpace(query)
	if n <= 0 || query == "" {
		return nil
	}

	observer := observability.ResolveObserver(ctx, p.observer)
	ctx, span := observability.StartSpan(ctx, observer, observability.SpanGrounding,
		observability.String(observability.AttrGroundingQuery, query),
		observability.Int(observability.AttrGroundingRequested, n),
	)
	defer span.End()

	sw := utils.StartStopwatch()
	candidates := p.candidates(ctx, query, 2*n)
	span.AddEvent(observability.EventSearchCompleted,
		observability.Int(observability.AttrGroundingCandidates, len(candidates)),
	)

	documents := make([]extract.Document, len(candidates))
	group := new(errgroup.Group)
	group.SetLimit(p.maxConcurrency)
	for i, candidate := range candidates {
		group.Go(func() error {
			resp := p.fetcher.Get(ctx, candidate.URL)
			if !resp.OK() {
				span.AddEvent(observability.EventFetchFailed,
					observability.String(observability.AttrFetchURL, candidate.URL),
				)
				observability.AddCounter(ctx, observer, observability.MetricFetchFailures, 1)
				return nil
			}
			documents[i] = p.extractor.Extract(resp.Text(), candidate.Title, candidate.URL, allowed)
			return nil
		})
	}
	_ = group.Wait()

	results := make([]extract.Document, 0, n)
	for _, doc := range documents {
		if doc.Content == "" || utils.WordCount(doc.Content) < p.minWords {
			continue
		}
		results = append(results, doc)
		if len(results) == n {
			break
		}
	}

	span.SetAttributes(observability.Int(observability.AttrGroundingReturned, len(results)))
	span.SetStatus(observability.StatusOK, "")
	observability.AddCounter(ctx, observer, observability.MetricGroundingDocuments, int64(len(results)))
	p.logger.DebugContext(ctx, "Grounding completed",
		"query", query,
		"requested", n,
		"candidates", len(candidates),
		"returned", len(results),
		"duration", sw.Elapsed(),
	)
	return results
}

// candidates searches and applies the blocklist.
func (p *Pipeline) candidates(ctx context.Context, query string, max int) []search.Result {
	if p.searcher == nil {
		return nil
	}
	searchCtx := ctx
	if p.searchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, p.searchTimeout)
		defer cancel()
	}

	hits, err := p.searcher.Search(searchCtx, query, max)
	if err != nil {
		p.logger.WarnContext(ctx, "Search failed", "query", query, "error", err)
		return nil
	}

	kept := make([]search.Result, 0, len(hits))
	for _, hit := range hits {
		if Blocked(hit.URL, p.blocklist) {
			continue
		}
		kept = append(kept, hit)
	}
	return kept
}
