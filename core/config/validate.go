package config

import (
	"fmt"
	"strings"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/providers/observability/otelobs"
	"github.com/leofalp/mule/providers/observability/slogobs"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and returns a *ValidationError listing
// every problem found.
func (c *Config) Validate() error {
	ve := &ValidationError{}
	c.validateInference(ve)
	c.validateGrounding(ve)
	c.validateStore(ve)
	c.validateObservability(ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func (c *Config) validateInference(ve *ValidationError) {
	selection, err := dispatch.ParseSelection(c.Provider)
	if err != nil {
		ve.Add("provider must be local or remote, got %q", c.Provider)
	}
	if selection == dispatch.Remote && c.OpenRouter.APIKey == "" {
		ve.Add("openrouter.api_key (or OPENROUTER_API_KEY) is required when provider is remote")
	}
	if c.Model == "" {
		ve.Add("model must not be empty")
	}
	if c.Dispatch.Timeout <= 0 {
		ve.Add("dispatch.timeout must be > 0")
	}
	if c.Dispatch.Retries < 0 {
		ve.Add("dispatch.retries must be >= 0")
	}
}

func (c *Config) validateGrounding(ve *ValidationError) {
	if c.Grounding.MaxConcurrency <= 0 {
		ve.Add("grounding.max_concurrency must be > 0")
	}
	if c.Grounding.MinWords < 0 {
		ve.Add("grounding.min_words must be >= 0")
	}
	switch c.Search.Provider {
	case SearchDuckDuckGo:
	case SearchBrave:
		if c.Search.BraveAPIKey == "" {
			ve.Add("search.brave_api_key (or BRAVE_SEARCH_API_KEY) is required for the brave provider")
		}
	default:
		ve.Add("search.provider must be %s or %s, got %q", SearchDuckDuckGo, SearchBrave, c.Search.Provider)
	}
	if c.Search.RatePerSecond < 0 {
		ve.Add("search.rate_per_second must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		ve.Add("fetch.timeout must be > 0")
	}
	switch c.Fetch.Cache {
	case CacheNone, "":
	case CacheRedis:
		if c.Redis.Addr == "" {
			ve.Add("redis.addr is required when fetch.cache is redis")
		}
	default:
		ve.Add("fetch.cache must be %s or %s, got %q", CacheNone, CacheRedis, c.Fetch.Cache)
	}
}

func (c *Config) validateStore(ve *ValidationError) {
	switch c.Store.Backend {
	case StorePostgres, StoreChromem:
	default:
		ve.Add("store.backend must be %s or %s, got %q", StorePostgres, StoreChromem, c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case EmbeddingOllama, EmbeddingOpenRouter:
	default:
		ve.Add("embedding.provider must be %s or %s, got %q", EmbeddingOllama, EmbeddingOpenRouter, c.Embedding.Provider)
	}
	if c.Embedding.Dim <= 0 {
		ve.Add("embedding.dim must be > 0")
	}
}

func (c *Config) validateObservability(ve *ValidationError) {
	if _, err := slogobs.LookupFormat(c.Log.Format); err != nil {
		ve.Add("log.format must be one of %v, got %q", slogobs.Formats(), c.Log.Format)
	}
	if _, ok := slogobs.LookupLogLevel(c.Log.Level); !ok {
		ve.Add("log.level must be trace, debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Tracing.Exporter {
	case otelobs.ExporterNone, otelobs.ExporterStdout, "":
	default:
		ve.Add("tracing.exporter must be %s or %s, got %q", otelobs.ExporterNone, otelobs.ExporterStdout, c.Tracing.Exporter)
	}
}
