// Package config loads the runtime configuration: a YAML file, then
// environment overrides, then validation. A missing file is not an error;
// defaults and the environment are used instead.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/core/grounding"
	"github.com/leofalp/mule/providers/ai/ollama"
	"github.com/leofalp/mule/providers/ai/openrouter"
	"github.com/leofalp/mule/providers/embedding"
	"github.com/leofalp/mule/providers/fetch"
	"github.com/leofalp/mule/providers/observability/otelobs"
	"github.com/leofalp/mule/providers/observability/slogobs"
	"github.com/leofalp/mule/providers/search"
)

// Accepted enum values.
const (
	SearchDuckDuckGo = "duckduckgo"
	SearchBrave      = "brave"

	CacheNone  = "none"
	CacheRedis = "redis"

	StorePostgres = "postgres"
	StoreChromem  = "chromem"

	EmbeddingOllama     = "ollama"
	EmbeddingOpenRouter = "openrouter"
)

// DefaultModel is the local model used when none is configured.
const DefaultModel = "phi4-mini"

// Config is the root configuration.
type Config struct {
	// Provider is "local" or "remote".
	Provider   string           `yaml:"provider"`
	Model      string           `yaml:"model"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Grounding  GroundingConfig  `yaml:"grounding"`
	Search     SearchConfig     `yaml:"search"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Redis      RedisConfig      `yaml:"redis"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Log        LogConfig        `yaml:"log"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// OllamaConfig locates the local inference server.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// OpenRouterConfig configures the remote inference path.
type OpenRouterConfig struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Title   string `yaml:"title"`
	Referer string `yaml:"referer"`
}

// DispatchConfig configures the dispatch timeout and middleware.
type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Retries enables the retry middleware when positive.
	Retries int `yaml:"retries"`
	// BreakerFailures enables the circuit breaker when positive.
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// GroundingConfig tunes the web grounding pipeline.
type GroundingConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	MinWords       int           `yaml:"min_words"`
	Blocklist      []string      `yaml:"blocklist"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`
}

// SearchConfig picks the search backend.
type SearchConfig struct {
	Provider      string  `yaml:"provider"`
	BraveAPIKey   string  `yaml:"brave_api_key"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// FetchConfig tunes page fetching.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Cache    string        `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RedisConfig locates the page cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig picks the similarity store backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	PostgresURL string `yaml:"postgres_url"`
	ChromemPath string `yaml:"chromem_path"`
	// IterativeScan turns on pgvector's iterative HNSW scan for searches.
	IterativeScan bool `yaml:"iterative_scan"`
}

// EmbeddingConfig picks the embedding backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Dim      int    `yaml:"dim"`
}

// LogConfig configures slogobs.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// TracingConfig selects the OpenTelemetry exporter.
type TracingConfig struct {
	Exporter string `yaml:"exporter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: dispatch.Local.String(),
		Model:    DefaultModel,
		Ollama:   OllamaConfig{URL: ollama.DefaultBaseURL},
		OpenRouter: OpenRouterConfig{
			URL:   openrouter.DefaultBaseURL,
			Title: "mule",
		},
		Dispatch: DispatchConfig{
			Timeout:        dispatch.DefaultTimeout,
			BreakerTimeout: 30 * time.Second,
		},
		Grounding: GroundingConfig{
			MaxConcurrency: grounding.DefaultMaxConcurrency,
			MinWords:       grounding.DefaultMinWords,
			Blocklist:      grounding.DefaultBlocklist(),
			SearchTimeout:  grounding.DefaultSearchTimeout,
		},
		Search: SearchConfig{
			Provider:      SearchDuckDuckGo,
			RatePerSecond: 1,
			Burst:         2,
		},
		Fetch: FetchConfig{
			Timeout:  fetch.DefaultTimeout,
			Cache:    CacheNone,
			CacheTTL: time.Hour,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Store: StoreConfig{
			Backend:     StoreChromem,
			ChromemPath: ".mule/vectordb",
		},
		Embedding: EmbeddingConfig{
			Provider: EmbeddingOllama,
			Model:    embedding.DefaultOllamaModel,
			Dim:      768,
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(slogobs.FormatCompact),
			File:   slogobs.DefaultLogFile,
		},
		Tracing: TracingConfig{Exporter: otelobs.ExporterNone},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty or missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overwrites fields from MULE_* variables and the
// well-known credentials.
func (c *Config) ApplyEnvOverrides() {
	setString(&c.Provider, "MULE_PROVIDER")
	setString(&c.Model, "MULE_MODEL")
	setString(&c.Ollama.URL, "OLLAMA_HOST")
	c.Ollama.URL = ollama.NormalizeBaseURL(c.Ollama.URL)
	setString(&c.OpenRouter.URL, "MULE_OPENROUTER_URL")
	setString(&c.OpenRouter.APIKey, openrouter.EnvAPIKey)
	setDuration(&c.Dispatch.Timeout, "MULE_DISPATCH_TIMEOUT")
	setInt(&c.Dispatch.Retries, "MULE_DISPATCH_RETRIES")
	setString(&c.Search.Provider, "MULE_SEARCH_PROVIDER")
	setString(&c.Search.BraveAPIKey, search.EnvBraveAPIKey)
	setString(&c.Fetch.Cache, "MULE_FETCH_CACHE")
	setString(&c.Redis.Addr, "MULE_REDIS_ADDR")
	setString(&c.Redis.Password, "MULE_REDIS_PASSWORD")
	setString(&c.Store.Backend, "MULE_STORE_BACKEND")
	setString(&c.Store.PostgresURL, "MULE_POSTGRES_URL")
	setString(&c.Store.ChromemPath, "MULE_CHROMEM_PATH")
	setString(&c.Embedding.Provider, "MULE_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "MULE_EMBEDDING_MODEL")
	setInt(&c.Embedding.Dim, "MULE_EMBEDDING_DIM")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Level, "MULE_LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Log.Format, "MULE_LOG_FORMAT")
	setString(&c.Log.File, "MULE_LOG_FILE")
	setString(&c.Tracing.Exporter, "MULE_TRACING_EXPORTER")
}

// Selection returns the configured inference path.
func (c *Config) Selection() dispatch.Selection {
	s, _ := dispatch.ParseSelection(c.Provider)
	return s
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
