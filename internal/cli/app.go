// Package cli implements the mule command line. Every command shares one
// App, which loads the configuration and builds the agent runtime and the
// similarity store on demand.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/core/config"
	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/core/dispatch/middleware"
	"github.com/leofalp/mule/core/grounding"
	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/ai/ollama"
	"github.com/leofalp/mule/providers/ai/openrouter"
	"github.com/leofalp/mule/providers/cache/rediscache"
	"github.com/leofalp/mule/providers/embedding"
	"github.com/leofalp/mule/providers/fetch"
	"github.com/leofalp/mule/providers/observability"
	"github.com/leofalp/mule/providers/observability/otelobs"
	"github.com/leofalp/mule/providers/observability/slogobs"
	"github.com/leofalp/mule/providers/search"
	"github.com/leofalp/mule/providers/store"
	"github.com/leofalp/mule/providers/store/chromemstore"
	"github.com/leofalp/mule/providers/store/pgstore"
)

// App holds the state shared by every command of one execution. Components
// are built lazily so commands only pay for what they use.
type App struct {
	stdout io.Writer
	stderr io.Writer

	// Injected collaborators replace the configured ones when set.
	provider ai.Provider
	searcher search.Searcher
	fetcher  grounding.PageFetcher
	store    store.Store

	flags    rootFlags
	cfg      *config.Config
	logger   *slog.Logger
	observer observability.Provider
	runtime  *agent.Runtime
	closers  []func(context.Context) error
}

// Option configures an App.
type Option func(*App)

// WithOutput sets the writers for command output and logs.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithProvider serves both the local and the remote path with provider.
func WithProvider(provider ai.Provider) Option {
	return func(a *App) {
		a.provider = provider
	}
}

// WithSearcher replaces the configured search backend.
func WithSearcher(searcher search.Searcher) Option {
	return func(a *App) {
		a.searcher = searcher
	}
}

// WithPageFetcher replaces the HTTP page fetcher.
func WithPageFetcher(fetcher grounding.PageFetcher) Option {
	return func(a *App) {
		a.fetcher = fetcher
	}
}

// WithStore replaces the configured similarity store.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// NewApp creates an App writing to the process standard streams by default.
func NewApp(opts ...Option) *App {
	a := &App{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line args and releases every resource opened
// along the way.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	defer a.close(context.WithoutCancel(ctx))
	return root.ExecuteContext(ctx)
}

// Execute is called by main.main.
func Execute() {
	if err := NewApp().Execute(context.Background(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration, applies the persistent flags and installs
// logging and tracing.
func (a *App) setup(ctx context.Context) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}
	if a.flags.remote {
		cfg.Provider = dispatch.Remote.String()
	}
	if a.flags.model != "" {
		cfg.Model = a.flags.model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logs := slogobs.New(
		slogobs.WithFormat(slogobs.ParseFormat(cfg.Log.Format)),
		slogobs.WithLevel(slogobs.ParseLogLevel(cfg.Log.Level)),
		slogobs.WithOutput(a.stderr),
		slogobs.WithFile(cfg.Log.File),
	)
	a.logger = logs.Logger()
	slog.SetDefault(a.logger)
	a.closers = append(a.closers, func(context.Context) error { return logs.Close() })

	shutdown, err := otelobs.Setup(ctx, cfg.Tracing.Exporter, stdouttrace.WithWriter(a.stderr))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)
	if cfg.Tracing.Exporter == otelobs.ExporterStdout {
		a.observer = otelobs.New()
	} else {
		a.observer = logs
	}

	a.logger.Debug("Configuration loaded",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"store", cfg.Store.Backend,
		"search", cfg.Search.Provider,
	)
	return nil
}

// close runs the registered closers in reverse order.
func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

// Runtime builds the agent runtime on first use.
func (a *App) Runtime(ctx context.Context) (*agent.Runtime, error) {
	if a.runtime != nil {
		return a.runtime, nil
	}

	local, remote, err := a.providers()
	if err != nil {
		return nil, err
	}

	cfg := a.cfg
	middlewares := []dispatch.Middleware{
		middleware.NewLoggingMiddleware(a.logger, middleware.LogLevelStandard),
	}
	if cfg.Dispatch.Retries > 0 {
		middlewares = append(middlewares, middleware.NewRetryMiddleware(middleware.RetryConfig{MaxRetries: cfg.Dispatch.Retries}))
	}
	if cfg.Dispatch.BreakerFailures > 0 {
		middlewares = append(middlewares, middleware.NewCircuitBreakerMiddleware(middleware.CircuitBreakerConfig{
			MaxFailures: cfg.Dispatch.BreakerFailures,
			Timeout:     cfg.Dispatch.BreakerTimeout,
		}, a.logger))
	}

	dispatcher := dispatch.New(local, remote,
		dispatch.WithMiddleware(middlewares...),
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithLogger(a.logger),
		dispatch.WithObserver(a.observer),
	)

	fetcher, err := a.pageFetcher(ctx)
	if err != nil {
		return nil, err
	}
	pipeline := grounding.New(a.webSearcher(), fetcher,
		grounding.WithBlocklist(cfg.Grounding.Blocklist),
		grounding.WithMinWords(cfg.Grounding.MinWords),
		grounding.WithMaxConcurrency(cfg.Grounding.MaxConcurrency),
		grounding.WithSearchTimeout(cfg.Grounding.SearchTimeout),
		grounding.WithLogger(a.logger),
		grounding.WithObserver(a.observer),
	)

	a.runtime = &agent.Runtime{
		Dispatcher: dispatcher,
		Grounding:  pipeline,
		Logger:     a.logger,
		Observer:   a.observer,
	}
	return a.runtime, nil
}

// providers returns the local and remote inference backends. The remote
// backend is nil when no key is configured and local is selected.
func (a *App) providers() (ai.Provider, ai.Provider, error) {
	if a.provider != nil {
		return a.provider, a.provider, nil
	}

	cfg := a.cfg
	local := ollama.New().WithBaseURL(cfg.Ollama.URL)

	var remote ai.Provider
	router, err := openrouter.New(openrouter.Options{
		APIKey:  cfg.OpenRouter.APIKey,
		BaseURL: cfg.OpenRouter.URL,
		Title:   cfg.OpenRouter.Title,
		Referer: cfg.OpenRouter.Referer,
	})
	switch {
	case err == nil:
		remote = router
	case errors.Is(err, openrouter.ErrMissingAPIKey) && cfg.Selection() == dispatch.Local:
		a.logger.Debug("Remote path disabled", "reason", err)
	default:
		return nil, nil, err
	}
	return local, remote, nil
}

func (a *App) webSearcher() search.Searcher {
	if a.searcher != nil {
		return a.searcher
	}

	cfg := a.cfg.Search
	var searcher search.Searcher
	switch cfg.Provider {
	case config.SearchBrave:
		searcher = search.NewBrave().WithAPIKey(cfg.BraveAPIKey)
	default:
		searcher = search.NewDuckDuckGo()
	}
	return search.NewRateLimited(searcher, cfg.RatePerSecond, cfg.Burst)
}

func (a *App) pageFetcher(ctx context.Context) (grounding.PageFetcher, error) {
	if a.fetcher != nil {
		return a.fetcher, nil
	}

	cfg := a.cfg
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithLogger(a.logger),
	}
	if cfg.Fetch.Cache == config.CacheRedis {
		cache, err := rediscache.New(ctx, rediscache.Config{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
		opts = append(opts, fetch.WithCache(cache, cfg.Fetch.CacheTTL))
	}

	a.fetcher = fetch.New(opts...)
	return a.fetcher, nil
}

// Store opens the configured similarity store on first use.
func (a *App) Store(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}

	cfg := a.cfg.Store
	switch cfg.Backend {
	case config.StorePostgres:
		opts := []pgstore.Option{
			pgstore.WithDimension(a.cfg.Embedding.Dim),
			pgstore.WithLogger(a.logger),
		}
		if cfg.IterativeScan {
			opts = append(opts, pgstore.WithIterativeScan())
		}
		pg, err := pgstore.Open(ctx, cfg.PostgresURL, embedder, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { pg.Close(); return nil })
		if err := pg.Ping(ctx); err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.store = pg
	default:
		chromem, err := chromemstore.Open(cfg.ChromemPath, embedder, chromemstore.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.store = chromem
	}
	return a.store, nil
}

func (a *App) embedder() (embedding.Embedder, error) {
	cfg := a.cfg
	switch cfg.Embedding.Provider {
	case config.EmbeddingOpenRouter:
		router, err := openrouter.New(openrouter.Options{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.URL,
			Title:   cfg.OpenRouter.Title,
			Referer: cfg.OpenRouter.Referer,
		})
		if err != nil {
			return nil, fmt.Errorf("cli: embedding: %w", err)
		}
		return embedding.NewOpenRouter(router.Client(), cfg.Embedding.Model, cfg.Embedding.Dim), nil
	default:
		return embedding.NewOllama(cfg.Ollama.URL, cfg.Embedding.Model), nil
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.stdout, args...)
}
