package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/leofalp/mule/internal/utils"
)

const (
	// DefaultTimeout bounds a whole request, body read included.
	DefaultTimeout = 15 * time.Second
	// DefaultUserAgent is sent when no other User-Agent is configured.
	DefaultUserAgent = "Mozilla/5.0 (compatible; mule/1.0; +https://github.com/leofalp/mule)"
	// MaxBodySize is the maximum response body size (10MB)
	MaxBodySize = 10 * 1024 * 1024
	// DialTimeout is the maximum time to wait for a TCP connection
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the maximum time to wait for TLS handshake
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is the maximum time to wait for response headers
	ResponseHeaderTimeout = 10 * time.Second
	// IdleConnTimeout is the maximum time an idle connection can be reused
	IdleConnTimeout = 90 * time.Second
	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects = 10
	// DefaultCacheTTL is how long cached pages stay valid.
	DefaultCacheTTL = 24 * time.Hour

	cacheKeyPrefix = "mule:page:"
)

var (
	// ErrEmptyURL is returned for a blank URL.
	ErrEmptyURL = errors.New("fetch: URL cannot be empty")
	// ErrUnexpectedStatus wraps any status other than 200 OK.
	ErrUnexpectedStatus = errors.New("fetch: unexpected status")
	// ErrBodyTooLarge is returned when the body exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("fetch: response body too large")
)

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Response is the result of a successful fetch. The zero value is the
// sentinel for "no page": OK reports false and Text is empty.
type Response struct {
	StatusCode int
	// URL is the final URL after redirects.
	URL  string
	Body []byte
}

// OK reports whether the response carries a 200 page.
func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Text returns the body as a string.
func (r Response) Text() string {
	return string(r.Body)
}

// Cache stores fetched page bodies by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Fetcher performs HTTP requests with explicit timeouts and turns every
// failure into the empty Response at its boundary.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	cache     Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		f.userAgent = userAgent
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithCache caches successful GET bodies for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = cache
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		f.cacheTTL = ttl
	}
}

// WithLogger sets the logger used for degraded fetches.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewHTTPClient(f.timeout)
	}
	return f
}

// NewHTTPClient returns a client with connection, TLS and header timeouts
// set, so slow or unresponsive servers cannot block indefinitely.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			IdleConnTimeout:       IdleConnTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			ForceAttemptHTTP2:     true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("too many redirects (>%d)", MaxRedirects)
			}
			return nil
		},
	}
}

// NormalizeURL trims the URL and adds an https:// scheme when none is present.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return url
}

// Get fetches url and never fails: any error is logged and the empty
// Response is returned.
func (f *Fetcher) Get(ctx context.Context, url string) Response {
	resp, err := f.Do(ctx, Request{Method: http.MethodGet, URL: url})
	if err != nil {
		f.logger.WarnContext(ctx, "Fetch failed", "url", url, "error", err)
		return Response{}
	}
	return resp
}

// Do performs req. On any failure, including non-200 statuses, it returns
// the empty Response together with the reason.
func (f *Fetcher) Do(ctx context.Context, req Request) (Response, error) {
	url := NormalizeURL(req.URL)
	if url == "" {
		return Response{}, ErrEmptyURL
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	cacheable := f.cache != nil && method == http.MethodGet
	if cacheable {
		if body, ok, err := f.cache.Get(ctx, cacheKeyPrefix+url); err != nil {
			f.logger.DebugContext(ctx, "Page cache read failed", "url", url, "error", err)
		} else if ok {
			return Response{StatusCode: http.StatusOK, URL: url, Body: body}, nil
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctxWithTimeout, method, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("fetch: create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctxWithTimeout.Err() != nil {
			return Response{}, fmt.Errorf("fetch: request timeout or canceled: %w", err)
		}
		return Response{}, fmt.Errorf("fetch: %w", err)
	}
	defer utils.CloseWithLog(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	data, err := readBody(ctxWithTimeout, resp.Body)
	if err != nil {
		return Response{}, err
	}

	result := Response{StatusCode: resp.StatusCode, URL: resp.Request.URL.String(), Body: data}
	if cacheable {
		if err := f.cache.Set(ctx, cacheKeyPrefix+url, data, f.cacheTTL); err != nil {
			f.logger.DebugContext(ctx, "Page cache write failed", "url", url, "error", err)
		}
	}
	return result, nil
}

// readBody reads at most MaxBodySize bytes in a goroutine so that context
// cancellation is honoured even during slow reads.
func readBody(ctx context.Context, body io.Reader) ([]byte, error) {
	type readResult struct {
		data []byte
		err  error
	}

	readChan := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
		readChan <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch: timeout while reading response body: %w", ctx.Err())
	case result := <-readChan:
		if result.err != nil {
			return nil, fmt.Errorf("fetch: read response body: %w", result.err)
		}
		if len(result.data) > MaxBodySize {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, MaxBodySize)
		}
		return result.data, nil
	}
}
