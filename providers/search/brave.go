package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/fetch"
)

const (
	// DefaultBraveURL is the Brave Search API base URL.
	DefaultBraveURL = "https://api.search.brave.com/res/v1"
	// EnvBraveAPIKey names the environment variable holding the subscription token.
	EnvBraveAPIKey = "BRAVE_SEARCH_API_KEY"

	braveDefaultCount = 10
	braveMaxCount     = 20
)

// Brave queries the Brave Search web endpoint.
type Brave struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Searcher = (*Brave)(nil)

// NewBrave reads the API key from BRAVE_SEARCH_API_KEY.
func NewBrave() *Brave {
	return &Brave{
		baseURL: DefaultBraveURL,
		apiKey:  os.Getenv(EnvBraveAPIKey),
		client:  fetch.NewHTTPClient(fetch.DefaultTimeout),
	}
}

func (b *Brave) WithAPIKey(apiKey string) *Brave {
	b.apiKey = apiKey
	return b
}

func (b *Brave) WithBaseURL(baseURL string) *Brave {
	b.baseURL = strings.TrimSuffix(baseURL, "/")
	return b
}

func (b *Brave) WithHttpClient(client *http.Client) *Brave {
	b.client = client
	return b
}

type braveResponse struct {
	Web *struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web,omitempty"`
}

// Search implements Searcher. The API caps a page at 20 results.
func (b *Brave) Search(ctx context.Context, query string, max int) ([]Result, error) {
	query, err := validate(query)
	if err != nil {
		return nil, err
	}
	if b.apiKey == "" {
		return nil, fmt.Errorf("brave: %w: %s is not set", ErrMissingAPIKey, EnvBraveAPIKey)
	}

	count := max
	if count <= 0 {
		count = braveDefaultCount
	}
	if count > braveMaxCount {
		count = braveMaxCount
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("count", strconv.Itoa(count))
	params.Add("result_filter", "web")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: error making request: %w", err)
	}
	defer utils.CloseWithLog(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetch.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("brave: error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave: unexpected status code %d: %s", resp.StatusCode, utils.TruncateString(string(body), utils.DefaultMaxStringLength))
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("brave: error parsing response: %w", err)
	}
	if parsed.Web == nil {
		return nil, nil
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, Result{
			Title:       cleanHTML(r.Title),
			URL:         r.URL,
			Description: cleanHTML(r.Description),
		})
	}
	return dedupe(results, max), nil
}

// cleanHTML removes the emphasis markup Brave puts around matched terms.
func cleanHTML(s string) string {
	return strings.NewReplacer(
		"<strong>", "", "</strong>", "",
		"<em>", "", "</em>", "",
		"<b>", "", "</b>", "",
	).Replace(s)
}
