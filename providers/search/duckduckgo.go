package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/fetch"
)

const (
	// DefaultDuckDuckGoURL is the keyless HTML results endpoint.
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	duckDuckGoHost       = "duckduckgo.com"
)

// DuckDuckGo scrapes organic results from the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

var _ Searcher = (*DuckDuckGo)(nil)

// NewDuckDuckGo returns a searcher pointed at the public endpoint.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		baseURL:   DefaultDuckDuckGoURL,
		client:    fetch.NewHTTPClient(fetch.DefaultTimeout),
		userAgent: fetch.DefaultUserAgent,
	}
}

func (d *DuckDuckGo) WithBaseURL(baseURL string) *DuckDuckGo {
	d.baseURL = baseURL
	return d
}

func (d *DuckDuckGo) WithHttpClient(client *http.Client) *DuckDuckGo {
	d.client = client
	return d
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	query, err := validate(query)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: error making request: %w", err)
	}
	defer utils.CloseWithLog(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("duckduckgo: unexpected status code: %d", resp.StatusCode)
	}

	results, err := parseDuckDuckGo(io.LimitReader(resp.Body, fetch.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: error parsing response: %w", err)
	}
	return dedupe(results, max), nil
}

// parseDuckDuckGo walks the results page and collects every result__a anchor
// together with the snippet that follows it.
func parseDuckDuckGo(r io.Reader) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				link := resolveRedirect(attr(n, "href"))
				if link != "" {
					results = append(results, Result{
						Title: strings.TrimSpace(textContent(n)),
						URL:   link,
					})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Description == "" {
					results[len(results)-1].Description = strings.TrimSpace(textContent(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= tracking links and drops ad
// links that point back at DuckDuckGo itself.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.Host == "" || strings.HasSuffix(parsed.Host, duckDuckGoHost) {
		target := parsed.Query().Get("uddg")
		if target == "" {
			return ""
		}
		return target
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
