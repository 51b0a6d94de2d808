package grounding

import (
	"net/url"
	"strings"
)

// DefaultBlocklist lists hosts whose pages are video, social or map chrome
// rather than readable text.
func DefaultBlocklist() []string {
	return []string{
		"youtube.com",
		"facebook.com",
		"instagram.com",
		"tiktok.com",
		"x.com",
		"twitter.com",
		"linkedin.com",
		"pinterest.com",
		"reddit.com",
		"maps.google.com",
	}
}

// Blocked reports whether rawURL's host equals a blocklist entry or is a
// subdomain of one. URLs that cannot be fetched over HTTP are blocked too.
func Blocked(rawURL string, blocklist []string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return true
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return true
	}
	for _, entry := range blocklist {
		entry = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(entry)), ".")
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}
