// Package grounding turns a query into a short list of readable source
// documents: search, blocklist, bounded concurrent fetch, extraction and a
// word-count floor. It is best effort throughout and never returns an error.
package grounding
