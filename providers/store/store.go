// Package store defines the similarity store used for retrieval: named
// sources, namespaced documents deduplicated by content hash, and
// cosine-distance search.
//
// Two implementations exist: [pgstore] over PostgreSQL with the pgvector
// extension and [chromemstore], an embedded store for local use.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// Defaults applied by Search when the caller passes zero values.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.7
)

// ErrNotFound is returned when a source or namespace has no rows.
var ErrNotFound = errors.New("store: not found")

// Source describes where a batch of documents came from. Name is unique.
type Source struct {
	Name   string
	Author string
	Type   string
}

// Result is a stored document as returned by Search and GetAll.
// Score is 1 - Distance, so higher is closer. GetAll leaves both zero.
type Result struct {
	ID        string
	Text      string
	Namespace string
	SourceID  string
	Metadata  map[string]any
	Distance  float64
	Score     float64
}

// Store is a namespaced similarity store.
type Store interface {
	// UpsertSource creates the source or updates its author and type,
	// returning its ID.
	UpsertSource(ctx context.Context, source Source) (string, error)

	// UpsertDocuments embeds and stores texts under namespace. A text that
	// already exists in the namespace is skipped. It returns the number of
	// new documents.
	UpsertDocuments(ctx context.Context, texts []string, sourceID, namespace string, metadata map[string]any) (int, error)

	// Search returns up to topK documents of namespace whose cosine distance
	// to query is below threshold, closest first.
	Search(ctx context.Context, query, namespace string, topK int, threshold float64) ([]Result, error)

	// GetAll returns every document of namespace.
	GetAll(ctx context.Context, namespace string) ([]Result, error)
}

// TextHash is the deduplication key of a document within a namespace.
func TextHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SearchDefaults replaces non-positive topK and threshold with the defaults.
func SearchDefaults(topK int, threshold float64) (int, float64) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return topK, threshold
}
