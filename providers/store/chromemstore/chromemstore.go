// Package chromemstore implements [store.Store] on chromem-go, an embedded
// vector database, for use without a PostgreSQL server. Documents of every
// namespace share one collection and are told apart by metadata.
package chromemstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/leofalp/mule/providers/embedding"
	"github.com/leofalp/mule/providers/store"
)

const (
	sourcesCollection   = "mule_sources"
	documentsCollection = "mule_documents"

	metaNamespace = "namespace"
	metaSourceID  = "source_id"
	metaTextHash  = "text_hash"
	metaCreated   = "created"
	metaExtra     = "metadata"
	metaAuthor    = "author"
	metaType      = "type"
)

// sourceIDSpace seeds the name-based source IDs so the same name always maps
// to the same ID.
var sourceIDSpace = uuid.MustParse("6f1c1a5e-8a3b-4c5d-9e2f-7a6b5c4d3e2f")

// Store implements [store.Store] on a chromem database.
type Store struct {
	db        *chromem.DB
	sources   *chromem.Collection
	documents *chromem.Collection
	embedder  embedding.Embedder
	logger    *slog.Logger
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures optional Store behavior.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates a store persisted under path, or an in-memory store when
// path is empty.
func Open(path string, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("chromemstore: open %s: %w", path, err)
		}
	}
	return New(db, embedder, opts...)
}

// New creates a store on db, creating its collections if needed.
func New(db *chromem.DB, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedOne(ctx, embedder, text)
	}

	sources, err := db.GetOrCreateCollection(sourcesCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: sources collection: %w", err)
	}
	documents, err := db.GetOrCreateCollection(documentsCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: documents collection: %w", err)
	}

	s := &Store{
		db:        db,
		sources:   sources,
		documents: documents,
		embedder:  embedder,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UpsertSource stores the source under an ID derived from its name.
func (s *Store) UpsertSource(ctx context.Context, source store.Source) (string, error) {
	if source.Name == "" {
		return "", fmt.Errorf("chromemstore: upsert source: name is required")
	}

	id := uuid.NewSHA1(sourceIDSpace, []byte(source.Name)).String()
	err := s.sources.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: source.Name,
		Metadata: map[string]string{
			metaAuthor: source.Author,
			metaType:   source.Type,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chromemstore: upsert source: %w", err)
	}
	return id, nil
}

// Source returns the stored source with the given ID, or store.ErrNotFound.
func (s *Store) Source(ctx context.Context, id string) (store.Source, error) {
	doc, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return store.Source{}, fmt.Errorf("chromemstore: source %q: %w", id, store.ErrNotFound)
	}
	return store.Source{
		Name:   doc.Content,
		Author: doc.Metadata[metaAuthor],
		Type:   doc.Metadata[metaType],
	}, nil
}

// UpsertDocuments embeds and adds the texts not yet present in namespace.
// Blank texts are ignored.
func (s *Store) UpsertDocuments(ctx context.Context, texts []string, sourceID, namespace string, metadata map[string]any) (int, error) {
	var extra string
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("chromemstore: marshal metadata: %w", err)
		}
		extra = string(encoded)
	}

	seen := make(map[string]bool, len(texts))
	fresh := make([]string, 0, len(texts))
	ids := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		id := documentID(text, namespace)
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.documents.GetByID(ctx, id); err == nil {
			continue
		}
		fresh = append(fresh, text)
		ids = append(ids, id)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, fresh)
	if err != nil {
		return 0, fmt.Errorf("chromemstore: embed documents: %w", err)
	}
	if len(vectors) != len(fresh) {
		return 0, fmt.Errorf("chromemstore: embed documents: %w", embedding.ErrCountMismatch)
	}

	created := s.now().UnixNano()
	docs := make([]chromem.Document, len(fresh))
	for i, text := range fresh {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				metaNamespace: namespace,
				metaSourceID:  sourceID,
				metaTextHash:  store.TextHash(text),
				metaCreated:   strconv.FormatInt(created+int64(i), 10),
				metaExtra:     extra,
			},
		}
	}

	if err := s.documents.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("chromemstore: add documents: %w", err)
	}

	s.logger.DebugContext(ctx, "chromemstore: documents upserted",
		"namespace", namespace,
		"received", len(texts),
		"inserted", len(docs),
	)
	return len(docs), nil
}

// Search returns up to topK documents of namespace whose cosine distance to
// query is below threshold.
func (s *Store) Search(ctx context.Context, query, namespace string, topK int, threshold float64) ([]store.Result, error) {
	topK, threshold = store.SearchDefaults(topK, threshold)

	count := s.documents.Count()
	if count == 0 {
		return []store.Result{}, nil
	}

	vector, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: embed query: %w", err)
	}

	matches, err := s.documents.QueryEmbedding(ctx, vector, min(topK, count), map[string]string{metaNamespace: namespace}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: search: %w", err)
	}

	results := make([]store.Result, 0, len(matches))
	for _, match := range matches {
		distance := 1 - float64(match.Similarity)
		if distance >= threshold {
			continue
		}
		result := toResult(match.ID, match.Content, match.Metadata)
		result.Distance = distance
		result.Score = 1 - distance
		results = append(results, result)
	}
	slices.SortStableFunc(results, func(a, b store.Result) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return results, nil
}

// GetAll returns every document of namespace in insertion order.
func (s *Store) GetAll(ctx context.Context, namespace string) ([]store.Result, error) {
	count := s.documents.Count()
	if count == 0 {
		return []store.Result{}, nil
	}

	// chromem only lists documents through a query, so the namespace itself
	// is embedded as a probe and every match is kept.
	probe, err := embedding.EmbedOne(ctx, s.embedder, namespace)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: embed probe: %w", err)
	}

	matches, err := s.documents.QueryEmbedding(ctx, probe, count, map[string]string{metaNamespace: namespace}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: get all: %w", err)
	}

	type ordered struct {
		created int64
		result  store.Result
	}
	rows := make([]ordered, 0, len(matches))
	for _, match := range matches {
		created, _ := strconv.ParseInt(match.Metadata[metaCreated], 10, 64)
		rows = append(rows, ordered{created: created, result: toResult(match.ID, match.Content, match.Metadata)})
	}
	slices.SortFunc(rows, func(a, b ordered) int {
		return cmp.Or(cmp.Compare(a.created, b.created), cmp.Compare(a.result.ID, b.result.ID))
	})

	results := make([]store.Result, len(rows))
	for i, row := range rows {
		results[i] = row.result
	}
	return results, nil
}

// Count returns the number of documents in namespace.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	all, err := s.GetAll(ctx, namespace)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func documentID(text, namespace string) string {
	return store.TextHash(text) + ":" + namespace
}

func toResult(id, content string, metadata map[string]string) store.Result {
	result := store.Result{
		ID:        id,
		Text:      content,
		Namespace: metadata[metaNamespace],
		SourceID:  metadata[metaSourceID],
	}
	if extra := metadata[metaExtra]; extra != "" {
		if err := json.Unmarshal([]byte(extra), &result.Metadata); err != nil {
			slog.Warn("chromemstore: unreadable metadata", "id", id, "error", err)
		}
	}
	return result
}
