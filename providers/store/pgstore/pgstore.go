package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/mule/providers/embedding"
	"github.com/leofalp/mule/providers/store"
)

const (
	defaultSourcesTable   = "mule_sources"
	defaultDocumentsTable = "mule_documents"

	// DefaultDimension matches nomic-embed-text.
	DefaultDimension = 768
)

// Querier abstracts the pgx query methods needed by PgStore.
// Both *pgxpool.Pool and pgx.Tx satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxQuerier extends Querier with transaction support. When the store runs
// on a TxQuerier, UpsertDocuments inserts a batch atomically.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgStore implements [store.Store] with PostgreSQL persistence.
type PgStore struct {
	db       Querier
	embedder embedding.Embedder
	logger   *slog.Logger
	close    func()

	dimension      int
	iterativeScan  bool
	sourcesTable   string
	documentsTable string
	documentsName  string
}

var _ store.Store = (*PgStore)(nil)

// Option configures optional PgStore behavior.
type Option func(*PgStore)

// WithTableNames overrides the default table names. Names are sanitized via
// pgx.Identifier since they are interpolated into queries.
func WithTableNames(sources, documents string) Option {
	return func(s *PgStore) {
		if sources != "" {
			s.sourcesTable = pgx.Identifier{sources}.Sanitize()
		}
		if documents != "" {
			s.documentsTable = pgx.Identifier{documents}.Sanitize()
			s.documentsName = documents
		}
	}
}

// WithDimension sets the vector dimension used by EnsureSchema.
func WithDimension(dim int) Option {
	return func(s *PgStore) {
		if dim > 0 {
			s.dimension = dim
		}
	}
}

// WithIterativeScan makes Search enable pgvector's iterative HNSW scan
// (pgvector 0.8 or later) for its own transaction. Without it the index scan
// stops after hnsw.ef_search candidates and the namespace filter is applied
// afterwards, so a small namespace in a large table can return fewer than
// topK rows. Requires a db that supports transactions.
func WithIterativeScan() Option {
	return func(s *PgStore) {
		s.iterativeScan = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *PgStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store on db. The embedder is used for both documents and
// queries, so its dimension must match the schema.
func New(db Querier, embedder embedding.Embedder, opts ...Option) *PgStore {
	pgStore := &PgStore{
		db:             db,
		embedder:       embedder,
		logger:         slog.Default(),
		dimension:      DefaultDimension,
		sourcesTable:   pgx.Identifier{defaultSourcesTable}.Sanitize(),
		documentsTable: pgx.Identifier{defaultDocumentsTable}.Sanitize(),
		documentsName:  defaultDocumentsTable,
	}
	for _, opt := range opts {
		opt(pgStore)
	}
	return pgStore
}

// Open connects a pgxpool to connString and returns a store on it. Close
// releases the pool.
func Open(ctx context.Context, connString string, embedder embedding.Embedder, opts ...Option) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	pgStore := New(pool, embedder, opts...)
	pgStore.close = pool.Close
	return pgStore, nil
}

// Close releases the pool opened by Open. It is a no-op for stores created
// with New.
func (s *PgStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// Ping verifies the database answers.
func (s *PgStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("pgstore: ping: %w", err)
	}
	return nil
}

// UpsertSource inserts the source or updates the author and type of the
// source with the same name.
func (s *PgStore) UpsertSource(ctx context.Context, source store.Source) (string, error) {
	if source.Name == "" {
		return "", fmt.Errorf("pgstore: upsert source: name is required")
	}

	query := fmt.Sprintf(`INSERT INTO %s (name, author, type) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET author = EXCLUDED.author, type = EXCLUDED.type
		RETURNING id::text`, s.sourcesTable)

	var id string
	if err := s.db.QueryRow(ctx, query, source.Name, source.Author, source.Type).Scan(&id); err != nil {
		return "", fmt.Errorf("pgstore: upsert source: %w", err)
	}
	return id, nil
}

// SourceID returns the ID of the named source, or store.ErrNotFound.
func (s *PgStore) SourceID(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf(`SELECT id::text FROM %s WHERE name = $1`, s.sourcesTable)

	var id string
	err := s.db.QueryRow(ctx, query, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("pgstore: source %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("pgstore: source id: %w", err)
	}
	return id, nil
}

// UpsertDocuments embeds texts and inserts those not yet present in
// namespace. Blank texts are ignored.
func (s *PgStore) UpsertDocuments(ctx context.Context, texts []string, sourceID, namespace string, metadata map[string]any) (int, error) {
	texts = nonBlank(texts)
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("pgstore: embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("pgstore: embed documents: %w", embedding.ErrCountMismatch)
	}

	metadataJSON, err := marshalNullableJSON(metadata)
	if err != nil {
		return 0, fmt.Errorf("pgstore: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (text, namespace, metadata, embedding, source_id)
		VALUES ($1, $2, $3, $4::vector, $5::uuid)
		ON CONFLICT (text_hash, namespace) DO NOTHING`, s.documentsTable)

	txQuerier, ok := s.db.(TxQuerier)
	if !ok {
		return s.insertDocuments(ctx, s.db, query, texts, vectors, namespace, metadataJSON, sourceID)
	}

	tx, err := txQuerier.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("pgstore: begin: %w", err)
	}
	inserted, err := s.insertDocuments(ctx, tx, query, texts, vectors, namespace, metadataJSON, sourceID)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.ErrorContext(ctx, "pgstore: rollback failed", "error", rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("pgstore: commit: %w", err)
	}
	return inserted, nil
}

func (s *PgStore) insertDocuments(ctx context.Context, q Querier, query string, texts []string, vectors [][]float32, namespace string, metadataJSON []byte, sourceID string) (int, error) {
	inserted := 0
	for i, text := range texts {
		tag, err := q.Exec(ctx, query, text, namespace, metadataJSON, vectorLiteral(vectors[i]), nullableString(sourceID))
		if err != nil {
			return 0, fmt.Errorf("pgstore: insert document: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	s.logger.DebugContext(ctx, "pgstore: documents upserted",
		"namespace", namespace,
		"received", len(texts),
		"inserted", inserted,
	)
	return inserted, nil
}

// Search embeds query and returns the closest documents of namespace with a
// cosine distance below threshold.
func (s *PgStore) Search(ctx context.Context, query, namespace string, topK int, threshold float64) ([]store.Result, error) {
	topK, threshold = store.SearchDefaults(topK, threshold)

	vector, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: embed query: %w", err)
	}

	sql := fmt.Sprintf(`SELECT id::text, text, namespace, COALESCE(source_id::text, ''), metadata,
		embedding <=> $1::vector AS distance
		FROM %s
		WHERE namespace = $2 AND embedding <=> $1::vector < $3
		ORDER BY distance ASC
		LIMIT $4`, s.documentsTable)

	args := []any{vectorLiteral(vector), namespace, threshold, topK}

	txQuerier, ok := s.db.(TxQuerier)
	if !s.iterativeScan || !ok {
		return searchWith(ctx, s.db, sql, args)
	}

	tx, err := txQuerier.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	rollback := func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.ErrorContext(ctx, "pgstore: rollback failed", "error", rbErr)
		}
	}

	if _, err := tx.Exec(ctx, iterativeScanSQL); err != nil {
		rollback()
		return nil, fmt.Errorf("pgstore: enable iterative scan: %w", err)
	}
	results, err := searchWith(ctx, tx, sql, args)
	if err != nil {
		rollback()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: commit: %w", err)
	}
	return results, nil
}

func searchWith(ctx context.Context, q Querier, sql string, args []any) ([]store.Result, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: search: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows, true)
	if err != nil {
		return nil, fmt.Errorf("pgstore: search: %w", err)
	}
	return results, nil
}

// GetAll returns every document of namespace in insertion order.
func (s *PgStore) GetAll(ctx context.Context, namespace string) ([]store.Result, error) {
	sql := fmt.Sprintf(`SELECT id::text, text, namespace, COALESCE(source_id::text, ''), metadata
		FROM %s WHERE namespace = $1 ORDER BY created_at ASC, id ASC`, s.documentsTable)

	rows, err := s.db.Query(ctx, sql, namespace)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get all: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows, false)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get all: %w", err)
	}
	return results, nil
}

// Count returns the number of documents in namespace.
func (s *PgStore) Count(ctx context.Context, namespace string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace = $1`, s.documentsTable)

	var count int
	if err := s.db.QueryRow(ctx, query, namespace).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgstore: count: %w", err)
	}
	return count, nil
}

func scanResults(rows pgx.Rows, withDistance bool) ([]store.Result, error) {
	results := make([]store.Result, 0)
	for rows.Next() {
		var (
			result       store.Result
			metadataJSON []byte
		)
		dest := []any{&result.ID, &result.Text, &result.Namespace, &result.SourceID, &metadataJSON}
		if withDistance {
			dest = append(dest, &result.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &result.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if withDistance {
			result.Score = 1 - result.Distance
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}

// vectorLiteral renders v in pgvector's text input format, e.g. [1,0.5,-2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*8 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// marshalNullableJSON returns nil for an empty map so the column stays NULL.
func marshalNullableJSON(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonBlank(texts []string) []string {
	kept := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			kept = append(kept, text)
		}
	}
	return kept
}
