package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/leofalp/mule/providers/store"
)

// fakeEmbedder returns fixed vectors per text and a default for unknown ones.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

func newMockStore(t *testing.T, embedder *fakeEmbedder, opts ...Option) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock, embedder, opts...), mock
}

func assertExpectations(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

// TestNew_Defaults verifies default table names and dimension.
func TestNew_Defaults(t *testing.T) {
	s := New(nil, nil)
	if s.sourcesTable != `"mule_sources"` {
		t.Errorf("sourcesTable = %s", s.sourcesTable)
	}
	if s.documentsTable != `"mule_documents"` {
		t.Errorf("documentsTable = %s", s.documentsTable)
	}
	if s.dimension != DefaultDimension {
		t.Errorf("dimension = %d, want %d", s.dimension, DefaultDimension)
	}
}

// TestWithTableNames_Sanitizes verifies identifiers are quoted.
func TestWithTableNames_Sanitizes(t *testing.T) {
	s := New(nil, nil, WithTableNames(`src"; DROP TABLE x; --`, "docs"))
	if s.sourcesTable != `"src""; DROP TABLE x; --"` {
		t.Errorf("sourcesTable not sanitized: %s", s.sourcesTable)
	}
	if s.documentsTable != `"docs"` || s.documentsName != "docs" {
		t.Errorf("documents table = %s (%s)", s.documentsTable, s.documentsName)
	}
}

// TestEnsureSchema checks every DDL statement runs with the configured
// dimension and table names.
func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{}, WithDimension(3))

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "mule_sources"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "mule_documents" .*embedding vector\(3\) NOT NULL.*REFERENCES "mule_sources"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_mule_documents_embedding" ON "mule_documents" USING hnsw`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_mule_documents_namespace"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	assertExpectations(t, mock)
}

// TestEnsureSchema_ExtensionError verifies the first failure stops the run.
func TestEnsureSchema_ExtensionError(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	mock.ExpectExec(`CREATE EXTENSION`).WillReturnError(errors.New("permission denied"))

	err := s.EnsureSchema(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	assertExpectations(t, mock)
}

// TestPing checks both the success and failure paths.
func TestPing(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(mock.NewRows([]string{"?column?"}).AddRow(1))
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("connection refused"))
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	assertExpectations(t, mock)
}

// TestUpsertSource returns the ID produced by the upsert.
func TestUpsertSource(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})

	mock.ExpectQuery(`INSERT INTO "mule_sources" .* ON CONFLICT \(name\) DO UPDATE .* RETURNING id::text`).
		WithArgs("ayurveda", "charaka", "book").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("0b8f3c8e-6d7a-4f58-9c1a-3f0c8f1b2a11"))

	id, err := s.UpsertSource(context.Background(), store.Source{Name: "ayurveda", Author: "charaka", Type: "book"})
	if err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	if id != "0b8f3c8e-6d7a-4f58-9c1a-3f0c8f1b2a11" {
		t.Errorf("id = %q", id)
	}
	assertExpectations(t, mock)
}

// TestUpsertSource_RequiresName rejects a nameless source without a query.
func TestUpsertSource_RequiresName(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	if _, err := s.UpsertSource(context.Background(), store.Source{}); err == nil {
		t.Fatal("expected error for empty name")
	}
	assertExpectations(t, mock)
}

// TestSourceID_NotFound maps pgx.ErrNoRows to store.ErrNotFound.
func TestSourceID_NotFound(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	mock.ExpectQuery(`SELECT id::text FROM "mule_sources" WHERE name = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.SourceID(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertExpectations(t, mock)
}

// TestUpsertDocuments_DuplicateCountsOnce simulates a second insert of the
// same text hitting the unique (text_hash, namespace) constraint.
func TestUpsertDocuments_DuplicateCountsOnce(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"rest well": {1, 0, 0}}}
	s, mock := newMockStore(t, embedder)
	insert := `INSERT INTO "mule_documents" .* ON CONFLICT \(text_hash, namespace\) DO NOTHING`

	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs("rest well", "health", []byte(`{"page":1}`), "[1,0,0]", "src-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insert).
		WithArgs("rest well", "health", []byte(`{"page":1}`), "[1,0,0]", "src-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	inserted, err := s.UpsertDocuments(context.Background(),
		[]string{"rest well", "rest well"}, "src-1", "health", map[string]any{"page": 1})
	if err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	assertExpectations(t, mock)
}

// TestUpsertDocuments_NullSourceAndMetadata stores NULL for empty values.
func TestUpsertDocuments_NullSourceAndMetadata(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "mule_documents"`).
		WithArgs("note", "misc", []byte(nil), "[0,0,1]", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	inserted, err := s.UpsertDocuments(context.Background(), []string{"note", "   "}, "", "misc", nil)
	if err != nil {
		t.Fatalf("UpsertDocuments: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	assertExpectations(t, mock)
}

// TestUpsertDocuments_RollsBackOnError verifies a failed insert rolls back.
func TestUpsertDocuments_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "mule_documents"`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := s.UpsertDocuments(context.Background(), []string{"a"}, "", "ns", nil); err == nil {
		t.Fatal("expected error")
	}
	assertExpectations(t, mock)
}

// TestUpsertDocuments_EmbedError returns before touching the database.
func TestUpsertDocuments_EmbedError(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{err: errors.New("ollama down")})

	if _, err := s.UpsertDocuments(context.Background(), []string{"a"}, "", "ns", nil); err == nil {
		t.Fatal("expected error")
	}
	assertExpectations(t, mock)
}

// TestUpsertDocuments_Empty skips embedding entirely.
func TestUpsertDocuments_Empty(t *testing.T) {
	embedder := &fakeEmbedder{}
	s, mock := newMockStore(t, embedder)

	inserted, err := s.UpsertDocuments(context.Background(), nil, "", "ns", nil)
	if err != nil || inserted != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", inserted, err)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times", embedder.calls)
	}
	assertExpectations(t, mock)
}

// TestSearch_BodyAche runs the body ache query against a namespace holding
// two sources and checks the score mapping and argument binding.
func TestSearch_BodyAche(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"body ache": {0.5, 0.25, 0}}}
	s, mock := newMockStore(t, embedder)

	rows := mock.NewRows([]string{"id", "text", "namespace", "source_id", "metadata", "distance"}).
		AddRow("d1", "warm sesame oil massage eases body ache", "health", "s-ayurveda", []byte(`{"chapter":"3"}`), 0.12).
		AddRow("d2", "ibuprofen reduces muscle pain", "health", "s-pharma", nil, 0.31)

	mock.ExpectQuery(`SELECT .* embedding <=> \$1::vector AS distance FROM "mule_documents" WHERE namespace = \$2 AND embedding <=> \$1::vector < \$3 ORDER BY distance ASC LIMIT \$4`).
		WithArgs("[0.5,0.25,0]", "health", 0.7, 5).
		WillReturnRows(rows)

	results, err := s.Search(context.Background(), "body ache", "health", 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "d1" || results[1].ID != "d2" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
	for _, r := range results {
		if r.Namespace != "health" {
			t.Errorf("result %s from namespace %q", r.ID, r.Namespace)
		}
		if diff := r.Score - (1 - r.Distance); diff > 1e-9 || diff < -1e-9 {
			t.Errorf("result %s: score %v != 1 - %v", r.ID, r.Score, r.Distance)
		}
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not in ascending distance")
	}
	if results[0].Metadata["chapter"] != "3" {
		t.Errorf("metadata = %v", results[0].Metadata)
	}
	if results[1].Metadata != nil {
		t.Errorf("expected nil metadata, got %v", results[1].Metadata)
	}
	assertExpectations(t, mock)
}

// TestSearch_IterativeScan verifies that the iterative HNSW scan is enabled
// inside the search transaction, so the namespace filter cannot starve topK.
func TestSearch_IterativeScan(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"body ache": {0.5, 0.25, 0}}}
	s, mock := newMockStore(t, embedder, WithIterativeScan())

	rows := mock.NewRows([]string{"id", "text", "namespace", "source_id", "metadata", "distance"}).
		AddRow("d1", "warm sesame oil massage eases body ache", "user2", "", nil, 0.2)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL hnsw.iterative_scan = strict_order`).
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(`SELECT .* FROM "mule_documents" WHERE namespace = \$2`).
		WithArgs("[0.5,0.25,0]", "user2", 0.7, 3).
		WillReturnRows(rows)
	mock.ExpectCommit()

	results, err := s.Search(context.Background(), "body ache", "user2", 3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Fatalf("unexpected results: %+v", results)
	}
	assertExpectations(t, mock)
}

// TestSearch_IterativeScanError rolls back when the setting is rejected, as
// it is by pgvector releases before 0.8.
func TestSearch_IterativeScanError(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{}, WithIterativeScan())

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL hnsw.iterative_scan`).
		WillReturnError(errors.New(`unrecognized configuration parameter "hnsw.iterative_scan"`))
	mock.ExpectRollback()

	_, err := s.Search(context.Background(), "q", "ns", 2, 0.5)
	if err == nil || !strings.Contains(err.Error(), "pgstore: enable iterative scan") {
		t.Fatalf("expected wrapped setting error, got %v", err)
	}
	assertExpectations(t, mock)
}

// TestSearch_QueryError wraps the database error.
func TestSearch_QueryError(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	mock.ExpectQuery(`SELECT`).
		WithArgs(pgxmock.AnyArg(), "ns", 0.5, 2).
		WillReturnError(errors.New("boom"))

	_, err := s.Search(context.Background(), "q", "ns", 2, 0.5)
	if err == nil {
		t.Fatal("expected error")
	}
	assertExpectations(t, mock)
}

// TestGetAll returns every document of the namespace without scores.
func TestGetAll(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	rows := mock.NewRows([]string{"id", "text", "namespace", "source_id", "metadata"}).
		AddRow("d1", "first", "health", "", nil).
		AddRow("d2", "second", "health", "s1", nil)
	mock.ExpectQuery(`SELECT .* FROM "mule_documents" WHERE namespace = \$1 ORDER BY created_at ASC`).
		WithArgs("health").
		WillReturnRows(rows)

	results, err := s.GetAll(context.Background(), "health")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(results) != 2 || results[0].Text != "first" || results[1].SourceID != "s1" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Score != 0 {
		t.Errorf("GetAll should not score, got %v", results[0].Score)
	}
	assertExpectations(t, mock)
}

// TestCount reads a single count.
func TestCount(t *testing.T) {
	s, mock := newMockStore(t, &fakeEmbedder{})
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "mule_documents" WHERE namespace = \$1`).
		WithArgs("health").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(4))

	count, err := s.Count(context.Background(), "health")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d", count)
	}
	assertExpectations(t, mock)
}

// TestVectorLiteral checks the pgvector text format.
func TestVectorLiteral(t *testing.T) {
	tests := []struct {
		in   []float32
		want string
	}{
		{nil, "[]"},
		{[]float32{1}, "[1]"},
		{[]float32{0.5, -2, 0.125}, "[0.5,-2,0.125]"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			if got := vectorLiteral(tt.in); got != tt.want {
				t.Errorf("vectorLiteral(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
