package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS vector`

// createSourcesSQL creates the sources table. Name is the upsert key.
const createSourcesSQL = `CREATE TABLE IF NOT EXISTS %s (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name       TEXT NOT NULL UNIQUE,
    author     TEXT NOT NULL DEFAULT '',
    type       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// createDocumentsSQL creates the documents table. text_hash is generated
// from the text so a document is stored once per namespace.
const createDocumentsSQL = `CREATE TABLE IF NOT EXISTS %s (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    text       TEXT NOT NULL,
    namespace  TEXT NOT NULL,
    text_hash  TEXT GENERATED ALWAYS AS (md5(text)) STORED,
    metadata   JSONB,
    embedding  vector(%d) NOT NULL,
    source_id  UUID REFERENCES %s (id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (text_hash, namespace)
)`

const createEmbeddingIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s USING hnsw (embedding vector_cosine_ops)`

// strict_order keeps results in ascending distance, which relaxed_order
// does not guarantee.
const iterativeScanSQL = `SET LOCAL hnsw.iterative_scan = strict_order`

const createNamespaceIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (namespace)`

// EnsureSchema creates the vector extension, both tables and their indexes
// if they do not already exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createExtensionSQL); err != nil {
		return fmt.Errorf("pgstore: create extension: %w", err)
	}

	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSourcesSQL, s.sourcesTable)); err != nil {
		return fmt.Errorf("pgstore: create sources table: %w", err)
	}

	documentsSQL := fmt.Sprintf(createDocumentsSQL, s.documentsTable, s.dimension, s.sourcesTable)
	if _, err := s.db.Exec(ctx, documentsSQL); err != nil {
		return fmt.Errorf("pgstore: create documents table: %w", err)
	}

	embeddingIdx := pgx.Identifier{"idx_" + s.documentsName + "_embedding"}.Sanitize()
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createEmbeddingIndexSQL, embeddingIdx, s.documentsTable)); err != nil {
		return fmt.Errorf("pgstore: create embedding index: %w", err)
	}

	namespaceIdx := pgx.Identifier{"idx_" + s.documentsName + "_namespace"}.Sanitize()
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createNamespaceIndexSQL, namespaceIdx, s.documentsTable)); err != nil {
		return fmt.Errorf("pgstore: create namespace index: %w", err)
	}

	return nil
}
