// Package pgstore implements [store.Store] on PostgreSQL with the pgvector
// extension. Documents are embedded with an [embedding.Embedder] and
// searched by cosine distance (the <=> operator).
//
// Use [Open] to connect through a pgxpool, or [New] to run on an existing
// pool or transaction. [PgStore.EnsureSchema] creates the extension, the
// sources and documents tables and the vector index; production deployments
// should manage schema migrations with dedicated tooling.
package pgstore
