package index

import (
	"context"
	"database/sql"
	"fmt"

	"bizassist/pkg"

	"github.com/pgvector/pgvector-go"
)

// PgVectorSchema creates the chunk table used by PgVectorIndex
const PgVectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS document_chunks (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunk_text  TEXT NOT NULL,
	embedding   vector NOT NULL
);
CREATE INDEX IF NOT EXISTS document_chunks_business_idx ON document_chunks (business_id, document_id);
`

// PgVectorIndex stores chunks in Postgres with the pgvector extension. The
// business_id predicate is part of every statement.
type PgVectorIndex struct {
	db *sql.DB
}

// NewPgVectorIndex wraps an open database handle
func NewPgVectorIndex(db *sql.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

// Migrate creates the table when missing
func (p *PgVectorIndex) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, PgVectorSchema); err != nil {
		return fmt.Errorf("failed to migrate document_chunks: %w", err)
	}
	return nil
}

// Ingest replaces a document's chunks inside one transaction
func (p *PgVectorIndex) Ingest(ctx context.Context, businessID, documentID string, chunks []pkg.DocumentChunk) error {
	if businessID == "" {
		return ErrMissingBusiness
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ingest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE business_id = $1 AND document_id = $2`,
		businessID, documentID); err != nil {
		return fmt.Errorf("failed to clear document %s: %w", documentID, err)
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (id, business_id, document_id, chunk_index, chunk_text, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, businessID, documentID, c.ChunkIndex, c.Text, pgvector.NewVector(toFloat32(c.Embedding))); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest: %w", err)
	}
	return nil
}

// Query ranks the business's chunks by cosine distance
func (p *PgVectorIndex) Query(ctx context.Context, businessID string, embedding []float64, k int) ([]pkg.ScoredChunk, error) {
	if businessID == "" {
		return nil, ErrMissingBusiness
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, business_id, document_id, chunk_index, chunk_text, 1 - (embedding <=> $2) AS score
		 FROM document_chunks
		 WHERE business_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		businessID, pgvector.NewVector(toFloat32(embedding)), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []pkg.ScoredChunk
	for rows.Next() {
		var sc pkg.ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.BusinessID, &sc.Chunk.DocumentID,
			&sc.Chunk.ChunkIndex, &sc.Chunk.Text, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if sc.Chunk.BusinessID != businessID {
			return nil, fmt.Errorf("chunk %s belongs to %s, not %s", sc.Chunk.ID, sc.Chunk.BusinessID, businessID)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return results, nil
}

// DeleteDocument removes a document's chunks
func (p *PgVectorIndex) DeleteDocument(ctx context.Context, businessID, documentID string) error {
	if businessID == "" {
		return ErrMissingBusiness
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE business_id = $1 AND document_id = $2`,
		businessID, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of chunks of a business
func (p *PgVectorIndex) Count(ctx context.Context, businessID string) (int, error) {
	if businessID == "" {
		return 0, ErrMissingBusiness
	}
	var n int
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE business_id = $1`, businessID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
