package index

import (
	"context"
	"errors"
	"math"

	"bizassist/pkg"
)

var (
	// ErrMissingBusiness is returned when an operation is not scoped to a business
	ErrMissingBusiness = errors.New("business id is required")
	// ErrDimensionMismatch is returned when an embedding's length differs from the partition's
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Index is a document collection partitioned by business. Every operation takes
// the business id and implementations must never return chunks of another business.
type Index interface {
	// Ingest replaces all chunks of documentID with chunks. Readers observe either
	// the previous or the new chunk set, never a mix.
	Ingest(ctx context.Context, businessID, documentID string, chunks []pkg.DocumentChunk) error
	// Query returns up to k chunks ranked by similarity to embedding
	Query(ctx context.Context, businessID string, embedding []float64, k int) ([]pkg.ScoredChunk, error)
	// DeleteDocument removes all chunks of documentID
	DeleteDocument(ctx context.Context, businessID, documentID string) error
	// Count returns the number of chunks stored for a business
	Count(ctx context.Context, businessID string) (int, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, 0 for
// mismatched or zero vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
