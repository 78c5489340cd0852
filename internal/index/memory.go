package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bizassist/pkg"
)

// partition holds one business's chunks
type partition struct {
	dim  int
	docs map[string][]pkg.DocumentChunk // documentID -> chunks
}

// MemoryIndex keeps one physically separate partition per business, guarded by
// a read-write lock so queries run concurrently and ingests swap atomically
type MemoryIndex struct {
	mu         sync.RWMutex
	partitions map[string]*partition
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{partitions: make(map[string]*partition)}
}

// Ingest replaces a document's chunks in one step
func (m *MemoryIndex) Ingest(ctx context.Context, businessID, documentID string, chunks []pkg.DocumentChunk) error {
	if businessID == "" {
		return ErrMissingBusiness
	}
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}

	// build the replacement outside the lock
	dim := 0
	prepared := make([]pkg.DocumentChunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of %s has no embedding", i, documentID)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		} else if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d has %d, expected %d", ErrDimensionMismatch, i, len(c.Embedding), dim)
		}
		c.BusinessID = businessID
		c.DocumentID = documentID
		c.Embedding = append([]float64(nil), c.Embedding...)
		prepared[i] = c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[businessID]
	if !ok {
		p = &partition{docs: make(map[string][]pkg.DocumentChunk)}
		m.partitions[businessID] = p
	}
	if dim > 0 && p.dim > 0 && p.dim != dim && !onlyDocument(p, documentID) {
		return fmt.Errorf("%w: business %s uses %d, got %d", ErrDimensionMismatch, businessID, p.dim, dim)
	}
	if len(prepared) == 0 {
		delete(p.docs, documentID)
		return nil
	}
	p.docs[documentID] = prepared
	p.dim = dim
	return nil
}

// Query scores only the business's own partition
func (m *MemoryIndex) Query(ctx context.Context, businessID string, embedding []float64, k int) ([]pkg.ScoredChunk, error) {
	if businessID == "" {
		return nil, ErrMissingBusiness
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[businessID]
	if !ok {
		return nil, nil
	}
	if p.dim > 0 && len(embedding) != p.dim {
		return nil, fmt.Errorf("%w: business %s uses %d, query has %d", ErrDimensionMismatch, businessID, p.dim, len(embedding))
	}

	var results []pkg.ScoredChunk
	for _, chunks := range p.docs {
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results = append(results, pkg.ScoredChunk{Chunk: c, Score: CosineSimilarity(embedding, c.Embedding)})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument drops all chunks of a document
func (m *MemoryIndex) DeleteDocument(ctx context.Context, businessID, documentID string) error {
	if businessID == "" {
		return ErrMissingBusiness
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.partitions[businessID]; ok {
		delete(p.docs, documentID)
		if len(p.docs) == 0 {
			delete(m.partitions, businessID)
		}
	}
	return nil
}

// Count returns the number of chunks of a business
func (m *MemoryIndex) Count(ctx context.Context, businessID string) (int, error) {
	if businessID == "" {
		return 0, ErrMissingBusiness
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[businessID]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, chunks := range p.docs {
		n += len(chunks)
	}
	return n, nil
}

// onlyDocument reports whether documentID is the partition's sole document,
// in which case re-ingesting it may change the dimension
func onlyDocument(p *partition, documentID string) bool {
	if len(p.docs) == 0 {
		return true
	}
	_, ok := p.docs[documentID]
	return ok && len(p.docs) == 1
}
