package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes embeddings of repeated texts, mostly repeated customer questions
type CachedEmbedder struct {
	next  embedding.Embedder
	cache *lru.Cache[string, []float64]
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with an LRU of size entries
func NewCachedEmbedder(next embedding.Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// EmbedStrings returns cached vectors and embeds only the misses
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedStrings(ctx, missing, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(missing))
	}
	for n, vec := range vecs {
		c.cache.Add(missing[n], vec)
		out[slots[n]] = vec
	}
	return out, nil
}

// Len returns the number of cached vectors
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
