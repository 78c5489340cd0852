package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"
)

var stopwords = map[string]bool{
	"the": true, "is": true, "are": true, "what": true, "your": true, "you": true,
	"of": true, "in": true, "to": true, "for": true, "and": true, "or": true, "do": true,
	"does": true, "my": true, "we": true, "our": true, "it": true, "on": true, "at": true,
	"be": true, "can": true, "with": true, "about": true, "an": true, "me": true,
}

// HashEmbedder is a deterministic bag-of-words embedder based on feature hashing.
// It needs no model server and is meant for offline runs and development.
type HashEmbedder struct {
	dimension int
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a hashing embedder, 256 dimensions when dimension <= 0
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

// EmbedStrings embeds every text independently
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dimension)
	for _, token := range Tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(token))
		vec[f.Sum32()%uint32(h.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Tokenize lowercases text, drops stopwords and one-letter words and reduces
// each word with stem
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := words[:0]
	for _, w := range words {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		tokens = append(tokens, stem(w))
	}
	return tokens
}

// stem strips the common English inflections: plural "s"/"ies" and the
// "ed"/"ing" endings of longer words
func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		w = strings.TrimSuffix(w, "ies") + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		w = strings.TrimSuffix(w, "s")
	}
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ed"):
		w = strings.TrimSuffix(w, "ed")
	case len(w) > 6 && strings.HasSuffix(w, "ing"):
		w = strings.TrimSuffix(w, "ing")
	}
	return w
}
