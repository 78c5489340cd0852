package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/ollama/ollama/api"
)

// DefaultOllamaModel is used when no model is configured
const DefaultOllamaModel = "nomic-embed-text"

// OllamaEmbedder implements eino's embedding.Embedder on a local Ollama server.
// The same instance must serve ingestion and queries so vectors stay comparable.
type OllamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

var _ embedding.Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an embedder using OLLAMA_HOST (default http://localhost:11434).
// A dimension of 0 disables the length check.
func NewOllamaEmbedder(model string, dimension int) (*OllamaEmbedder, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewOllamaEmbedderWithClient(client, model, dimension), nil
}

// NewOllamaEmbedderWithClient wraps an existing Ollama client
func NewOllamaEmbedderWithClient(client *api.Client, model string, dimension int) *OllamaEmbedder {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEmbedder{client: client, model: model, dimension: dimension}
}

// Model returns the configured embedding model name
func (o *OllamaEmbedder) Model() string {
	return o.model
}

// EmbedStrings embeds texts in a single request
func (o *OllamaEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if o.dimension > 0 && len(emb) != o.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d (model: %s)",
				i, len(emb), o.dimension, o.model)
		}
		vec := make([]float64, len(emb))
		for j, f := range emb {
			vec[j] = float64(f)
		}
		out[i] = vec
	}
	return out, nil
}
