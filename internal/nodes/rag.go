package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizassist/internal/config"
	"bizassist/internal/core"
	bizembedding "bizassist/internal/embedding"
	"bizassist/internal/index"
	"bizassist/internal/llm"
	"bizassist/internal/logger"
	"bizassist/internal/metrics"
	"bizassist/pkg"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// RAGNode answers document questions from the business's own indexed documents
type RAGNode struct {
	embedder        embedding.Embedder
	index           index.Index
	chain           compose.Runnable[map[string]any, *schema.Message]
	topK            int
	minScore        float64
	maxContextChars int
}

// NewRAGNode creates the document_qa responder. A nil chat model makes it
// answer extractively from the best matching chunk.
func NewRAGNode(ctx context.Context, embedder embedding.Embedder, idx index.Index, cm model.BaseChatModel, cfg config.RetrievalConfig) (*RAGNode, error) {
	if embedder == nil || idx == nil {
		return nil, fmt.Errorf("rag responder requires an embedder and an index")
	}
	r := &RAGNode{
		embedder:        embedder,
		index:           idx,
		topK:            cfg.TopK,
		minScore:        cfg.MinScore,
		maxContextChars: cfg.MaxContextChars,
	}
	if r.topK <= 0 {
		r.topK = 4
	}
	if r.maxContextChars <= 0 {
		r.maxContextChars = 3000
	}
	if cm != nil {
		chain, err := llm.NewChain(ctx, cm, ragSystemTemplate, ragUserTemplate)
		if err != nil {
			return nil, err
		}
		r.chain = chain
	}
	return r, nil
}

// Execute retrieves, filters and answers. Errors are returned only for
// embedding, index or model failures.
func (r *RAGNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	start := time.Now()

	vectors, err := r.embedder.EmbedStrings(ctx, []string{input.UserMessage})
	if err != nil {
		return core.NodeOutput{}, fmt.Errorf("failed to embed question: %w", err)
	}
	if len(vectors) != 1 {
		return core.NodeOutput{}, fmt.Errorf("embedder returned %d vectors for 1 question", len(vectors))
	}

	hits, err := r.index.Query(ctx, input.BusinessID, vectors[0], r.topK)
	if err != nil {
		return core.NodeOutput{}, fmt.Errorf("failed to query documents: %w", err)
	}
	relevant := hits[:0]
	for _, h := range hits {
		if h.Chunk.BusinessID != input.BusinessID {
			return core.NodeOutput{}, fmt.Errorf("index returned chunk %s of another business", h.Chunk.ID)
		}
		if h.Score >= r.minScore {
			relevant = append(relevant, h)
		}
	}

	log := logger.Debug().
		Str("business_id", input.BusinessID).
		Int("hits", len(hits)).
		Int("relevant", len(relevant))

	if len(relevant) == 0 {
		metrics.RetrievalResults.WithLabelValues("no_hits").Inc()
		log.Dur("elapsed", time.Since(start)).Msg("No relevant documents")
		return core.NodeOutput{Reply: noInformationReply(input.Profile)}, nil
	}

	var answer string
	if r.chain == nil {
		answer = extractiveAnswer(input.UserMessage, relevant)
	} else {
		out, err := r.chain.Invoke(ctx, map[string]any{
			"business":  businessName(input.Profile),
			"documents": buildDocumentContext(relevant, r.maxContextChars),
			"context":   formatHistory(input.History),
			"question":  input.UserMessage,
		})
		if err != nil {
			return core.NodeOutput{}, fmt.Errorf("failed to generate answer: %w", err)
		}
		answer = strings.TrimSpace(out.Content)
	}

	if answer == "" || strings.Contains(answer, noAnswerMarker) {
		metrics.RetrievalResults.WithLabelValues("no_answer").Inc()
		log.Dur("elapsed", time.Since(start)).Msg("Documents do not answer the question")
		return core.NodeOutput{Reply: noInformationReply(input.Profile)}, nil
	}

	metrics.RetrievalResults.WithLabelValues("answered").Inc()
	log.Dur("elapsed", time.Since(start)).Msg("Answered from documents")
	return core.NodeOutput{
		Reply:    answer,
		Metadata: map[string]any{"sources": sourceDocuments(relevant)},
	}, nil
}

// GetName returns the node name
func (r *RAGNode) GetName() string {
	return "rag"
}

// GetType returns the node type
func (r *RAGNode) GetType() core.NodeType {
	return core.NodeTypeEvidence
}

// noInformationReply is the fixed reply when the documents cannot answer
func noInformationReply(profile *pkg.BusinessProfile) string {
	reply := fmt.Sprintf("I'm sorry, that information is not available in %s's documents.", businessName(profile))
	if profile != nil && profile.ContactEmail != "" {
		reply += fmt.Sprintf(" You can ask us directly at %s.", profile.ContactEmail)
	}
	return reply
}

func businessName(profile *pkg.BusinessProfile) string {
	if profile == nil || profile.Name == "" {
		return "the business"
	}
	return profile.Name
}

// buildDocumentContext joins the chunks in rank order, stopping at limit characters
func buildDocumentContext(hits []pkg.ScoredChunk, limit int) string {
	var b strings.Builder
	for i, h := range hits {
		entry := fmt.Sprintf("[%d] (%s) %s\n", i+1, h.Chunk.DocumentID, h.Chunk.Text)
		if b.Len()+len(entry) > limit {
			if b.Len() == 0 {
				b.WriteString(entry[:limit])
			}
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// extractiveAnswer returns the sentences of the hits that share the most
// words with the question, best chunk first
func extractiveAnswer(question string, hits []pkg.ScoredChunk) string {
	wanted := make(map[string]bool)
	for _, t := range bizembedding.Tokenize(question) {
		wanted[t] = true
	}

	best, bestOverlap := "", 0
	for _, h := range hits {
		for _, sentence := range splitSentences(h.Chunk.Text) {
			if strings.HasPrefix(sentence, "#") {
				continue
			}
			overlap := 0
			for _, t := range bizembedding.Tokenize(sentence) {
				if wanted[t] {
					overlap++
				}
			}
			if overlap > bestOverlap {
				best, bestOverlap = sentence, overlap
			}
		}
	}
	if best == "" {
		for _, sentence := range splitSentences(hits[0].Chunk.Text) {
			if !strings.HasPrefix(sentence, "#") {
				best = sentence
				break
			}
		}
	}
	return best
}

// splitSentences cuts text after '.', '!' or '?' followed by whitespace, and at newlines
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		end := -1
		switch {
		case c == '\n':
			end = i
		case (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n'):
			end = i + 1
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func sourceDocuments(hits []pkg.ScoredChunk) []string {
	seen := make(map[string]bool)
	var docs []string
	for _, h := range hits {
		if !seen[h.Chunk.DocumentID] {
			seen[h.Chunk.DocumentID] = true
			docs = append(docs, h.Chunk.DocumentID)
		}
	}
	return docs
}
