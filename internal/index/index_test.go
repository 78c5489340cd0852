package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bizassist/internal/embedding"
	"bizassist/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(id string, vec ...float64) pkg.DocumentChunk {
	return pkg.DocumentChunk{ID: id, Text: "text " + id, Embedding: vec}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}

func TestMemoryIndexQueryIsPartitioned(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Ingest(ctx, "biz-a", "doc", []pkg.DocumentChunk{chunk("a1", 1, 0), chunk("a2", 0, 1)}))
	require.NoError(t, idx.Ingest(ctx, "biz-b", "doc", []pkg.DocumentChunk{chunk("b1", 1, 0)}))

	results, err := idx.Query(ctx, "biz-a", []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "biz-a", r.Chunk.BusinessID)
	}
	assert.Equal(t, "a1", results[0].Chunk.ID)

	results, err = idx.Query(ctx, "biz-c", []float64{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Query(ctx, "", []float64{1, 0}, 10)
	assert.ErrorIs(t, err, ErrMissingBusiness)
}

func TestMemoryIndexTopKAndTies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{
		chunk("c", 1, 0), chunk("b", 1, 0), chunk("a", 1, 0), chunk("z", 0, 1),
	}))

	results, err := idx.Query(ctx, "biz", []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)

	results, err = idx.Query(ctx, "biz", []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryIndexReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{chunk("1", 1, 0), chunk("2", 0, 1)}))
	require.NoError(t, idx.Ingest(ctx, "biz", "other", []pkg.DocumentChunk{chunk("3", 1, 1)}))
	n, err := idx.Count(ctx, "biz")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{chunk("4", 1, 0)}))
	n, _ = idx.Count(ctx, "biz")
	assert.Equal(t, 2, n)

	require.NoError(t, idx.DeleteDocument(ctx, "biz", "doc"))
	n, _ = idx.Count(ctx, "biz")
	assert.Equal(t, 1, n)

	require.NoError(t, idx.DeleteDocument(ctx, "biz", "other"))
	n, _ = idx.Count(ctx, "biz")
	assert.Equal(t, 0, n)
}

func TestMemoryIndexDimensionChecks(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	err := idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{chunk("1", 1, 0), chunk("2", 1, 0, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{chunk("1", 1, 0)}))
	err = idx.Ingest(ctx, "biz", "other", []pkg.DocumentChunk{chunk("2", 1, 0, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Query(ctx, "biz", []float64{1, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// the only document may be re-embedded with a new model
	require.NoError(t, idx.Ingest(ctx, "biz", "doc", []pkg.DocumentChunk{chunk("1", 1, 0, 0)}))
}

func TestMemoryIndexConcurrentIngestAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	var wg sync.WaitGroup
	for b := 0; b < 4; b++ {
		biz := fmt.Sprintf("biz-%d", b)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = idx.Ingest(ctx, biz, "doc", []pkg.DocumentChunk{chunk(fmt.Sprintf("%s-%d", biz, i), 1, float64(i))})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				results, err := idx.Query(ctx, biz, []float64{1, 1}, 5)
				assert.NoError(t, err)
				for _, r := range results {
					assert.Equal(t, biz, r.Chunk.BusinessID)
				}
				// a replace is atomic: one document means at most one chunk
				assert.LessOrEqual(t, len(results), 1)
			}
		}()
	}
	wg.Wait()

	for b := 0; b < 4; b++ {
		n, err := idx.Count(ctx, fmt.Sprintf("biz-%d", b))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestChunkerSplit(t *testing.T) {
	c := Chunker{Size: 20, Overlap: 5}
	text := "one two three four five six seven eight nine ten eleven twelve"

	pieces := c.Split(text)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 20)
		assert.Equal(t, p, strings.TrimSpace(p))
	}
	assert.True(t, strings.HasPrefix(pieces[0], "one"))
	assert.True(t, strings.HasSuffix(pieces[len(pieces)-1], "twelve"))

	assert.Nil(t, c.Split("   "))
	assert.Equal(t, []string{"short"}, DefaultChunker().Split("short"))
}

func TestChunkerSplitsMarkdownSections(t *testing.T) {
	doc := "# Policies\n\nIntro line.\n\n## Returns\nReturn within 30 days.\n\n```\n# not a heading\n```\n## Insurance ##\nBring your card.\n"

	pieces := DefaultChunker().Split(doc)
	assert.Equal(t, []string{
		"# Policies\nIntro line.",
		"# Policies > Returns\nReturn within 30 days.\n\n```\n# not a heading\n```",
		"# Policies > Insurance\nBring your card.",
	}, pieces)

	// headings without a body produce no chunk
	assert.Equal(t, []string{"# A > B\ntext"}, DefaultChunker().Split("# A\n## B\ntext"))
}

func TestChunkerAlwaysAdvances(t *testing.T) {
	c := Chunker{Size: 4, Overlap: 3}
	pieces := c.Split(strings.Repeat("x", 40))
	assert.NotEmpty(t, pieces)
	assert.Less(t, len(pieces), 40)
}

func TestChunkIDIsStable(t *testing.T) {
	assert.Equal(t, ChunkID("biz", "doc", 1), ChunkID("biz", "doc", 1))
	assert.NotEqual(t, ChunkID("biz", "doc", 1), ChunkID("other", "doc", 1))
	assert.Len(t, ChunkID("biz", "doc", 0), 32)
}

func TestIngestorRetrievesRelevantChunk(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	emb := embedding.NewHashEmbedder(0)
	ing := NewIngestor(idx, emb, Chunker{Size: 80, Overlap: 0}, 1, 2)

	text := "Our return policy allows returns within 30 days of purchase. " +
		"Parking is free behind the building on weekends."
	n, err := ing.IngestText(ctx, "shop", "policies.md", text)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	q, err := emb.EmbedStrings(ctx, []string{"what is the return policy"})
	require.NoError(t, err)
	results, err := idx.Query(ctx, "shop", q[0], 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "30 days")
	assert.Equal(t, "policies.md", results[0].Chunk.DocumentID)

	require.NoError(t, ing.Delete(ctx, "shop", "policies.md"))
	count, _ := idx.Count(ctx, "shop")
	assert.Zero(t, count)
}

func TestIngestorRejectsEmptyAndUnscoped(t *testing.T) {
	ing := NewIngestor(NewMemoryIndex(), embedding.NewHashEmbedder(0), DefaultChunker(), 0, 0)

	_, err := ing.IngestText(context.Background(), "", "doc", "text")
	assert.ErrorIs(t, err, ErrMissingBusiness)

	_, err = ing.IngestText(context.Background(), "biz", "doc", "   ")
	assert.Error(t, err)
}

func TestIngestorIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("We open at nine."), 0o644))

	idx := NewMemoryIndex()
	ing := NewIngestor(idx, embedding.NewHashEmbedder(0), DefaultChunker(), 0, 0)

	docID, n, err := ing.IngestFile(context.Background(), "biz", path)
	require.NoError(t, err)
	assert.Equal(t, "faq.md", docID)
	assert.Equal(t, 1, n)

	_, _, err = ing.IngestFile(context.Background(), "biz", filepath.Join(dir, "notes.docx"))
	assert.ErrorContains(t, err, "unsupported")
	assert.False(t, ing.Supports("notes.docx"))
	assert.True(t, ing.Supports("Brochure.PDF"))
}

func TestIngestorIngestPDF(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	emb := embedding.NewHashEmbedder(0)
	ing := NewIngestor(idx, emb, DefaultChunker(), 0, 0)

	docID, n, err := ing.IngestFile(ctx, "biz", filepath.Join("testdata", "returns.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "returns.pdf", docID)
	assert.Equal(t, 1, n)

	q, err := emb.EmbedStrings(ctx, []string{"can I return products?"})
	require.NoError(t, err)
	results, err := idx.Query(ctx, "biz", q[0], 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "Returns and refunds")
	assert.Contains(t, results[0].Chunk.Text, "returned within 30 days")
}

func TestPDFParserRejectsBrokenFiles(t *testing.T) {
	_, err := PDFParser{}.Parse(context.Background(), []byte("not a pdf at all"), "broken.pdf")
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\ngarbage"), 0o644))
	_, _, err = NewIngestor(NewMemoryIndex(), embedding.NewHashEmbedder(0), DefaultChunker(), 0, 0).IngestFile(context.Background(), "biz", path)
	assert.Error(t, err)
}
