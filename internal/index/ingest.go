package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bizassist/internal/logger"
	"bizassist/pkg"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
)

// Chunker splits text into overlapping pieces, breaking at word boundaries
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunker uses 1000 characters with 200 characters of overlap
func DefaultChunker() Chunker {
	return Chunker{Size: 1000, Overlap: 200}
}

// Split returns the chunk texts of content. Markdown is cut at headings first;
// every chunk of a section starts with a "# Title > Section" line so it keeps
// the context of the section it came from.
func (c Chunker) Split(content string) []string {
	var chunks []string
	for _, sec := range markdownSections(content) {
		for _, piece := range c.splitText(sec.body) {
			if sec.path != "" {
				piece = "# " + sec.path + "\n" + piece
			}
			chunks = append(chunks, piece)
		}
	}
	return chunks
}

func (c Chunker) splitText(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" || c.Size <= 0 {
		return nil
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= c.Size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := start + c.Size
		if end > len(content) {
			end = len(content)
		}

		// Try to break at word boundary
		if end < len(content) {
			if lastSpace := strings.LastIndex(content[start:end], " "); lastSpace > 0 {
				end = start + lastSpace
			}
		}

		if piece := strings.TrimSpace(content[start:end]); piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(content) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		} else if content[next-1] != ' ' {
			// start the overlap on a word
			if i := strings.IndexByte(content[next:end], ' '); i >= 0 {
				next += i + 1
			}
		}
		start = next
	}
	return chunks
}

type section struct {
	path string
	body string
}

// markdownSections cuts content at ATX headings outside code fences. Text
// without headings comes back as one section with an empty path.
func markdownSections(content string) []section {
	var (
		sections []section
		titles   []string
		body     strings.Builder
		inFence  bool
	)
	flush := func() {
		if strings.TrimSpace(body.String()) != "" {
			sections = append(sections, section{path: strings.Join(titles, " > "), body: body.String()})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if level, title, ok := headingLine(trimmed); ok && !inFence {
			flush()
			if level > len(titles)+1 {
				level = len(titles) + 1
			}
			titles = append(titles[:level-1], title)
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

func headingLine(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(line[level:], "#"))
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// ChunkID derives a stable id from the chunk's position
func ChunkID(businessID, documentID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s/%d", businessID, documentID, index)))
	return hex.EncodeToString(sum[:16])
}

// Ingestor chunks documents, embeds the chunks and stores them in an Index
type Ingestor struct {
	index       Index
	embedder    embedding.Embedder
	chunker     Chunker
	batchSize   int
	concurrency int
	parsers     map[string]DocumentParser
}

// NewIngestor creates an ingestor; batchSize and concurrency fall back to 16 and 4
func NewIngestor(idx Index, embedder embedding.Embedder, chunker Chunker, batchSize, concurrency int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	ing := &Ingestor{
		index:       idx,
		embedder:    embedder,
		chunker:     chunker,
		batchSize:   batchSize,
		concurrency: concurrency,
		parsers:     make(map[string]DocumentParser),
	}
	for _, p := range DefaultParsers() {
		ing.RegisterParser(p)
	}
	return ing
}

// RegisterParser makes the ingestor accept the formats of p, replacing
// earlier parsers of the same extensions
func (i *Ingestor) RegisterParser(p DocumentParser) {
	for _, ext := range p.SupportedFormats() {
		i.parsers[strings.ToLower(ext)] = p
	}
}

// Supports reports whether files with the extension of path can be ingested
func (i *Ingestor) Supports(path string) bool {
	_, ok := i.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IngestText replaces documentID's chunks with the chunks of text and returns their count
func (i *Ingestor) IngestText(ctx context.Context, businessID, documentID, text string) (int, error) {
	if businessID == "" {
		return 0, ErrMissingBusiness
	}
	start := time.Now()

	pieces := i.chunker.Split(text)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("document %s has no content", documentID)
	}

	vectors := make([][]float64, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for from := 0; from < len(pieces); from += i.batchSize {
		from := from
		to := min(from+i.batchSize, len(pieces))
		g.Go(func() error {
			embs, err := i.embedder.EmbedStrings(gctx, pieces[from:to])
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", from, to-1, err)
			}
			if len(embs) != to-from {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embs), to-from)
			}
			copy(vectors[from:to], embs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	chunks := make([]pkg.DocumentChunk, len(pieces))
	for n, piece := range pieces {
		chunks[n] = pkg.DocumentChunk{
			ID:         ChunkID(businessID, documentID, n),
			BusinessID: businessID,
			DocumentID: documentID,
			ChunkIndex: n,
			Text:       piece,
			Embedding:  vectors[n],
		}
	}

	if err := i.index.Ingest(ctx, businessID, documentID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks of %s: %w", documentID, err)
	}

	logger.Info().
		Str("business_id", businessID).
		Str("document_id", documentID).
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("Document ingested")
	return len(chunks), nil
}

// IngestFile parses a text, markdown or PDF file and ingests it under its base name
func (i *Ingestor) IngestFile(ctx context.Context, businessID, path string) (string, int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parser, ok := i.parsers[ext]
	if !ok {
		return "", 0, fmt.Errorf("unsupported document type %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	documentID := filepath.Base(path)
	text, err := parser.Parse(ctx, data, documentID)
	if err != nil {
		return "", 0, err
	}

	n, err := i.IngestText(ctx, businessID, documentID, text)
	if err != nil {
		return "", 0, err
	}
	return documentID, n, nil
}

// Count returns how many chunks are indexed for the business
func (i *Ingestor) Count(ctx context.Context, businessID string) (int, error) {
	return i.index.Count(ctx, businessID)
}

// Delete removes a document from the index
func (i *Ingestor) Delete(ctx context.Context, businessID, documentID string) error {
	return i.index.DeleteDocument(ctx, businessID, documentID)
}
