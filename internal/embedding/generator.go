// Package embedding builds embedding input text for chunks and queries and
// attaches the resulting vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"finsight/internal/contextutil"
	"finsight/internal/document"
)


// Embedder generates embedding vectors for a batch of texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// tableFallback is appended when a table cannot be rendered into a summary line.
const tableFallback = "[Table data present but could not be processed for embedding]"

// Generator attaches embeddings to chunks, one chunk per call to the backend
// so that a single failing chunk never poisons the batch.
type Generator struct {
	embedder Embedder
}

// NewGenerator creates a Generator backed by the given embedder.
func NewGenerator(embedder Embedder) *Generator {
	return &Generator{embedder: embedder}
}

// EmbedChunks generates and attaches an embedding for every chunk in place.
// Embedding failures are isolated per chunk: a failed chunk keeps a nil
// embedding and the walk continues. Returns the number of failed chunks.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []document.Chunk) int {
	logger := contextutil.LoggerFromContext(ctx)
	logger.Info("generating embeddings", "chunks", len(chunks))

	failed := 0
	for i := range chunks {
		text := EmbedText(&chunks[i])
		vectors, err := g.embedder.EmbedTexts(ctx, []string{text})
		if err != nil || len(vectors) == 0 {
			logger.Error("embedding failed for chunk", "chunk_id", chunks[i].ID, "error", err)
			chunks[i].Embedding = nil
			failed++
			continue
		}
		chunks[i].Embedding = vectors[0]
	}

	logger.Info("embedding generation completed", "failed", failed)
	return failed
}

// EmbedQuery generates the embedding for a search query.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vectors")
	}
	return vectors[0], nil
}

// EmbedText renders the text actually sent to the embedding backend: the
// chunk content followed by a one-line summary per attached table.
func EmbedText(chunk *document.Chunk) string {
	if len(chunk.Tables) == 0 {
		return chunk.Content
	}

	var b strings.Builder
	b.WriteString(chunk.Content)
	for i := range chunk.Tables {
		b.WriteByte('\n')
		b.WriteString(tableSummary(&chunk.Tables[i]))
	}
	return b.String()
}

func tableSummary(table *document.Table) string {
	if len(table.Headers) == 0 && table.RowCount == 0 {
		return tableFallback
	}
	return table.Summary()
}
