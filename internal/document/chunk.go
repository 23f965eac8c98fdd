package document

import (
	"fmt"
	"strconv"
)

// ChunkKind tags what a chunk contains.
type ChunkKind string

const (
	ChunkText  ChunkKind = "text"
	ChunkTable ChunkKind = "table"
	ChunkMixed ChunkKind = "mixed"
)

// Chunk is a bounded-size retrievable content unit derived from one document
// section. The ID is stable per (document, strategy, section, index) so
// re-storing the same chunk is an idempotent upsert. The embedding is attached
// after construction and stays nil for chunks whose embedding call failed.
type Chunk struct {
	ID               string
	Content          string
	Tables           []Table
	Embedding        []float32
	Kind             ChunkKind
	Section          string
	Category         string
	PageNumber       int
	StartPage        int
	EndPage          int
	TokenCount       int
	ChunkingStrategy string
	CompanyName      string
	FinancialYear    string
}

// Validate checks the chunk invariants.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk ID cannot be empty")
	}
	if c.Content == "" {
		return fmt.Errorf("chunk content cannot be empty")
	}
	switch c.Kind {
	case ChunkText, ChunkTable, ChunkMixed:
	default:
		return fmt.Errorf("invalid chunk kind: %q", c.Kind)
	}
	if len(c.Tables) > 0 && c.Kind == ChunkText {
		return fmt.Errorf("chunk %s has %d tables but kind %q", c.ID, len(c.Tables), c.Kind)
	}
	return nil
}

// HasEmbedding reports whether an embedding vector is attached.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// TableIDs returns the IDs of all attached tables, in order. Stored alongside
// the chunk so table lookups never need to scan the whole table collection.
func (c *Chunk) TableIDs() []string {
	if len(c.Tables) == 0 {
		return nil
	}
	ids := make([]string, len(c.Tables))
	for i := range c.Tables {
		ids[i] = c.Tables[i].ID
	}
	return ids
}

// PageRange renders "start-end" for multi-page chunks or the single page number.
func (c *Chunk) PageRange() string {
	if c.StartPage > 0 && c.EndPage > c.StartPage {
		return fmt.Sprintf("%d-%d", c.StartPage, c.EndPage)
	}
	if c.StartPage > 0 {
		return strconv.Itoa(c.StartPage)
	}
	return strconv.Itoa(c.PageNumber)
}
