// Package chunker turns sections into bounded-size chunks suitable for
// embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"finsight/internal/document"
	"finsight/internal/segmenter"
)

const (
	// DefaultMaxChunkSize is the token budget per chunk.
	DefaultMaxChunkSize = 4000
	// charsPerToken approximates tokenizer output at 4 characters per token.
	charsPerToken = 4
)

// TokenCount approximates the token count of text.
func TokenCount(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// Builder converts sections into chunks. Sections within the token budget
// become a single chunk carrying all of the section's tables; oversized
// sections are split on paragraph boundaries, with the tables attached only
// to the first sub-chunk.
type Builder struct {
	MaxChunkSize int
}

// NewBuilder creates a Builder; maxChunkSize <= 0 selects the default.
func NewBuilder(maxChunkSize int) *Builder {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &Builder{MaxChunkSize: maxChunkSize}
}

// Stamp holds the per-run metadata applied to every emitted chunk.
type Stamp struct {
	Strategy      string
	CompanyName   string
	FinancialYear string
}

// Build emits the chunks for all sections in order. Sections with no content
// cannot become valid chunks and are skipped with a warning.
func (b *Builder) Build(sections []segmenter.Section, stamp Stamp) ([]document.Chunk, []string) {
	var chunks []document.Chunk
	var warnings []string
	for i := range sections {
		section := &sections[i]
		if strings.TrimSpace(section.Content) == "" {
			warnings = append(warnings, fmt.Sprintf("skipped section %q: no content", section.Title))
			continue
		}
		chunks = append(chunks, b.buildSection(section, stamp)...)
	}
	return chunks, warnings
}

func (b *Builder) buildSection(section *segmenter.Section, stamp Stamp) []document.Chunk {
	baseID := sectionChunkID(section)

	if TokenCount(section.Content) <= b.MaxChunkSize {
		chunk := b.newChunk(baseID, section.Content, section, stamp)
		chunk.Tables = attachTables(section.Tables, chunk.ID)
		chunk.Kind = kindFor(chunk.Tables)
		return []document.Chunk{chunk}
	}

	return b.splitSection(baseID, section, stamp)
}

// splitSection packs paragraphs greedily into successive chunks until adding
// the next paragraph would exceed the budget. Only the first sub-chunk
// carries the section's tables; later sub-chunks get none even when topically
// related, a documented simplification.
func (b *Builder) splitSection(baseID string, section *segmenter.Section, stamp Stamp) []document.Chunk {
	var chunks []document.Chunk
	paragraphs := strings.Split(section.Content, "\n\n")

	current := ""
	index := 0

	emit := func(content string) {
		chunk := b.newChunk(fmt.Sprintf("%s_%d", baseID, index), content, section, stamp)
		if index == 0 {
			chunk.Tables = attachTables(section.Tables, chunk.ID)
		}
		chunk.Kind = kindFor(chunk.Tables)
		chunks = append(chunks, chunk)
		index++
	}

	for _, paragraph := range paragraphs {
		candidate := paragraph
		if current != "" {
			candidate = current + "\n" + paragraph
		}
		if TokenCount(candidate) > b.MaxChunkSize && current != "" {
			emit(current)
			current = paragraph
		} else {
			current = candidate
		}
	}
	if strings.TrimSpace(current) != "" {
		emit(current)
	}

	return chunks
}

func (b *Builder) newChunk(id, content string, section *segmenter.Section, stamp Stamp) document.Chunk {
	return document.Chunk{
		ID:               id,
		Content:          content,
		Kind:             document.ChunkText,
		Section:          section.Title,
		Category:         section.Category,
		PageNumber:       section.StartPage,
		StartPage:        section.StartPage,
		EndPage:          section.EndPage,
		TokenCount:       TokenCount(content),
		ChunkingStrategy: stamp.Strategy,
		CompanyName:      stamp.CompanyName,
		FinancialYear:    stamp.FinancialYear,
	}
}

// sectionChunkID derives the stable chunk id for a section. The structural
// one-off sections keep their fixed ids so re-storage always upserts.
func sectionChunkID(section *segmenter.Section) string {
	switch section.SpecialKind {
	case segmenter.SpecialPreContents:
		return fmt.Sprintf("pre_contents_page_%d", section.StartPage)
	case segmenter.SpecialContents:
		return "contents_page"
	}
	if section.FromContents {
		return "section_" + document.Slug(section.Title)
	}
	return document.Slug(section.Title)
}

func attachTables(tables []document.Table, chunkID string) []document.Table {
	if len(tables) == 0 {
		return nil
	}
	attached := make([]document.Table, len(tables))
	copy(attached, tables)
	for i := range attached {
		attached[i].SourceChunkID = chunkID
	}
	return attached
}

func kindFor(tables []document.Table) document.ChunkKind {
	if len(tables) > 0 {
		return document.ChunkMixed
	}
	return document.ChunkText
}
