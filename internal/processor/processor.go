// Package processor orchestrates the document pipeline: parse, segment,
// extract financial statements, chunk, embed and store.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finsight/internal/chunker"
	"finsight/internal/contextutil"
	"finsight/internal/document"
	"finsight/internal/embedding"
	"finsight/internal/extractor"
	"finsight/internal/parser"
	"finsight/internal/segmenter"
	"finsight/internal/store"
)

// Chunking strategies.
const (
	StrategyContentsBased = "contents_based"
	StrategySemantic      = "semantic"
	DefaultStrategy       = StrategyContentsBased
)

// Processor runs the pipeline for one document at a time.
type Processor struct {
	gateway     *parser.Gateway
	builder     *chunker.Builder
	generator   *embedding.Generator
	coordinator *store.Coordinator
}

// NewProcessor wires a processor.
func NewProcessor(gateway *parser.Gateway, builder *chunker.Builder, generator *embedding.Generator, coordinator *store.Coordinator) *Processor {
	return &Processor{
		gateway:     gateway,
		builder:     builder,
		generator:   generator,
		coordinator: coordinator,
	}
}

// ProcessDocument runs the full pipeline for one document. The returned
// result is always non-nil; its status reports how far the run got. A
// document already processed under the same (strategy, company, year) is
// answered from the stores without calling the parser.
func (p *Processor) ProcessDocument(ctx context.Context, path, strategy, company, year string) *document.ProcessingResult {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	if strategy == "" {
		strategy = DefaultStrategy
	}
	result := document.NewProcessingResult(path, strategy)
	defer func() {
		result.ProcessingTime = time.Since(start).Seconds()
		if err := p.coordinator.StoreResult(ctx, result); err != nil {
			logger.WarnContext(ctx, "failed to record processing result", "path", path, "error", err)
		}
	}()

	if strategy != StrategyContentsBased && strategy != StrategySemantic {
		result.AddError(fmt.Sprintf("unknown chunking strategy: %s", strategy))
		return result
	}

	if p.coordinator.IsProcessed(ctx, path, strategy, company, year) {
		logger.InfoContext(ctx, "document already processed, reusing stored chunks",
			"path", path, "strategy", strategy)
		p.reuseExisting(ctx, result, path, strategy, company, year)
		return result
	}

	meta := document.Metadata{
		FilePath:         path,
		FileName:         filepath.Base(path),
		ProcessingDate:   time.Now(),
		ChunkingStrategy: strategy,
		CompanyName:      company,
		FinancialYear:    year,
		WasCached:        p.gateway.IsCached(path),
	}
	if info, err := os.Stat(path); err == nil {
		meta.FileSize = info.Size()
	}

	doc, err := p.gateway.GetOrParse(ctx, path)
	if err != nil {
		result.AddError(fmt.Sprintf("parsing failed: %v", err))
		return result
	}
	meta.TotalPages = len(doc)
	result.WasCached = meta.WasCached

	var sections []segmenter.Section
	switch strategy {
	case StrategyContentsBased:
		var warnings []string
		sections, warnings = segmenter.Segment(ctx, doc)
		for _, w := range warnings {
			result.AddWarning(w)
		}
	case StrategySemantic:
		sections = segmenter.SegmentByHeadings(doc)
	}
	if len(sections) == 0 {
		result.AddError("segmentation produced no sections")
		return result
	}

	financial := extractor.ExtractFinancialTables(ctx, doc)

	chunks, chunkWarnings := p.builder.Build(sections, chunker.Stamp{
		Strategy:      strategy,
		CompanyName:   company,
		FinancialYear: year,
	})
	for _, w := range chunkWarnings {
		result.AddWarning(w)
	}
	if len(chunks) == 0 {
		result.AddError("chunking produced no chunks")
		return result
	}
	result.TotalChunks = len(chunks)

	if failed := p.generator.EmbedChunks(ctx, chunks); failed > 0 {
		result.AddError(fmt.Sprintf("embedding failed for %d of %d chunks", failed, len(chunks)))
	}

	outcome := p.coordinator.Store(ctx, chunks, meta)
	if !outcome.OverallOK() {
		result.AddError("storing chunks failed in both backends")
		return result
	}
	if !outcome.VectorOK || (p.coordinator.RelationalEnabled() && !outcome.RelationalOK) {
		result.AddError("one storage backend rejected the write")
	}
	if outcome.ChunksStored < len(chunks) {
		result.AddWarning(fmt.Sprintf("stored %d of %d chunks", outcome.ChunksStored, len(chunks)))
	}

	if financial.Count() > 0 {
		var statements []document.Table
		for _, bucket := range extractor.Buckets() {
			statements = append(statements, financial[bucket]...)
		}
		if err := p.coordinator.StoreFinancialTables(ctx, statements, meta); err != nil {
			result.AddWarning(fmt.Sprintf("failed to store financial statements: %v", err))
		}
	}

	if err := p.coordinator.MarkProcessed(ctx, path, strategy, meta); err != nil {
		result.AddWarning(fmt.Sprintf("failed to mark document processed: %v", err))
	}

	summarize(result, chunks)
	result.DocumentMetadata = meta
	if result.Status == document.StatusProcessing {
		result.Status = document.StatusSuccess
	}

	logger.InfoContext(ctx, "document processed",
		"path", path,
		"strategy", strategy,
		"chunks", result.TotalChunks,
		"tables", result.TotalTables,
		"status", result.Status)
	return result
}

// reuseExisting answers a repeat request from the stores. A reuse that finds
// nothing falls through to an error rather than reprocessing: the marker said
// the work was done, so an empty read is a storage problem.
func (p *Processor) reuseExisting(ctx context.Context, result *document.ProcessingResult, path, strategy, company, year string) {
	chunks, err := p.coordinator.GetChunksByFile(ctx, path, strategy, company, year)
	if err != nil {
		result.AddError(fmt.Sprintf("failed to load existing chunks: %v", err))
		return
	}
	if len(chunks) == 0 {
		result.AddError("document marked processed but no stored chunks found")
		return
	}

	result.TotalChunks = len(chunks)
	summarize(result, chunks)
	result.DocumentMetadata = document.Metadata{
		FilePath:         path,
		FileName:         filepath.Base(path),
		ChunkingStrategy: strategy,
		CompanyName:      company,
		FinancialYear:    year,
	}
	result.ReusedExisting = true
	result.Status = document.StatusSuccess
}

func summarize(result *document.ProcessingResult, chunks []document.Chunk) {
	summaries := make([]document.ChunkSummary, 0, len(chunks))
	tables := 0
	for i := range chunks {
		chunk := &chunks[i]
		tables += len(chunk.Tables)
		summaries = append(summaries, document.ChunkSummary{
			ID:            chunk.ID,
			Section:       chunk.Section,
			Kind:          string(chunk.Kind),
			TokenCount:    chunk.TokenCount,
			TableCount:    len(chunk.Tables),
			PageRange:     chunk.PageRange(),
			CompanyName:   chunk.CompanyName,
			FinancialYear: chunk.FinancialYear,
		})
	}
	result.ChunkSummaries = summaries
	result.TotalTables = tables
}

// ProcessMultipleDocuments runs the pipeline over each document in order.
// One document's failure never aborts the batch; context cancellation stops
// scheduling further documents but keeps the results gathered so far.
func (p *Processor) ProcessMultipleDocuments(ctx context.Context, docs []document.DocumentInfo, strategy string) *document.BatchSummary {
	logger := contextutil.LoggerFromContext(ctx)
	if strategy == "" {
		strategy = DefaultStrategy
	}

	summary := &document.BatchSummary{
		TotalFiles: len(docs),
		Strategy:   strategy,
		Results:    []*document.ProcessingResult{},
	}
	companies := map[string]bool{}
	years := map[string]bool{}

	for _, info := range docs {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "batch cancelled", "remaining", len(docs)-len(summary.Results))
			break
		}

		result := p.ProcessDocument(ctx, info.Path, strategy, info.CompanyName, info.FinancialYear)
		summary.Results = append(summary.Results, result)
		summary.TotalChunks += result.TotalChunks
		summary.TotalTables += result.TotalTables

		if result.Status == document.StatusError {
			summary.Failed++
			continue
		}
		summary.Successful++
		if info.CompanyName != "" && !companies[info.CompanyName] {
			companies[info.CompanyName] = true
			summary.CompaniesProcessed = append(summary.CompaniesProcessed, info.CompanyName)
		}
		if info.FinancialYear != "" && !years[info.FinancialYear] {
			years[info.FinancialYear] = true
			summary.YearsProcessed = append(summary.YearsProcessed, info.FinancialYear)
		}
	}

	return summary
}
