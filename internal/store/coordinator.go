// Package store coordinates writes and reads across the vector store and the
// optional relational store. The two backends are written independently with
// no transaction; a chunk present in one but not the other is an accepted
// condition surfaced by HealthCheck, not something this layer reconciles.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight/internal/contextutil"
	"finsight/internal/document"
	"finsight/internal/storage"
	"finsight/internal/vectorstore"
)

// Collections names the three vector collections the coordinator writes to.
type Collections struct {
	Chunks  string
	Tables  string
	Markers string
}

// pointNamespace seeds the deterministic UUIDv5 point ids. Qdrant requires
// UUID point ids while chunk ids are human-readable slugs, so each logical id
// is hashed into the UUID space; the hash is stable, which keeps upserts
// idempotent.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finsight"))

// PointID maps a logical id to its stable vector-store point id.
func PointID(logical string) string {
	return uuid.NewSHA1(pointNamespace, []byte(logical)).String()
}

// MarkerKey builds the idempotency-marker key for one processing run:
// file stem and strategy, plus company and year when given. Spaces become
// underscores and slashes become dashes so the key stays a single token.
func MarkerKey(path, strategy, company, year string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := []string{stem, strategy}
	if company != "" {
		parts = append(parts, strings.ReplaceAll(company, " ", "_"))
	}
	if year != "" {
		year = strings.ReplaceAll(year, "/", "-")
		parts = append(parts, strings.ReplaceAll(year, " ", "_"))
	}
	return strings.Join(parts, "_")
}

// StoreOutcome reports how a dual-write went.
type StoreOutcome struct {
	VectorOK     bool
	RelationalOK bool
	ChunksStored int
}

// OverallOK is true when either backend accepted the write.
func (o StoreOutcome) OverallOK() bool {
	return o.VectorOK || o.RelationalOK
}

// Coordinator fans writes out to both backends and reads back from whichever
// is available. The relational repos are nil when no database is configured;
// the vector store is always present.
type Coordinator struct {
	vector      vectorstore.VectorStore
	chunks      storage.ChunkStore
	tables      *storage.TableRepo
	results     *storage.ResultRepo
	collections Collections
}

// NewCoordinator wires a coordinator. Pass nil repos to run vector-only.
func NewCoordinator(vector vectorstore.VectorStore, chunks storage.ChunkStore, tables *storage.TableRepo, results *storage.ResultRepo, collections Collections) *Coordinator {
	return &Coordinator{
		vector:      vector,
		chunks:      chunks,
		tables:      tables,
		results:     results,
		collections: collections,
	}
}

// RelationalEnabled reports whether a relational store is configured.
func (c *Coordinator) RelationalEnabled() bool {
	return c.chunks != nil
}

// Store persists chunks to both backends. Chunks without embeddings are
// skipped by the vector write but still land in the relational store. A
// failing backend degrades that backend's contribution without aborting the
// other.
func (c *Coordinator) Store(ctx context.Context, chunks []document.Chunk, meta document.Metadata) StoreOutcome {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "storing chunks", "count", len(chunks), "strategy", meta.ChunkingStrategy)

	outcome := StoreOutcome{}

	vectorStored, err := c.storeVector(ctx, chunks, meta)
	if err != nil {
		logger.ErrorContext(ctx, "vector store write failed", "error", err)
	} else {
		outcome.VectorOK = true
	}

	if c.RelationalEnabled() {
		if err := c.storeRelational(ctx, chunks, meta); err != nil {
			logger.ErrorContext(ctx, "relational store write failed", "error", err)
		} else {
			outcome.RelationalOK = true
		}
	}

	switch {
	case outcome.RelationalOK:
		outcome.ChunksStored = len(chunks)
	case outcome.VectorOK:
		outcome.ChunksStored = vectorStored
	}

	return outcome
}

// storeVector upserts one point per embedded chunk plus one point per
// attached table. Table points reuse the owning chunk's embedding so a table
// hit ranks with its chunk.
func (c *Coordinator) storeVector(ctx context.Context, chunks []document.Chunk, meta document.Metadata) (int, error) {
	docMeta := flattenDocumentMetadata(meta)

	var chunkPoints, tablePoints []vectorstore.Point
	stored := 0
	for i := range chunks {
		chunk := &chunks[i]
		if !chunk.HasEmbedding() {
			continue
		}

		payload := chunkPayload(chunk, docMeta)
		logicalID := chunkLogicalID(meta.FilePath, meta.ChunkingStrategy, chunk.ID)
		chunkPoints = append(chunkPoints, vectorstore.Point{
			ID:   PointID(logicalID),
			Vec:  chunk.Embedding,
			Meta: payload,
		})
		stored++

		for j := range chunk.Tables {
			table := &chunk.Tables[j]
			tablePoints = append(tablePoints, vectorstore.Point{
				ID:   PointID(logicalID + "_" + table.ID),
				Vec:  chunk.Embedding,
				Meta: tablePayload(chunk, table, docMeta),
			})
		}
	}

	if err := c.vector.Upsert(ctx, c.collections.Chunks, chunkPoints); err != nil {
		return 0, err
	}
	if err := c.vector.Upsert(ctx, c.collections.Tables, tablePoints); err != nil {
		// Chunk points landed; report the table failure without undoing them.
		return stored, fmt.Errorf("table points: %w", err)
	}
	return stored, nil
}

func (c *Coordinator) storeRelational(ctx context.Context, chunks []document.Chunk, meta document.Metadata) error {
	for i := range chunks {
		chunk := &chunks[i]

		metadataJSON, err := json.Marshal(chunkMetadata(chunk))
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}

		record := &storage.ChunkRecord{
			ID:                 chunk.ID,
			Content:            chunk.Content,
			ChunkType:          string(chunk.Kind),
			Section:            chunk.Section,
			PageNumber:         chunk.PageNumber,
			FilePath:           meta.FilePath,
			FileName:           meta.FileName,
			ProcessingStrategy: meta.ChunkingStrategy,
			TableCount:         len(chunk.Tables),
			ContentLength:      len(chunk.Content),
			Metadata:           string(metadataJSON),
		}
		if err := c.chunks.Upsert(ctx, record); err != nil {
			return err
		}

		for j := range chunk.Tables {
			if err := c.upsertTableRecord(ctx, &chunk.Tables[j], meta); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) upsertTableRecord(ctx context.Context, table *document.Table, meta document.Metadata) error {
	rowsJSON, err := json.Marshal(table.Rows)
	if err != nil {
		return fmt.Errorf("marshal table rows: %w", err)
	}
	headersJSON, err := json.Marshal(table.Headers)
	if err != nil {
		return fmt.Errorf("marshal table headers: %w", err)
	}
	metaJSON, err := json.Marshal(map[string]string{
		"company_name":   meta.CompanyName,
		"financial_year": meta.FinancialYear,
	})
	if err != nil {
		return fmt.Errorf("marshal table metadata: %w", err)
	}

	record := &storage.TableRecord{
		ID:            table.ID,
		Title:         table.Title,
		TableData:     string(rowsJSON),
		Headers:       string(headersJSON),
		RowCount:      table.RowCount,
		ColumnCount:   table.ColumnCount,
		TableType:     table.TableType,
		Section:       table.Section,
		PageNumber:    table.PageNumber,
		SourceChunkID: table.SourceChunkID,
		FilePath:      meta.FilePath,
		FileName:      meta.FileName,
		Metadata:      string(metaJSON),
	}
	return c.tables.Upsert(ctx, record)
}

// StoreFinancialTables persists the canonical consolidated statements. They
// are reference data rather than retrieval units, so they go to the
// relational store only and are a no-op without one.
func (c *Coordinator) StoreFinancialTables(ctx context.Context, tables []document.Table, meta document.Metadata) error {
	if !c.RelationalEnabled() {
		return nil
	}
	for i := range tables {
		if err := c.upsertTableRecord(ctx, &tables[i], meta); err != nil {
			return fmt.Errorf("store financial table %s: %w", tables[i].ID, err)
		}
	}
	return nil
}

// StoreResult appends the run to the relational audit log when enabled.
func (c *Coordinator) StoreResult(ctx context.Context, result *document.ProcessingResult) error {
	if c.results == nil {
		return nil
	}

	errorsJSON, _ := json.Marshal(result.Errors)
	warningsJSON, _ := json.Marshal(result.Warnings)
	docMetaJSON, _ := json.Marshal(result.DocumentMetadata)
	procMetaJSON, _ := json.Marshal(map[string]any{
		"strategy":        result.Strategy,
		"processing_date": time.Now().Format(time.RFC3339),
	})

	record := &storage.ResultRecord{
		FilePath:           result.DocumentPath,
		FileName:           filepath.Base(result.DocumentPath),
		ProcessingStrategy: result.Strategy,
		Status:             string(result.Status),
		TotalChunks:        result.TotalChunks,
		TotalTables:        result.TotalTables,
		ProcessingTime:     result.ProcessingTime,
		WasCached:          result.WasCached,
		ReusedExisting:     result.ReusedExisting,
		Errors:             string(errorsJSON),
		Warnings:           string(warningsJSON),
		DocumentMetadata:   string(docMetaJSON),
		ProcessingMetadata: string(procMetaJSON),
	}
	return c.results.Insert(ctx, record)
}

// MarkProcessed records the idempotency marker for a processing run. The
// marker collection holds placeholder vectors; only the payload matters.
func (c *Coordinator) MarkProcessed(ctx context.Context, path, strategy string, meta document.Metadata) error {
	key := MarkerKey(path, strategy, meta.CompanyName, meta.FinancialYear)
	point := vectorstore.Point{
		ID:  PointID(key),
		Vec: []float32{0},
		Meta: map[string]any{
			"marker_key":           key,
			"file_path":            meta.FilePath,
			"file_name":            meta.FileName,
			"chunking_strategy":    strategy,
			"company_name":         meta.CompanyName,
			"financial_year":       meta.FinancialYear,
			"processing_timestamp": time.Now().Format(time.RFC3339),
		},
	}
	return c.vector.Upsert(ctx, c.collections.Markers, []vectorstore.Point{point})
}

// IsProcessed reports whether a (file, strategy, company, year) run already
// completed. The vector marker is authoritative; when its lookup fails, the
// relational audit log answers instead. Errors degrade to "not processed" so
// a flaky backend reprocesses rather than silently skipping work.
func (c *Coordinator) IsProcessed(ctx context.Context, path, strategy, company, year string) bool {
	logger := contextutil.LoggerFromContext(ctx)
	key := MarkerKey(path, strategy, company, year)

	records, err := c.vector.Get(ctx, c.collections.Markers, []string{PointID(key)})
	if err == nil {
		return len(records) > 0
	}
	logger.WarnContext(ctx, "marker lookup failed, falling back to relational history", "key", key, "error", err)

	if c.results == nil {
		return false
	}
	if _, err := c.results.LatestSuccessful(ctx, path, strategy); err == nil {
		return true
	}
	return false
}

// GetChunksByFile loads previously stored chunks for a reuse response. The
// relational store is preferred (it holds every chunk, embedded or not); the
// vector store answers when no database is configured.
func (c *Coordinator) GetChunksByFile(ctx context.Context, path, strategy, company, year string) ([]document.Chunk, error) {
	if c.RelationalEnabled() {
		return c.chunksFromRelational(ctx, path, strategy, company, year)
	}
	return c.chunksFromVector(ctx, path, strategy, company, year)
}

func (c *Coordinator) chunksFromRelational(ctx context.Context, path, strategy, company, year string) ([]document.Chunk, error) {
	records, err := c.chunks.GetByFile(ctx, path, strategy)
	if err != nil {
		return nil, err
	}

	chunks := make([]document.Chunk, 0, len(records))
	for _, record := range records {
		var meta storedChunkMetadata
		if record.Metadata != "" {
			// Malformed metadata keeps the chunk, just unfiltered.
			_ = json.Unmarshal([]byte(record.Metadata), &meta)
		}
		if company != "" && meta.CompanyName != company {
			continue
		}
		if year != "" && meta.FinancialYear != year {
			continue
		}

		chunk := document.Chunk{
			ID:               record.ID,
			Content:          record.Content,
			Kind:             document.ChunkKind(record.ChunkType),
			Section:          record.Section,
			PageNumber:       record.PageNumber,
			StartPage:        meta.StartPage,
			EndPage:          meta.EndPage,
			TokenCount:       meta.TokenCount,
			ChunkingStrategy: record.ProcessingStrategy,
			CompanyName:      meta.CompanyName,
			FinancialYear:    meta.FinancialYear,
		}

		if record.TableCount > 0 && c.tables != nil {
			tableRecords, err := c.tables.GetByChunk(ctx, record.ID, path)
			if err != nil {
				return nil, err
			}
			chunk.Tables = tablesFromRecords(tableRecords)
		}

		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (c *Coordinator) chunksFromVector(ctx context.Context, path, strategy, company, year string) ([]document.Chunk, error) {
	filter := &vectorstore.Filter{
		Equals: map[string]string{
			"doc_file_path":         path,
			"doc_chunking_strategy": strategy,
		},
	}
	if company != "" {
		filter.Equals["company_name"] = company
	}
	if year != "" {
		filter.Equals["financial_year"] = year
	}

	records, err := c.vector.Scroll(ctx, c.collections.Chunks, filter, 10000)
	if err != nil {
		return nil, err
	}

	chunks := make([]document.Chunk, 0, len(records))
	var tablePointIDs []string
	for _, record := range records {
		chunk := chunkFromPayload(record.Meta)
		logicalID := chunkLogicalID(path, strategy, chunk.ID)
		for _, tableID := range payloadTableIDs(record.Meta) {
			tablePointIDs = append(tablePointIDs, PointID(logicalID+"_"+tableID))
		}
		chunks = append(chunks, chunk)
	}
	if len(tablePointIDs) == 0 {
		return chunks, nil
	}

	// Table payloads carry their owning chunk id, so one batched fetch
	// reattaches every table.
	tableRecords, err := c.vector.Get(ctx, c.collections.Tables, tablePointIDs)
	if err != nil {
		return nil, fmt.Errorf("load table points: %w", err)
	}
	byChunk := map[string][]document.Table{}
	for _, record := range tableRecords {
		table := tableFromPayload(record.Meta)
		byChunk[table.SourceChunkID] = append(byChunk[table.SourceChunkID], table)
	}
	for i := range chunks {
		chunks[i].Tables = byChunk[chunks[i].ID]
	}
	return chunks, nil
}

// SearchChunks runs a filtered similarity search over the chunk collection.
func (c *Coordinator) SearchChunks(ctx context.Context, query []float32, k int, filter *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return c.vector.Search(ctx, c.collections.Chunks, query, k, filter)
}

// DistinctCompanies lists companies seen in stored chunks, sorted.
func (c *Coordinator) DistinctCompanies(ctx context.Context) ([]string, error) {
	if !c.RelationalEnabled() {
		return c.distinctFromMarkers(ctx, "company_name")
	}
	return c.chunks.DistinctCompanies(ctx)
}

// DistinctYears lists financial years seen in stored chunks, sorted,
// optionally narrowed to one company.
func (c *Coordinator) DistinctYears(ctx context.Context, company string) ([]string, error) {
	if !c.RelationalEnabled() {
		return c.distinctFromMarkers(ctx, "financial_year")
	}
	return c.chunks.DistinctYears(ctx, company)
}

func (c *Coordinator) distinctFromMarkers(ctx context.Context, field string) ([]string, error) {
	records, err := c.vector.Scroll(ctx, c.collections.Markers, nil, 10000)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	values := make([]string, 0)
	for _, record := range records {
		if v, ok := record.Meta[field].(string); ok && v != "" && !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values, nil
}

// HealthStatus reports backend reachability and cross-store consistency.
type HealthStatus struct {
	VectorOK         bool   `json:"vector_ok"`
	RelationalOK     bool   `json:"relational_ok"`
	VectorChunks     uint64 `json:"vector_chunks"`
	RelationalChunks int64  `json:"relational_chunks"`
	Consistent       bool   `json:"consistent"`
}

// HealthCheck probes both backends. Consistent is false when both are up but
// disagree on chunk counts; dual writes are not transactional, so drift is
// reported rather than repaired.
func (c *Coordinator) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{}

	if count, err := c.vector.Count(ctx, c.collections.Chunks, nil); err == nil {
		status.VectorOK = true
		status.VectorChunks = count
	}

	if c.RelationalEnabled() {
		if count, err := c.chunks.Count(ctx); err == nil {
			status.RelationalOK = true
			status.RelationalChunks = count
		}
		status.Consistent = status.VectorOK && status.RelationalOK &&
			status.VectorChunks == uint64(status.RelationalChunks)
	} else {
		// Vector-only deployments have nothing to drift against.
		status.Consistent = status.VectorOK
	}

	return status
}

// Stats summarizes stored volume across both backends.
type Stats struct {
	VectorChunks   uint64 `json:"vector_chunks"`
	VectorTables   uint64 `json:"vector_tables"`
	ProcessedFiles uint64 `json:"processed_files"`
	DBChunks       int64  `json:"db_chunks,omitempty"`
	DBTables       int64  `json:"db_tables,omitempty"`
	DBResults      int64  `json:"db_results,omitempty"`
}

// CollectStats gathers counts from every store that answers; unreachable
// backends contribute zeros.
func (c *Coordinator) CollectStats(ctx context.Context) Stats {
	stats := Stats{}
	if n, err := c.vector.Count(ctx, c.collections.Chunks, nil); err == nil {
		stats.VectorChunks = n
	}
	if n, err := c.vector.Count(ctx, c.collections.Tables, nil); err == nil {
		stats.VectorTables = n
	}
	if n, err := c.vector.Count(ctx, c.collections.Markers, nil); err == nil {
		stats.ProcessedFiles = n
	}
	if c.RelationalEnabled() {
		if n, err := c.chunks.Count(ctx); err == nil {
			stats.DBChunks = n
		}
		if n, err := c.tables.Count(ctx); err == nil {
			stats.DBTables = n
		}
		if n, err := c.results.Count(ctx); err == nil {
			stats.DBResults = n
		}
	}
	return stats
}
