package store

import (
	"encoding/json"
	"strings"

	"finsight/internal/document"
	"finsight/internal/storage"
)

// chunkLogicalID scopes a chunk id to its file and strategy so two documents
// sharing a section title never collide in the vector store.
func chunkLogicalID(filePath, strategy, chunkID string) string {
	return filePath + "|" + strategy + "|" + chunkID
}

// flattenDocumentMetadata renders document metadata as scalar payload fields
// under a "doc_" prefix, keeping them distinct from per-chunk fields.
func flattenDocumentMetadata(meta document.Metadata) map[string]any {
	return map[string]any{
		"doc_file_path":         meta.FilePath,
		"doc_file_name":         meta.FileName,
		"doc_file_size":         meta.FileSize,
		"doc_processing_date":   meta.ProcessingDate.Format("2006-01-02T15:04:05"),
		"doc_total_pages":       meta.TotalPages,
		"doc_was_cached":        meta.WasCached,
		"doc_chunking_strategy": meta.ChunkingStrategy,
	}
}

// chunkPayload builds the vector payload for one chunk: its own metadata
// plus the flattened document metadata. All values are scalars; table ids
// are joined into one string.
func chunkPayload(chunk *document.Chunk, docMeta map[string]any) map[string]any {
	payload := map[string]any{
		"chunk_id":    chunk.ID,
		"content":     chunk.Content,
		"chunk_type":  string(chunk.Kind),
		"section":     chunk.Section,
		"page_number": chunk.PageNumber,
		"start_page":  chunk.StartPage,
		"end_page":    chunk.EndPage,
		"token_count": chunk.TokenCount,
		"has_tables":  len(chunk.Tables) > 0,
		"table_ids":   strings.Join(chunk.TableIDs(), ","),
	}
	if chunk.Category != "" {
		payload["category"] = chunk.Category
	}
	if chunk.CompanyName != "" {
		payload["company_name"] = chunk.CompanyName
	}
	if chunk.FinancialYear != "" {
		payload["financial_year"] = chunk.FinancialYear
	}
	for k, v := range docMeta {
		payload[k] = v
	}
	return payload
}

// tablePayload builds the vector payload for one table point.
func tablePayload(chunk *document.Chunk, table *document.Table, docMeta map[string]any) map[string]any {
	headersJSON, err := json.Marshal(table.Headers)
	if err != nil {
		headersJSON = []byte("[]")
	}
	payload := map[string]any{
		"chunk_id":     chunk.ID,
		"table_id":     table.ID,
		"content":      table.Summary(),
		"headers":      string(headersJSON),
		"row_count":    table.RowCount,
		"column_count": table.ColumnCount,
		"table_type":   table.TableType,
	}
	if chunk.CompanyName != "" {
		payload["company_name"] = chunk.CompanyName
	}
	if chunk.FinancialYear != "" {
		payload["financial_year"] = chunk.FinancialYear
	}
	for k, v := range docMeta {
		payload[k] = v
	}
	return payload
}

// storedChunkMetadata is the JSON shape kept in the relational metadata
// column. table_ids lives here so chunk-to-table lookup never scans the
// whole table collection.
type storedChunkMetadata struct {
	CompanyName   string   `json:"company_name,omitempty"`
	FinancialYear string   `json:"financial_year,omitempty"`
	Category      string   `json:"category,omitempty"`
	StartPage     int      `json:"start_page,omitempty"`
	EndPage       int      `json:"end_page,omitempty"`
	TokenCount    int      `json:"token_count,omitempty"`
	TableIDs      []string `json:"table_ids,omitempty"`
}

func chunkMetadata(chunk *document.Chunk) storedChunkMetadata {
	return storedChunkMetadata{
		CompanyName:   chunk.CompanyName,
		FinancialYear: chunk.FinancialYear,
		Category:      chunk.Category,
		StartPage:     chunk.StartPage,
		EndPage:       chunk.EndPage,
		TokenCount:    chunk.TokenCount,
		TableIDs:      chunk.TableIDs(),
	}
}

// chunkFromPayload rebuilds a chunk from a vector payload, tolerating missing
// fields. Embeddings stay in the store.
func chunkFromPayload(meta map[string]any) document.Chunk {
	chunk := document.Chunk{
		ID:               payloadString(meta, "chunk_id"),
		Content:          payloadString(meta, "content"),
		Kind:             document.ChunkKind(payloadString(meta, "chunk_type")),
		Section:          payloadString(meta, "section"),
		Category:         payloadString(meta, "category"),
		PageNumber:       payloadInt(meta, "page_number"),
		StartPage:        payloadInt(meta, "start_page"),
		EndPage:          payloadInt(meta, "end_page"),
		TokenCount:       payloadInt(meta, "token_count"),
		ChunkingStrategy: payloadString(meta, "doc_chunking_strategy"),
		CompanyName:      payloadString(meta, "company_name"),
		FinancialYear:    payloadString(meta, "financial_year"),
	}
	if chunk.Kind == "" {
		chunk.Kind = document.ChunkText
	}
	return chunk
}

// payloadTableIDs splits the joined table_ids payload field.
func payloadTableIDs(meta map[string]any) []string {
	joined := payloadString(meta, "table_ids")
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

// tableFromPayload rebuilds a table from its vector point payload. Row data
// is not stored in the payload, so only identity and shape come back.
func tableFromPayload(meta map[string]any) document.Table {
	table := document.Table{
		ID:            payloadString(meta, "table_id"),
		RowCount:      payloadInt(meta, "row_count"),
		ColumnCount:   payloadInt(meta, "column_count"),
		TableType:     payloadString(meta, "table_type"),
		SourceChunkID: payloadString(meta, "chunk_id"),
	}
	if headers := payloadString(meta, "headers"); headers != "" {
		_ = json.Unmarshal([]byte(headers), &table.Headers)
	}
	return table
}

func payloadString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// tablesFromRecords rebuilds document tables from relational rows.
func tablesFromRecords(records []storage.TableRecord) []document.Table {
	tables := make([]document.Table, 0, len(records))
	for _, record := range records {
		table := document.Table{
			ID:            record.ID,
			Title:         record.Title,
			RowCount:      record.RowCount,
			ColumnCount:   record.ColumnCount,
			TableType:     record.TableType,
			Section:       record.Section,
			PageNumber:    record.PageNumber,
			SourceChunkID: record.SourceChunkID,
		}
		if record.Headers != "" {
			_ = json.Unmarshal([]byte(record.Headers), &table.Headers)
		}
		if record.TableData != "" {
			_ = json.Unmarshal([]byte(record.TableData), &table.Rows)
		}
		tables = append(tables, table)
	}
	return tables
}
