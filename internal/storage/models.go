package storage

import "time"

// ChunkRecord is one row of document_chunks. Metadata holds the flattened
// chunk metadata (company_name, financial_year, table_ids, page range) as a
// JSON object.
type ChunkRecord struct {
	ID                 string
	Content            string
	ChunkType          string
	Section            string
	PageNumber         int
	FilePath           string
	FileName           string
	ProcessingStrategy string
	TableCount         int
	ContentLength      int
	Metadata           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableRecord is one row of extracted_tables. TableData holds the row
// records as JSON; Headers holds the header list as JSON.
type TableRecord struct {
	ID            string
	Title         string
	TableData     string
	Headers       string
	RowCount      int
	ColumnCount   int
	TableType     string
	Section       string
	PageNumber    int
	SourceChunkID string
	FilePath      string
	FileName      string
	Metadata      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResultRecord is one row of processing_results: the audit log of every
// processing run, appended once per ProcessDocument call.
type ResultRecord struct {
	ID                 int64
	FilePath           string
	FileName           string
	ProcessingStrategy string
	Status             string
	TotalChunks        int
	TotalTables        int
	ProcessingTime     float64
	WasCached          bool
	ReusedExisting     bool
	Errors             string
	Warnings           string
	DocumentMetadata   string
	ProcessingMetadata string
	CreatedAt          time.Time
}
