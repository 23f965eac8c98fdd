package document

import (
	"time"
)

// Status of a processing run.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusPartial    Status = "partial"
	StatusError      Status = "error"
)

// Metadata describes the source document of a processing run.
type Metadata struct {
	FilePath         string    `json:"file_path"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	ProcessingDate   time.Time `json:"processing_date"`
	TotalPages       int       `json:"total_pages"`
	WasCached        bool      `json:"was_cached"`
	ChunkingStrategy string    `json:"chunking_strategy"`
	CompanyName      string    `json:"company_name,omitempty"`
	FinancialYear    string    `json:"financial_year,omitempty"`
}

// ChunkSummary is the per-chunk line item in a ProcessingResult.
type ChunkSummary struct {
	ID            string `json:"id"`
	Section       string `json:"section"`
	Kind          string `json:"chunk_type"`
	TokenCount    int    `json:"token_count"`
	TableCount    int    `json:"table_count"`
	PageRange     string `json:"page_range"`
	CompanyName   string `json:"company_name,omitempty"`
	FinancialYear string `json:"financial_year,omitempty"`
}

// ProcessingResult is the outcome of one process-document call. It is the
// unit of observability: errors are blocking, warnings are not.
type ProcessingResult struct {
	Status           Status         `json:"status"`
	DocumentPath     string         `json:"document_path"`
	Strategy         string         `json:"processing_strategy"`
	TotalChunks      int            `json:"total_chunks"`
	TotalTables      int            `json:"total_tables"`
	ChunkSummaries   []ChunkSummary `json:"chunks_summary"`
	DocumentMetadata Metadata       `json:"document_metadata"`
	Errors           []string       `json:"errors"`
	Warnings         []string       `json:"warnings"`
	ProcessingTime   float64        `json:"processing_time"`
	WasCached        bool           `json:"was_cached"`
	ReusedExisting   bool           `json:"reused_existing"`
}

// NewProcessingResult starts a result in the processing state.
func NewProcessingResult(path, strategy string) *ProcessingResult {
	return &ProcessingResult{
		Status:       StatusProcessing,
		DocumentPath: path,
		Strategy:     strategy,
		Errors:       []string{},
		Warnings:     []string{},
	}
}

// AddError records a blocking error and downgrades the status: a run that
// already produced chunks becomes partial, otherwise it becomes an error.
func (r *ProcessingResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	if r.Status == StatusSuccess || r.Status == StatusProcessing {
		if r.TotalChunks > 0 {
			r.Status = StatusPartial
		} else {
			r.Status = StatusError
		}
	}
}

// AddWarning records a non-blocking warning.
func (r *ProcessingResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// IsSuccessful reports whether the run fully succeeded.
func (r *ProcessingResult) IsSuccessful() bool {
	return r.Status == StatusSuccess
}

// DocumentInfo names one document in a batch request.
type DocumentInfo struct {
	Path          string `json:"path"`
	CompanyName   string `json:"company_name,omitempty"`
	FinancialYear string `json:"financial_year,omitempty"`
}

// BatchSummary aggregates the results of a multi-document run.
type BatchSummary struct {
	TotalFiles         int                 `json:"total_files"`
	Successful         int                 `json:"successful"`
	Failed             int                 `json:"failed"`
	Strategy           string              `json:"chunking_strategy"`
	Results            []*ProcessingResult `json:"files_processed"`
	TotalChunks        int                 `json:"total_chunks"`
	TotalTables        int                 `json:"total_tables"`
	CompaniesProcessed []string            `json:"companies_processed"`
	YearsProcessed     []string            `json:"years_processed"`
}
