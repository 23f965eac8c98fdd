package handlers

import (
	"encoding/json"
	"net/http"

	"finsight/internal/contextutil"
	"finsight/internal/document"
	"finsight/internal/processor"
)

// ProcessHandler handles document-processing requests.
type ProcessHandler struct {
	processor *processor.Processor
}

// NewProcessHandler creates a new ProcessHandler.
func NewProcessHandler(p *processor.Processor) *ProcessHandler {
	return &ProcessHandler{processor: p}
}

// ProcessRequest represents the HTTP request payload for processing one document.
type ProcessRequest struct {
	FilePath         string `json:"file_path"`
	ChunkingStrategy string `json:"chunking_strategy,omitempty"`
	CompanyName      string `json:"company_name,omitempty"`
	FinancialYear    string `json:"financial_year,omitempty"`
}

// BatchRequest represents the HTTP request payload for a batch run.
type BatchRequest struct {
	Documents        []document.DocumentInfo `json:"documents"`
	ChunkingStrategy string                  `json:"chunking_strategy,omitempty"`
}

// Process handles POST /api/process.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FilePath == "" {
		writeError(w, ctx, http.StatusBadRequest, "file_path is required")
		return
	}

	result := h.processor.ProcessDocument(ctx, req.FilePath, req.ChunkingStrategy, req.CompanyName, req.FinancialYear)

	status := http.StatusOK
	if result.Status == document.StatusError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, ctx, status, result)
}

// Batch handles POST /api/process/batch.
func (h *ProcessHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, ctx, http.StatusBadRequest, "documents is required")
		return
	}
	for _, doc := range req.Documents {
		if doc.Path == "" {
			writeError(w, ctx, http.StatusBadRequest, "every document needs a path")
			return
		}
	}

	summary := h.processor.ProcessMultipleDocuments(ctx, req.Documents, req.ChunkingStrategy)
	writeJSON(w, ctx, http.StatusOK, summary)
}
