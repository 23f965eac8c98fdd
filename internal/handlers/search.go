package handlers

import (
	"encoding/json"
	"net/http"

	"finsight/internal/contextutil"
	"finsight/internal/search"
)

// SearchHandler handles retrieval requests over the indexed chunks.
type SearchHandler struct {
	search *search.Service
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(s *search.Service) *SearchHandler {
	return &SearchHandler{search: s}
}

// SearchRequest represents the HTTP request payload for search.
type SearchRequest struct {
	Query          string   `json:"query"`
	TopK           int      `json:"top_k,omitempty"`
	CompanyName    string   `json:"company_name,omitempty"`
	FinancialYears []string `json:"financial_years,omitempty"`
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, ctx, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, ctx, http.StatusBadRequest, "query is required")
		return
	}

	var (
		resp *search.Response
		err  error
	)
	if req.CompanyName != "" || len(req.FinancialYears) > 0 {
		resp, err = h.search.SearchByCompanyAndYear(ctx, req.Query, req.CompanyName, req.FinancialYears, req.TopK)
	} else {
		resp, err = h.search.Search(ctx, req.Query, req.TopK)
	}
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Search failed")
		return
	}

	writeJSON(w, ctx, http.StatusOK, resp)
}

// Companies handles GET /api/companies.
func (h *SearchHandler) Companies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	companies, err := h.search.ProcessedCompanies(ctx)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "listing companies failed", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to list companies")
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"companies": companies})
}

// Years handles GET /api/years with an optional company query parameter.
func (h *SearchHandler) Years(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := r.URL.Query().Get("company")

	years, err := h.search.ProcessedYears(ctx, company)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "listing years failed", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to list years")
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]any{"years": years})
}

// Stats handles GET /api/stats.
func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.search.CollectStatistics(ctx)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "collecting statistics failed", "error", err)
		writeError(w, ctx, http.StatusInternalServerError, "Failed to collect statistics")
		return
	}
	writeJSON(w, ctx, http.StatusOK, stats)
}
