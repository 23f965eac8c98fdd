// Package search answers similarity queries over the indexed chunks.
package search

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/contextutil"
	"finsight/internal/embedding"
	"finsight/internal/store"
	"finsight/internal/vectorstore"
)

// DefaultTopK bounds a search when the caller does not specify one.
const DefaultTopK = 5

// DefaultYearWindowSize is how many years back the implicit year filter
// reaches when no explicit years are given.
const DefaultYearWindowSize = 10

// Result is one search hit with its provenance.
type Result struct {
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata"`
	Distance      float32        `json:"distance"`
	CompanyName   string         `json:"company_name,omitempty"`
	FinancialYear string         `json:"financial_year,omitempty"`
	Section       string         `json:"section,omitempty"`
}

// Response is a full search answer: the hits plus how they were obtained.
type Response struct {
	Query     string         `json:"query"`
	Results   []Result       `json:"results"`
	Total     int            `json:"total_results"`
	Metadata  map[string]any `json:"search_metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// Service runs embedding-backed retrieval through the store coordinator.
type Service struct {
	generator   *embedding.Generator
	coordinator *store.Coordinator
}

// NewService wires a search service.
func NewService(generator *embedding.Generator, coordinator *store.Coordinator) *Service {
	return &Service{generator: generator, coordinator: coordinator}
}

// Search runs an unfiltered similarity search.
func (s *Service) Search(ctx context.Context, query string, topK int) (*Response, error) {
	return s.search(ctx, query, topK, nil, map[string]any{"filtered": false})
}

// SearchByCompanyAndYear narrows the search to one company and a set of
// financial years. An empty company skips the company condition; empty years
// fall back to a ten-year window of common year spellings, so recent filings
// match however the year was tagged.
func (s *Service) SearchByCompanyAndYear(ctx context.Context, query, company string, years []string, topK int) (*Response, error) {
	filter := &vectorstore.Filter{}
	meta := map[string]any{"filtered": true}

	if company != "" {
		filter.Equals = map[string]string{"company_name": company}
		meta["company"] = company
	}

	if len(years) == 0 {
		years = DefaultYearWindow(time.Now(), DefaultYearWindowSize)
		meta["year_window"] = "default"
	}
	filter.AnyOf = map[string][]string{"financial_year": years}
	meta["years"] = years

	return s.search(ctx, query, topK, filter, meta)
}

func (s *Service) search(ctx context.Context, query string, topK int, filter *vectorstore.Filter, meta map[string]any) (*Response, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.generator.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.coordinator.SearchChunks(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.InfoContext(ctx, "search completed", "query_len", len(query), "hits", len(hits))

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, resultFromHit(hit))
	}

	meta["top_k"] = topK
	return &Response{
		Query:     query,
		Results:   results,
		Total:     len(results),
		Metadata:  meta,
		Timestamp: time.Now(),
	}, nil
}

// resultFromHit converts a vector hit. Qdrant returns a similarity score;
// callers expect a distance, so it is inverted.
func resultFromHit(hit vectorstore.SearchResult) Result {
	result := Result{
		Metadata: hit.Meta,
		Distance: 1 - hit.Score,
	}
	if v, ok := hit.Meta["content"].(string); ok {
		result.Content = v
	}
	if v, ok := hit.Meta["company_name"].(string); ok {
		result.CompanyName = v
	}
	if v, ok := hit.Meta["financial_year"].(string); ok {
		result.FinancialYear = v
	}
	if v, ok := hit.Meta["section"].(string); ok {
		result.Section = v
	}
	return result
}

// DefaultYearWindow lists the year spellings used by the implicit year
// filter: for each of the last `window` years it emits the common ways a
// financial year is written, e.g. for 2023: FY2023, FY23, 2022-23,
// 2022-2023, 2023.
func DefaultYearWindow(now time.Time, window int) []string {
	current := now.Year()
	years := make([]string, 0, window*5)
	for y := current; y > current-window; y-- {
		short := y % 100
		years = append(years,
			fmt.Sprintf("FY%d", y),
			fmt.Sprintf("FY%02d", short),
			fmt.Sprintf("%d-%02d", y-1, short),
			fmt.Sprintf("%d-%d", y-1, y),
			fmt.Sprintf("%d", y),
		)
	}
	return years
}

// ProcessedCompanies lists every company with indexed chunks, sorted.
func (s *Service) ProcessedCompanies(ctx context.Context) ([]string, error) {
	return s.coordinator.DistinctCompanies(ctx)
}

// ProcessedYears lists every indexed financial year, sorted, optionally
// narrowed to one company.
func (s *Service) ProcessedYears(ctx context.Context, company string) ([]string, error) {
	return s.coordinator.DistinctYears(ctx, company)
}

// Statistics reports stored volume plus the company/year matrix.
type Statistics struct {
	Stores    store.Stats         `json:"stores"`
	Companies []string            `json:"companies"`
	Years     map[string][]string `json:"years_by_company"`
}

// CollectStatistics gathers counts and the per-company year lists.
func (s *Service) CollectStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		Stores: s.coordinator.CollectStats(ctx),
		Years:  map[string][]string{},
	}

	companies, err := s.coordinator.DistinctCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	stats.Companies = companies

	for _, company := range companies {
		years, err := s.coordinator.DistinctYears(ctx, company)
		if err != nil {
			return nil, fmt.Errorf("list years for %s: %w", company, err)
		}
		stats.Years[company] = years
	}
	return stats, nil
}
