package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"finsight/internal/embedding"
	"finsight/internal/store"
	"finsight/internal/vectorstore"
	"finsight/internal/vectorstore/mocks"
)

var testCollections = store.Collections{
	Chunks:  "document_chunks",
	Tables:  "extracted_tables",
	Markers: "processed_files",
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.5, 0.5}
	}
	return vectors, nil
}

func newService(t *testing.T, embedErr error) (*Service, *mocks.MockVectorStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	coord := store.NewCoordinator(vec, nil, nil, nil, testCollections)
	return NewService(embedding.NewGenerator(&stubEmbedder{err: embedErr}), coord), vec
}

func TestSearchInvertsScoreToDistance(t *testing.T) {
	svc, vec := newService(t, nil)

	vec.EXPECT().Search(gomock.Any(), testCollections.Chunks, []float32{0.5, 0.5}, 5, nil).
		Return([]vectorstore.SearchResult{
			{PointID: "p1", Score: 0.9, Meta: map[string]any{
				"content":        "Revenue grew.",
				"company_name":   "Acme Corp",
				"financial_year": "FY2023",
				"section":        "Financial Review",
			}},
		}, nil)

	resp, err := svc.Search(context.Background(), "revenue growth", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("Total = %d, want 1", resp.Total)
	}

	hit := resp.Results[0]
	if got := hit.Distance; got < 0.099 || got > 0.101 {
		t.Errorf("Distance = %v, want 1 - score", got)
	}
	if hit.Content != "Revenue grew." || hit.CompanyName != "Acme Corp" ||
		hit.FinancialYear != "FY2023" || hit.Section != "Financial Review" {
		t.Errorf("hit = %+v", hit)
	}
	if resp.Metadata["filtered"] != false || resp.Metadata["top_k"] != 5 {
		t.Errorf("search metadata = %v", resp.Metadata)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestSearchByCompanyAndYearBuildsFilter(t *testing.T) {
	svc, vec := newService(t, nil)

	var captured *vectorstore.Filter
	vec.EXPECT().Search(gomock.Any(), testCollections.Chunks, gomock.Any(), 3, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ []float32, _ int, f *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
			captured = f
			return nil, nil
		})

	_, err := svc.SearchByCompanyAndYear(context.Background(), "cash flow", "Acme Corp", []string{"FY2023", "2022-23"}, 3)
	if err != nil {
		t.Fatalf("SearchByCompanyAndYear() error = %v", err)
	}
	if captured == nil {
		t.Fatal("no filter passed to the vector store")
	}
	if captured.Equals["company_name"] != "Acme Corp" {
		t.Errorf("company filter = %v", captured.Equals)
	}
	years := captured.AnyOf["financial_year"]
	if len(years) != 2 || years[0] != "FY2023" || years[1] != "2022-23" {
		t.Errorf("year filter = %v", years)
	}
}

func TestSearchByCompanyAndYearDefaultWindow(t *testing.T) {
	svc, vec := newService(t, nil)

	var captured *vectorstore.Filter
	vec.EXPECT().Search(gomock.Any(), testCollections.Chunks, gomock.Any(), 5, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ []float32, _ int, f *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
			captured = f
			return nil, nil
		})

	resp, err := svc.SearchByCompanyAndYear(context.Background(), "cash flow", "", nil, 0)
	if err != nil {
		t.Fatalf("SearchByCompanyAndYear() error = %v", err)
	}
	if len(captured.Equals) != 0 {
		t.Errorf("empty company must not add an equality condition: %v", captured.Equals)
	}
	if got := len(captured.AnyOf["financial_year"]); got != DefaultYearWindowSize*5 {
		t.Errorf("default window has %d spellings, want %d", got, DefaultYearWindowSize*5)
	}
	if resp.Metadata["year_window"] != "default" {
		t.Errorf("search metadata = %v", resp.Metadata)
	}
}

func TestDefaultYearWindowSpellings(t *testing.T) {
	now := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	years := DefaultYearWindow(now, 2)

	want := []string{
		"FY2023", "FY23", "2022-23", "2022-2023", "2023",
		"FY2022", "FY22", "2021-22", "2021-2022", "2022",
	}
	if len(years) != len(want) {
		t.Fatalf("window = %v", years)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Errorf("years[%d] = %q, want %q", i, years[i], want[i])
		}
	}
}

func TestSearchEmbedFailure(t *testing.T) {
	svc, _ := newService(t, errors.New("model offline"))

	if _, err := svc.Search(context.Background(), "anything", 5); err == nil {
		t.Error("Search() should fail when the query cannot be embedded")
	}
}

func TestCollectStatistics(t *testing.T) {
	svc, vec := newService(t, nil)
	ctx := context.Background()

	// Vector-only coordinator: distinct values come from marker payloads.
	vec.EXPECT().Count(gomock.Any(), gomock.Any(), nil).Return(uint64(0), nil).Times(3)
	markers := []vectorstore.Record{
		{ID: "m1", Meta: map[string]any{"company_name": "Acme Corp", "financial_year": "FY2023"}},
		{ID: "m2", Meta: map[string]any{"company_name": "Beta Ltd", "financial_year": "FY2022"}},
	}
	vec.EXPECT().Scroll(gomock.Any(), testCollections.Markers, nil, gomock.Any()).
		Return(markers, nil).Times(3)

	stats, err := svc.CollectStatistics(ctx)
	if err != nil {
		t.Fatalf("CollectStatistics() error = %v", err)
	}
	if len(stats.Companies) != 2 || stats.Companies[0] != "Acme Corp" {
		t.Errorf("Companies = %v", stats.Companies)
	}
	if len(stats.Years) != 2 {
		t.Errorf("Years = %v", stats.Years)
	}
}
