package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"finsight/internal/chunker"
	"finsight/internal/document"
	"finsight/internal/embedding"
	"finsight/internal/parser"
	parsermocks "finsight/internal/parser/mocks"
	"finsight/internal/storage"
	"finsight/internal/store"
	"finsight/internal/vectorstore"
	vecmocks "finsight/internal/vectorstore/mocks"
)

var testCollections = store.Collections{
	Chunks:  "document_chunks",
	Tables:  "extracted_tables",
	Markers: "processed_files",
}

// failingEmbedder embeds every text except those containing failOn.
type failingEmbedder struct {
	failOn string
}

func (f *failingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, errors.New("embedding service rejected input")
		}
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return vectors, nil
}

type fixture struct {
	processor *Processor
	vec       *vecmocks.MockVectorStore
	svc       *parsermocks.MockService
	chunks    *storage.ChunkRepo
	results   *storage.ResultRepo
	docPath   string
}

func newFixture(t *testing.T, failOn string) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	dir := t.TempDir()
	docPath := filepath.Join(dir, "acme-fy2023.pdf")
	if err := os.WriteFile(docPath, []byte("%PDF-stub"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	svc := parsermocks.NewMockService(ctrl)
	gateway, err := parser.NewGateway(svc, filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	db, err := storage.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}

	vec := vecmocks.NewMockVectorStore(ctrl)
	chunkRepo := storage.NewChunkRepo(db)
	resultRepo := storage.NewResultRepo(db)
	coord := store.NewCoordinator(vec, chunkRepo, storage.NewTableRepo(db), resultRepo, testCollections)

	proc := NewProcessor(
		gateway,
		chunker.NewBuilder(0),
		embedding.NewGenerator(&failingEmbedder{failOn: failOn}),
		coord,
	)
	return &fixture{
		processor: proc,
		vec:       vec,
		svc:       svc,
		chunks:    chunkRepo,
		results:   resultRepo,
		docPath:   docPath,
	}
}

func parsedFixture() document.Parsed {
	return document.Parsed{
		{Page: 1, Items: []document.Item{
			{Type: document.ItemHeading, Lvl: 1, Value: "Overview"},
			{Type: document.ItemText, Value: "Alpha beta."},
		}},
		{Page: 2, Items: []document.Item{
			{Type: document.ItemHeading, Lvl: 1, Value: "Financial Review"},
			{Type: document.ItemText, Value: "Revenue grew."},
			{Type: document.ItemTable, Rows: [][]string{{"Item", "2023"}, {"Revenue", "100"}}},
		}},
	}
}

func (f *fixture) expectNotProcessed() {
	f.vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).Return(nil, nil)
}

func (f *fixture) expectAnyUpserts() {
	f.vec.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func TestProcessDocumentSuccess(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.expectNotProcessed()
	f.expectAnyUpserts()
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(parsedFixture(), nil)

	result := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "Acme Corp", "FY2023")

	if result.Status != document.StatusSuccess {
		t.Fatalf("Status = %s, errors = %v", result.Status, result.Errors)
	}
	if result.TotalChunks != 2 {
		t.Errorf("TotalChunks = %d, want 2", result.TotalChunks)
	}
	if result.TotalTables != 1 {
		t.Errorf("TotalTables = %d, want 1", result.TotalTables)
	}
	if result.WasCached {
		t.Error("first run should not report a cache hit")
	}
	if result.ReusedExisting {
		t.Error("first run should not report reuse")
	}
	if result.DocumentMetadata.TotalPages != 2 {
		t.Errorf("TotalPages = %d, want 2", result.DocumentMetadata.TotalPages)
	}

	ids := make([]string, 0, len(result.ChunkSummaries))
	for _, s := range result.ChunkSummaries {
		ids = append(ids, s.ID)
	}
	if len(ids) != 2 || ids[0] != "overview" || ids[1] != "financial_review" {
		t.Errorf("chunk ids = %v", ids)
	}

	// The run lands in the audit log.
	history, err := f.results.History(ctx, f.docPath, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Status != "success" {
		t.Errorf("history = %+v", history)
	}

	// Chunks land relationally.
	stored, err := f.chunks.GetByFile(ctx, f.docPath, StrategySemantic)
	if err != nil {
		t.Fatalf("GetByFile() error = %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored chunks = %d, want 2", len(stored))
	}
}

func TestProcessDocumentContentsBased(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	doc := document.Parsed{
		{Page: 1, Items: []document.Item{
			{Type: document.ItemText, Value: "Annual Report 2023"},
		}},
		{Page: 2, Items: []document.Item{
			{Type: document.ItemHeading, Lvl: 1, Value: "Contents"},
			{Type: document.ItemHeading, Lvl: 2, Value: "Strategic Report"},
			{Type: document.ItemText, Value: "2 Chairman's Statement\n9 Financial Review"},
		}},
		{Page: 3, Items: []document.Item{
			{Type: document.ItemHeading, Lvl: 1, Value: "Chairman's Statement"},
			{Type: document.ItemText, Value: "It was a good year."},
		}},
	}
	for p := 4; p <= 9; p++ {
		doc = append(doc, document.Page{Page: p, Items: []document.Item{
			{Type: document.ItemText, Value: "More narrative."},
		}})
	}
	doc = append(doc, document.Page{Page: 10, Items: []document.Item{
		{Type: document.ItemHeading, Lvl: 1, Value: "Financial Review"},
		{Type: document.ItemText, Value: "Revenue grew."},
	}})

	f.expectNotProcessed()
	f.expectAnyUpserts()
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(doc, nil)

	result := f.processor.ProcessDocument(ctx, f.docPath, StrategyContentsBased, "", "")

	if result.Status != document.StatusSuccess {
		t.Fatalf("Status = %s, errors = %v", result.Status, result.Errors)
	}

	ids := make([]string, 0, len(result.ChunkSummaries))
	for _, s := range result.ChunkSummaries {
		ids = append(ids, s.ID)
	}
	want := []string{"pre_contents_page_1", "contents_page", "section_chairmans_statement", "section_financial_review"}
	if len(ids) != len(want) {
		t.Fatalf("chunk ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	// The chairman section starts where its heading is found (printed page 2
	// offset by the contents page) and runs to the page before the next
	// section's heading.
	if got := result.ChunkSummaries[2].PageRange; got != "3-9" {
		t.Errorf("PageRange = %q, want 3-9", got)
	}
}

func TestProcessDocumentReuseSkipsParser(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	// Marker present: the parser mock has no Parse expectation, so any
	// parse attempt fails the test.
	f.vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).
		Return([]vectorstore.Record{{ID: "marker"}}, nil)

	err := f.chunks.Upsert(ctx, &storage.ChunkRecord{
		ID:                 "overview",
		Content:            "Alpha beta.",
		ChunkType:          "text",
		Section:            "Overview",
		FilePath:           f.docPath,
		FileName:           filepath.Base(f.docPath),
		ProcessingStrategy: StrategySemantic,
		Metadata:           `{}`,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	result := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "", "")

	if !result.ReusedExisting {
		t.Error("ReusedExisting = false, want true")
	}
	if result.Status != document.StatusSuccess {
		t.Errorf("Status = %s, errors = %v", result.Status, result.Errors)
	}
	if result.TotalChunks != 1 {
		t.Errorf("TotalChunks = %d, want 1", result.TotalChunks)
	}
}

func TestProcessDocumentPartialEmbeddings(t *testing.T) {
	f := newFixture(t, "Revenue")
	ctx := context.Background()

	f.expectNotProcessed()
	f.expectAnyUpserts()
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(parsedFixture(), nil)

	result := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "", "")

	if result.Status != document.StatusPartial {
		t.Fatalf("Status = %s, want partial (errors = %v)", result.Status, result.Errors)
	}
	if len(result.Errors) == 0 {
		t.Error("embedding failure must surface as an error")
	}
	// The unembedded chunk still reaches the relational store.
	if result.TotalChunks != 2 {
		t.Errorf("TotalChunks = %d, want 2", result.TotalChunks)
	}
}

func TestProcessDocumentParserFailure(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.expectNotProcessed()
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(nil, errors.New("service unavailable"))

	result := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "", "")

	if result.Status != document.StatusError {
		t.Errorf("Status = %s, want error", result.Status)
	}
	if result.TotalChunks != 0 {
		t.Errorf("TotalChunks = %d, want 0", result.TotalChunks)
	}
}

func TestProcessDocumentUnknownStrategy(t *testing.T) {
	f := newFixture(t, "")

	result := f.processor.ProcessDocument(context.Background(), f.docPath, "recursive", "", "")

	if result.Status != document.StatusError {
		t.Errorf("Status = %s, want error", result.Status)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "unknown chunking strategy") {
		t.Errorf("Errors = %v", result.Errors)
	}
}

func TestProcessDocumentSecondRunHitsCache(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.expectAnyUpserts()
	f.vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).Return(nil, nil).Times(2)
	// One Parse call serves both runs; the second reads the JSONL cache.
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(parsedFixture(), nil)

	first := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "", "")
	if first.WasCached {
		t.Error("first run reported a cache hit")
	}

	second := f.processor.ProcessDocument(ctx, f.docPath, StrategySemantic, "", "")
	if !second.WasCached {
		t.Error("second run should hit the parse cache")
	}
	if second.Status != document.StatusSuccess {
		t.Errorf("Status = %s, errors = %v", second.Status, second.Errors)
	}
}

func TestProcessMultipleDocuments(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	otherPath := filepath.Join(filepath.Dir(f.docPath), "beta-fy2022.pdf")
	if err := os.WriteFile(otherPath, []byte("%PDF-stub"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	f.expectAnyUpserts()
	f.vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).Return(nil, nil).Times(2)
	f.svc.EXPECT().Parse(gomock.Any(), f.docPath).Return(parsedFixture(), nil)
	f.svc.EXPECT().Parse(gomock.Any(), otherPath).Return(nil, errors.New("service unavailable"))

	summary := f.processor.ProcessMultipleDocuments(ctx, []document.DocumentInfo{
		{Path: f.docPath, CompanyName: "Acme Corp", FinancialYear: "FY2023"},
		{Path: otherPath, CompanyName: "Beta Ltd", FinancialYear: "FY2022"},
	}, StrategySemantic)

	if summary.TotalFiles != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.TotalChunks != 2 {
		t.Errorf("TotalChunks = %d, want 2", summary.TotalChunks)
	}
	if len(summary.CompaniesProcessed) != 1 || summary.CompaniesProcessed[0] != "Acme Corp" {
		t.Errorf("CompaniesProcessed = %v", summary.CompaniesProcessed)
	}
	if len(summary.YearsProcessed) != 1 || summary.YearsProcessed[0] != "FY2023" {
		t.Errorf("YearsProcessed = %v", summary.YearsProcessed)
	}
}

func TestProcessMultipleDocumentsCancellation(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.processor.ProcessMultipleDocuments(ctx, []document.DocumentInfo{
		{Path: f.docPath},
	}, StrategySemantic)

	if len(summary.Results) != 0 {
		t.Errorf("cancelled batch processed %d documents", len(summary.Results))
	}
	if summary.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", summary.TotalFiles)
	}
}
