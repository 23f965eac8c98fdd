package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"finsight/internal/document"
	"finsight/internal/storage"
	storagemocks "finsight/internal/storage/mocks"
	"finsight/internal/vectorstore"
	"finsight/internal/vectorstore/mocks"
)

var testCollections = Collections{
	Chunks:  "document_chunks",
	Tables:  "extracted_tables",
	Markers: "processed_files",
}

func newRelationalRepos(t *testing.T) (*storage.ChunkRepo, *storage.TableRepo, *storage.ResultRepo) {
	t.Helper()

	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	return storage.NewChunkRepo(db), storage.NewTableRepo(db), storage.NewResultRepo(db)
}

func testMeta() document.Metadata {
	return document.Metadata{
		FilePath:         "/data/acme-fy2023.pdf",
		FileName:         "acme-fy2023.pdf",
		FileSize:         2048,
		ProcessingDate:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TotalPages:       80,
		ChunkingStrategy: "contents_based",
		CompanyName:      "Acme Corp",
		FinancialYear:    "FY2023",
	}
}

func testChunks() []document.Chunk {
	return []document.Chunk{
		{
			ID:        "contents_page",
			Content:   "Contents",
			Kind:      document.ChunkText,
			Section:   "Contents",
			Embedding: []float32{0.1, 0.2},
		},
		{
			ID:      "section_financial_review",
			Content: "Revenue grew.",
			Kind:    document.ChunkMixed,
			Section: "Financial Review",
			Tables: []document.Table{
				{ID: "t1", Headers: []string{"Item", "2023"}, RowCount: 1,
					Rows:          []map[string]string{{"Item": "Revenue", "2023": "100"}},
					SourceChunkID: "section_financial_review"},
			},
			Embedding: []float32{0.3, 0.4},
		},
		{
			ID:      "section_outlook",
			Content: "Orphaned by an embedding failure.",
			Kind:    document.ChunkText,
			Section: "Outlook",
		},
	}
}

func TestMarkerKey(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		strategy string
		company  string
		year     string
		want     string
	}{
		{
			name:     "path and strategy only",
			path:     "/data/report.pdf",
			strategy: "contents_based",
			want:     "report_contents_based",
		},
		{
			name:     "company with spaces",
			path:     "/data/report.pdf",
			strategy: "semantic",
			company:  "Acme Corp",
			want:     "report_semantic_Acme_Corp",
		},
		{
			name:     "year with slash",
			path:     "/data/report.pdf",
			strategy: "contents_based",
			company:  "Acme Corp",
			year:     "2022/23",
			want:     "report_contents_based_Acme_Corp_2022-23",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkerKey(tt.path, tt.strategy, tt.company, tt.year); got != tt.want {
				t.Errorf("MarkerKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPointIDStableAndValid(t *testing.T) {
	a := PointID("/data/x.pdf|contents_based|contents_page")
	b := PointID("/data/x.pdf|contents_based|contents_page")
	if a != b {
		t.Errorf("PointID not stable: %q vs %q", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("PointID is not a UUID: %v", err)
	}
	if a == PointID("/data/y.pdf|contents_based|contents_page") {
		t.Error("different files must yield different point ids")
	}
}

func TestStoreDualWriteSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tables, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tables, results, testCollections)

	var chunkPoints, tablePoints []vectorstore.Point
	vec.EXPECT().Upsert(gomock.Any(), testCollections.Chunks, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pts []vectorstore.Point) error {
			chunkPoints = pts
			return nil
		})
	vec.EXPECT().Upsert(gomock.Any(), testCollections.Tables, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pts []vectorstore.Point) error {
			tablePoints = pts
			return nil
		})

	outcome := coord.Store(context.Background(), testChunks(), testMeta())

	if !outcome.VectorOK || !outcome.RelationalOK || !outcome.OverallOK() {
		t.Errorf("outcome = %+v, want both backends ok", outcome)
	}
	if outcome.ChunksStored != 3 {
		t.Errorf("ChunksStored = %d, want 3", outcome.ChunksStored)
	}

	// Only embedded chunks become vector points.
	if len(chunkPoints) != 2 {
		t.Fatalf("vector chunk points = %d, want 2", len(chunkPoints))
	}
	for _, p := range chunkPoints {
		if _, err := uuid.Parse(p.ID); err != nil {
			t.Errorf("point id %q is not a UUID", p.ID)
		}
		if p.Meta["doc_chunking_strategy"] != "contents_based" {
			t.Errorf("missing flattened doc metadata: %v", p.Meta)
		}
		if _, ok := p.Meta["content"]; !ok {
			t.Error("chunk content must be carried in the payload")
		}
	}

	// One table point, sharing the owning chunk's embedding.
	if len(tablePoints) != 1 {
		t.Fatalf("vector table points = %d, want 1", len(tablePoints))
	}
	if tablePoints[0].Vec[0] != 0.3 {
		t.Error("table point must reuse the chunk embedding")
	}
	if tablePoints[0].Meta["chunk_id"] != "section_financial_review" {
		t.Errorf("table payload chunk_id = %v", tablePoints[0].Meta["chunk_id"])
	}

	// All three chunks land relationally, embedding or not.
	records, err := chunks.GetByFile(context.Background(), "/data/acme-fy2023.pdf", "contents_based")
	if err != nil {
		t.Fatalf("GetByFile() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("relational chunks = %d, want 3", len(records))
	}
}

func TestStoreVectorFailureDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tables, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tables, results, testCollections)

	vec.EXPECT().Upsert(gomock.Any(), testCollections.Chunks, gomock.Any()).
		Return(errors.New("qdrant down"))

	outcome := coord.Store(context.Background(), testChunks(), testMeta())

	if outcome.VectorOK {
		t.Error("VectorOK should be false when the vector write fails")
	}
	if !outcome.RelationalOK {
		t.Error("relational write must proceed despite vector failure")
	}
	if !outcome.OverallOK() {
		t.Error("overall ok when either backend succeeded")
	}
	if outcome.ChunksStored != 3 {
		t.Errorf("ChunksStored = %d, want 3", outcome.ChunksStored)
	}
}

func TestStoreRelationalDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	coord := NewCoordinator(vec, nil, nil, nil, testCollections)

	vec.EXPECT().Upsert(gomock.Any(), testCollections.Chunks, gomock.Any()).Return(nil)
	vec.EXPECT().Upsert(gomock.Any(), testCollections.Tables, gomock.Any()).Return(nil)

	outcome := coord.Store(context.Background(), testChunks(), testMeta())

	if outcome.RelationalOK {
		t.Error("RelationalOK should be false without a configured database")
	}
	if !outcome.VectorOK || !outcome.OverallOK() {
		t.Errorf("outcome = %+v", outcome)
	}
	// Only the two embedded chunks count without a relational store.
	if outcome.ChunksStored != 2 {
		t.Errorf("ChunksStored = %d, want 2", outcome.ChunksStored)
	}
}

func TestStoreRelationalFailureKeepsVectorCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunkStore := storagemocks.NewMockChunkStore(ctrl)
	coord := NewCoordinator(vec, chunkStore, nil, nil, testCollections)

	vec.EXPECT().Upsert(gomock.Any(), testCollections.Chunks, gomock.Any()).Return(nil)
	vec.EXPECT().Upsert(gomock.Any(), testCollections.Tables, gomock.Any()).Return(nil)
	chunkStore.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	outcome := coord.Store(context.Background(), testChunks(), testMeta())

	if outcome.RelationalOK {
		t.Error("RelationalOK should be false when the first upsert fails")
	}
	if !outcome.VectorOK || !outcome.OverallOK() {
		t.Errorf("outcome = %+v", outcome)
	}
	// Count falls back to what the vector store actually holds.
	if outcome.ChunksStored != 2 {
		t.Errorf("ChunksStored = %d, want 2", outcome.ChunksStored)
	}
}

func TestMarkAndIsProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	coord := NewCoordinator(vec, nil, nil, nil, testCollections)
	meta := testMeta()

	markerID := PointID(MarkerKey("/data/acme-fy2023.pdf", "contents_based", "Acme Corp", "FY2023"))

	vec.EXPECT().Upsert(gomock.Any(), testCollections.Markers, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pts []vectorstore.Point) error {
			if len(pts) != 1 || pts[0].ID != markerID {
				t.Errorf("marker point id = %v, want %s", pts, markerID)
			}
			if len(pts[0].Vec) != 1 {
				t.Errorf("marker vector size = %d, want placeholder of size 1", len(pts[0].Vec))
			}
			return nil
		})

	if err := coord.MarkProcessed(context.Background(), "/data/acme-fy2023.pdf", "contents_based", meta); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	vec.EXPECT().Get(gomock.Any(), testCollections.Markers, []string{markerID}).
		Return([]vectorstore.Record{{ID: markerID}}, nil)
	if !coord.IsProcessed(context.Background(), "/data/acme-fy2023.pdf", "contents_based", "Acme Corp", "FY2023") {
		t.Error("IsProcessed() = false after MarkProcessed")
	}

	vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).
		Return(nil, nil)
	if coord.IsProcessed(context.Background(), "/data/acme-fy2023.pdf", "semantic", "Acme Corp", "FY2023") {
		t.Error("IsProcessed() = true for different strategy")
	}
}

func TestIsProcessedFallsBackToRelationalHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tables, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tables, results, testCollections)
	ctx := context.Background()

	err := results.Insert(ctx, &storage.ResultRecord{
		FilePath:           "/data/acme-fy2023.pdf",
		FileName:           "acme-fy2023.pdf",
		ProcessingStrategy: "contents_based",
		Status:             "success",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	vec.EXPECT().Get(gomock.Any(), testCollections.Markers, gomock.Any()).
		Return(nil, errors.New("qdrant down")).Times(2)

	if !coord.IsProcessed(ctx, "/data/acme-fy2023.pdf", "contents_based", "", "") {
		t.Error("IsProcessed() should fall back to the relational audit log")
	}
	if coord.IsProcessed(ctx, "/data/other.pdf", "contents_based", "", "") {
		t.Error("IsProcessed() = true for a file with no history")
	}
}

func TestGetChunksByFileRelationalFiltering(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tables, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tables, results, testCollections)
	ctx := context.Background()

	vec.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	coord.Store(ctx, testChunks(), testMeta())

	otherMeta := testMeta()
	otherMeta.CompanyName = "Beta Ltd"
	otherChunks := []document.Chunk{{
		ID: "contents_page", Content: "Contents", Kind: document.ChunkText,
		CompanyName: "Beta Ltd", Embedding: []float32{0.5, 0.6},
	}}
	// Same file processed under a different company tag.
	otherMeta.FilePath = "/data/shared.pdf"
	coord.Store(ctx, otherChunks, otherMeta)

	got, err := coord.GetChunksByFile(ctx, "/data/acme-fy2023.pdf", "contents_based", "", "")
	if err != nil {
		t.Fatalf("GetChunksByFile() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetChunksByFile() = %d chunks, want 3", len(got))
	}

	// Tables are reattached from the relational store.
	var mixed *document.Chunk
	for i := range got {
		if got[i].ID == "section_financial_review" {
			mixed = &got[i]
		}
	}
	if mixed == nil {
		t.Fatal("section_financial_review missing from reloaded chunks")
	}
	if len(mixed.Tables) != 1 || mixed.Tables[0].ID != "t1" {
		t.Errorf("reloaded tables = %v", mixed.Tables)
	}
	if mixed.Tables[0].Rows[0]["Item"] != "Revenue" {
		t.Errorf("table rows lost in round trip: %v", mixed.Tables[0].Rows)
	}

	filtered, err := coord.GetChunksByFile(ctx, "/data/acme-fy2023.pdf", "contents_based", "Beta Ltd", "")
	if err != nil {
		t.Fatalf("GetChunksByFile() filtered error = %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("company filter leaked %d chunks", len(filtered))
	}
}

func TestGetChunksByFileVectorOnlyReattachesTables(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	coord := NewCoordinator(vec, nil, nil, nil, testCollections)
	ctx := context.Background()

	logicalID := chunkLogicalID("/data/acme-fy2023.pdf", "contents_based", "section_financial_review")
	tablePointID := PointID(logicalID + "_t1")

	vec.EXPECT().Scroll(gomock.Any(), testCollections.Chunks, gomock.Any(), gomock.Any()).
		Return([]vectorstore.Record{{
			ID: PointID(logicalID),
			Meta: map[string]any{
				"chunk_id":   "section_financial_review",
				"content":    "Revenue grew.",
				"chunk_type": "mixed",
				"has_tables": true,
				"table_ids":  "t1",
			},
		}}, nil)
	vec.EXPECT().Get(gomock.Any(), testCollections.Tables, []string{tablePointID}).
		Return([]vectorstore.Record{{
			ID: tablePointID,
			Meta: map[string]any{
				"chunk_id":     "section_financial_review",
				"table_id":     "t1",
				"headers":      `["Item","2023"]`,
				"row_count":    int64(1),
				"column_count": int64(2),
			},
		}}, nil)

	got, err := coord.GetChunksByFile(ctx, "/data/acme-fy2023.pdf", "contents_based", "", "")
	if err != nil {
		t.Fatalf("GetChunksByFile() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetChunksByFile() = %d chunks, want 1", len(got))
	}
	if len(got[0].Tables) != 1 {
		t.Fatalf("reloaded chunk has %d tables, want 1", len(got[0].Tables))
	}
	tbl := got[0].Tables[0]
	if tbl.ID != "t1" || tbl.SourceChunkID != "section_financial_review" {
		t.Errorf("table identity lost: %+v", tbl)
	}
	if tbl.RowCount != 1 || tbl.ColumnCount != 2 || len(tbl.Headers) != 2 {
		t.Errorf("table shape lost: %+v", tbl)
	}
}

func TestHealthCheckReportsDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tables, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tables, results, testCollections)
	ctx := context.Background()

	vec.EXPECT().Count(gomock.Any(), testCollections.Chunks, nil).Return(uint64(5), nil)

	status := coord.HealthCheck(ctx)
	if !status.VectorOK || !status.RelationalOK {
		t.Errorf("status = %+v, want both backends ok", status)
	}
	// 5 vector chunks vs 0 relational rows: drift, not an error.
	if status.Consistent {
		t.Error("Consistent should be false when counts disagree")
	}

	vec.EXPECT().Count(gomock.Any(), testCollections.Chunks, nil).Return(uint64(0), nil)
	status = coord.HealthCheck(ctx)
	if !status.Consistent {
		t.Error("Consistent should be true when counts agree")
	}
}

func TestStoreFinancialTablesRelationalOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	vec := mocks.NewMockVectorStore(ctrl)
	chunks, tableRepo, results := newRelationalRepos(t)
	coord := NewCoordinator(vec, chunks, tableRepo, results, testCollections)
	ctx := context.Background()

	statements := []document.Table{
		{ID: "consolidated_balance_sheet_p50_1", Title: "Consolidated Balance Sheet",
			Headers: []string{"Item", "2023"}, RowCount: 1, ColumnCount: 2,
			Rows:      []map[string]string{{"Item": "Assets", "2023": "500"}},
			TableType: document.TypeBalanceSheet, PageNumber: 50},
	}

	// No vector expectations: financial statements never touch the vector store.
	if err := coord.StoreFinancialTables(ctx, statements, testMeta()); err != nil {
		t.Fatalf("StoreFinancialTables() error = %v", err)
	}

	stored, err := tableRepo.GetByFile(ctx, "/data/acme-fy2023.pdf", document.TypeBalanceSheet)
	if err != nil {
		t.Fatalf("GetByFile() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored statements = %d, want 1", len(stored))
	}

	// Vector-only deployments silently skip.
	vectorOnly := NewCoordinator(vec, nil, nil, nil, testCollections)
	if err := vectorOnly.StoreFinancialTables(ctx, statements, testMeta()); err != nil {
		t.Errorf("StoreFinancialTables() vector-only error = %v", err)
	}
}
